package telegram

import (
	"context"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const (
	pollTimeout   = 30 // seconds, long polling
	baseRetry     = 1 * time.Second
	maxRetry      = 15 * time.Second
	idlePollDelay = 200 * time.Millisecond
)

// Run receives updates until ctx is cancelled. With an empty publicURL it long
// polls; otherwise it registers publicURL+path as the webhook and relies on
// WebhookHandler being mounted at path.
func (r *Router) Run(ctx context.Context, publicURL, path string) error {
	defer r.Wait()

	if publicURL == "" {
		// getUpdates is refused while a webhook is set
		if _, err := r.bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			r.logger.Warn("delete webhook", "error", err)
		}
		r.logger.Info("telegram polling started")
		r.runPolling(ctx)
		return nil
	}

	public := strings.TrimRight(publicURL, "/") + path
	wh, err := tgbotapi.NewWebhook(public)
	if err != nil {
		return err
	}
	wh.DropPendingUpdates = true
	if _, err := r.bot.Request(wh); err != nil {
		return err
	}
	r.logger.Info("telegram webhook registered", "path", path)
	<-ctx.Done()
	return nil
}

// WebhookHandler decodes an update pushed by Telegram and answers 200 at once;
// the update is processed in the background.
func (r *Router) WebhookHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		upd, err := r.bot.HandleUpdate(req)
		if err != nil {
			r.logger.Warn("webhook decode", "error", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		r.dispatch(context.WithoutCancel(req.Context()), *upd)
		w.WriteHeader(http.StatusOK)
	})
}

func (r *Router) runPolling(ctx context.Context) {
	offset := 0
	for {
		if ctx.Err() != nil {
			r.logger.Info("telegram polling stopped")
			return
		}

		u := tgbotapi.NewUpdate(offset)
		u.Timeout = pollTimeout

		updates, err := r.bot.GetUpdates(u)
		if err != nil {
			d := min(max(retryDelayFromError(err), baseRetry), maxRetry)
			r.logger.Warn("polling error", "error", err, "retry_in", d)
			sleep(ctx, d)
			continue
		}

		for _, upd := range updates {
			if upd.UpdateID >= offset {
				offset = upd.UpdateID + 1
			}
			r.dispatch(ctx, upd)
		}
		if len(updates) == 0 {
			sleep(ctx, idlePollDelay)
		}
	}
}

var reRetryAfter = regexp.MustCompile(`(?i)retry after\s+(\d+)`)

func retryDelayFromError(err error) time.Duration {
	if err == nil {
		return 0
	}
	var terr *tgbotapi.Error
	if errors.As(err, &terr) && terr.RetryAfter > 0 {
		return time.Duration(terr.RetryAfter) * time.Second
	}
	s := strings.ToLower(err.Error())
	if strings.Contains(s, "too many requests") {
		if m := reRetryAfter.FindStringSubmatch(s); len(m) == 2 {
			if n, _ := strconv.Atoi(m[1]); n > 0 {
				return time.Duration(n) * time.Second
			}
		}
		return 3 * time.Second
	}
	var ne net.Error
	if errors.As(err, &ne) && ne.Timeout() {
		return 2 * time.Second
	}
	return 1 * time.Second
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// WebhookPath derives a stable, non-guessable webhook path from the bot token (FNV-1a).
func WebhookPath(token string) string {
	return "/webhook/" + shortHash(token)
}

func shortHash(s string) string {
	h := uint64(1469598103934665603)
	const prime = 1099511628211
	for i := 0; i < len(s); i++ {
		h ^= uint64(s[i])
		h *= prime
	}
	const hexdigits = "0123456789abcdef"
	out := make([]byte, 16)
	for i := 15; i >= 0; i-- {
		out[i] = hexdigits[h&0xF]
		h >>= 4
	}
	return string(out)
}
