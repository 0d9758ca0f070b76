// Package telegram answers photos sent to a Telegram bot with the text found on them.
package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"img2text/api/internal/ocr"
	"img2text/api/internal/upload"
	"img2text/api/internal/util"
)

const (
	maxReplyText = 3900

	msgStart      = "Send me a photo and I will reply with the text on it.\nCommands: /health"
	msgHealth     = "✅ OK"
	msgUnknownCmd = "Unknown command"
	msgSendPhoto  = "Send a photo (jpg or png) to extract its text."
	msgNotImage   = "Only jpg and png images are accepted."
	msgFailed     = "❌ Could not extract text from this image."
	msgNoText     = "📝 No text found on the image."
	msgResult     = "📝 Extracted text:\n\n"
)

// BotAPI is the subset of *tgbotapi.BotAPI the router uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdates(config tgbotapi.UpdateConfig) ([]tgbotapi.Update, error)
	GetFileDirectURL(fileID string) (string, error)
	HandleUpdate(r *http.Request) (*tgbotapi.Update, error)
}

type Extractor interface {
	Extract(ctx context.Context, path string) ocr.Result
}

type Router struct {
	bot     BotAPI
	ext     Extractor
	uploads *upload.Receiver
	httpc   *http.Client
	logger  *slog.Logger

	wg sync.WaitGroup
}

func NewRouter(bot BotAPI, ext Extractor, uploads *upload.Receiver, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		bot:     bot,
		ext:     ext,
		uploads: uploads,
		httpc:   &http.Client{Timeout: 60 * time.Second},
		logger:  logger.With("component", "telegram"),
	}
}

// HandleUpdate processes a single update synchronously.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	msg := upd.Message
	if msg == nil || msg.Chat == nil {
		return
	}
	cid := msg.Chat.ID

	switch {
	case msg.IsCommand():
		r.handleCommand(cid, msg.Command())
	case len(msg.Photo) > 0:
		// the last size is the largest one
		ph := msg.Photo[len(msg.Photo)-1]
		r.extractFile(ctx, cid, ph.FileID, int64(ph.FileSize), "photo.jpg", "")
	case msg.Document != nil:
		doc := msg.Document
		if !upload.Accepted(doc.MimeType) {
			r.send(cid, msgNotImage)
			return
		}
		r.extractFile(ctx, cid, doc.FileID, int64(doc.FileSize), doc.FileName, doc.MimeType)
	default:
		r.send(cid, msgSendPhoto)
	}
}

func (r *Router) handleCommand(cid int64, cmd string) {
	switch cmd {
	case "start", "help":
		r.send(cid, msgStart)
	case "health":
		r.send(cid, msgHealth)
	default:
		r.send(cid, msgUnknownCmd)
	}
}

func (r *Router) extractFile(ctx context.Context, cid int64, fileID string, size int64, name, mimeType string) {
	log := r.logger.With("chat_id", cid)
	if size > r.uploads.MaxBytes() {
		r.send(cid, tooLargeText(r.uploads.MaxBytes()))
		return
	}

	url, err := r.bot.GetFileDirectURL(fileID)
	if err != nil {
		log.Warn("get file url", "error", err)
		r.send(cid, msgFailed)
		return
	}
	data, err := r.download(ctx, url)
	if errors.Is(err, upload.ErrTooLarge) {
		r.send(cid, tooLargeText(r.uploads.MaxBytes()))
		return
	}
	if err != nil {
		log.Warn("download file", "error", err)
		r.send(cid, msgFailed)
		return
	}

	up, err := r.uploads.FromBytes(name, util.PickMIME(mimeType, data), data)
	switch {
	case errors.Is(err, upload.ErrNoFile):
		r.send(cid, msgNotImage)
		return
	case errors.Is(err, upload.ErrTooLarge):
		r.send(cid, tooLargeText(r.uploads.MaxBytes()))
		return
	case err != nil:
		log.Warn("store image", "error", err)
		r.send(cid, msgFailed)
		return
	}
	defer func() {
		if err := up.Remove(); err != nil {
			log.Warn("upload cleanup failed", "path", up.StoredPath, "error", err)
		}
	}()

	res := r.ext.Extract(ctx, up.StoredPath)
	switch {
	case !res.Succeeded:
		r.send(cid, msgFailed)
	case res.Text == "":
		r.send(cid, msgNoText)
	default:
		r.send(cid, msgResult+util.Truncate(res.Text, maxReplyText))
	}
}

func (r *Router) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := r.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("status %d: %s", resp.StatusCode, string(b))
	}
	max := r.uploads.MaxBytes()
	data, err := io.ReadAll(io.LimitReader(resp.Body, max+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > max {
		return nil, upload.ErrTooLarge
	}
	return data, nil
}

func (r *Router) send(chatID int64, text string) {
	if _, err := r.bot.Send(tgbotapi.NewMessage(chatID, text)); err != nil {
		r.logger.Warn("send message", "chat_id", chatID, "error", err)
	}
}

// dispatch handles an update in the background; Wait blocks until all are done.
func (r *Router) dispatch(ctx context.Context, upd tgbotapi.Update) {
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("update panic", "update_id", upd.UpdateID, "error", fmt.Sprint(rec))
			}
		}()
		r.HandleUpdate(ctx, upd)
	}()
}

func (r *Router) Wait() { r.wg.Wait() }

func tooLargeText(max int64) string {
	return fmt.Sprintf("❌ File too large. Maximum size is %dMB", max>>20)
}
