package telegram

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"img2text/api/internal/ocr"
	"img2text/api/internal/upload"
)

type fakeBot struct {
	mu       sync.Mutex
	sent     []string
	requests []tgbotapi.Chattable
	fileURL  string
	updates  func(offset int) ([]tgbotapi.Update, error)
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.sent = append(b.sent, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requests = append(b.requests, c)
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) GetUpdates(u tgbotapi.UpdateConfig) ([]tgbotapi.Update, error) {
	return b.updates(u.Offset)
}

func (b *fakeBot) GetFileDirectURL(fileID string) (string, error) {
	if b.fileURL == "" {
		return "", errors.New("no such file")
	}
	return b.fileURL + "/" + fileID, nil
}

func (b *fakeBot) HandleUpdate(r *http.Request) (*tgbotapi.Update, error) {
	var upd tgbotapi.Update
	if err := json.NewDecoder(r.Body).Decode(&upd); err != nil {
		return nil, err
	}
	return &upd, nil
}

func (b *fakeBot) messages() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.sent...)
}

type fakeExtractor struct {
	res   ocr.Result
	paths []string
}

func (f *fakeExtractor) Extract(_ context.Context, path string) ocr.Result {
	f.paths = append(f.paths, path)
	return f.res
}

func fileServer(t *testing.T, data []byte) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write(data)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func command(chatID int64, text string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: chatID},
		Text:     text,
		Entities: []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: len(text)}},
	}}
}

func photo(chatID int64, size int) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{
		Chat: &tgbotapi.Chat{ID: chatID},
		Photo: []tgbotapi.PhotoSize{
			{FileID: "small", FileSize: 10},
			{FileID: "large", FileSize: size},
		},
	}}
}

var jpegBytes = []byte{0xFF, 0xD8, 0xFF, 0xE0, 'J', 'F', 'I', 'F'}

func TestHandleCommands(t *testing.T) {
	tests := map[string]string{
		"/start":  msgStart,
		"/health": msgHealth,
		"/engine": msgUnknownCmd,
	}
	for cmd, want := range tests {
		bot := &fakeBot{}
		r := NewRouter(bot, &fakeExtractor{}, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)
		r.HandleUpdate(context.Background(), command(1, cmd))
		if got := bot.messages(); len(got) != 1 || got[0] != want {
			t.Errorf("%s replied %q, want %q", cmd, got, want)
		}
	}
}

func TestHandlePhoto(t *testing.T) {
	tests := []struct {
		name string
		res  ocr.Result
		want string
	}{
		{"text", ocr.Result{Succeeded: true, Text: "HELLO"}, msgResult + "HELLO"},
		{"blank", ocr.Result{Succeeded: true}, msgNoText},
		{"failure", ocr.Result{}, msgFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bot := &fakeBot{fileURL: fileServer(t, jpegBytes).URL}
			ext := &fakeExtractor{res: tt.res}
			r := NewRouter(bot, ext, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)

			r.HandleUpdate(context.Background(), photo(42, len(jpegBytes)))

			if got := bot.messages(); len(got) != 1 || got[0] != tt.want {
				t.Fatalf("replies = %q, want %q", got, tt.want)
			}
			if len(ext.paths) != 1 {
				t.Fatalf("extractor calls = %d", len(ext.paths))
			}
			if _, err := os.Stat(ext.paths[0]); !os.IsNotExist(err) {
				t.Fatalf("temp image not removed: %v", err)
			}
		})
	}
}

func TestHandlePhotoLongTextTruncated(t *testing.T) {
	bot := &fakeBot{fileURL: fileServer(t, jpegBytes).URL}
	long := strings.Repeat("я", 3000)
	r := NewRouter(bot, &fakeExtractor{res: ocr.Result{Succeeded: true, Text: long}}, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)

	r.HandleUpdate(context.Background(), photo(1, len(jpegBytes)))

	got := bot.messages()
	if len(got) != 1 || !strings.HasSuffix(got[0], "…") || len(got[0]) > len(msgResult)+maxReplyText+len("…") {
		t.Fatalf("reply not truncated: %d bytes", len(got[0]))
	}
}

func TestHandlePhotoRejections(t *testing.T) {
	t.Run("declared too large", func(t *testing.T) {
		bot := &fakeBot{fileURL: fileServer(t, jpegBytes).URL}
		ext := &fakeExtractor{}
		r := NewRouter(bot, ext, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)
		r.HandleUpdate(context.Background(), photo(1, 6<<20))
		if got := bot.messages(); len(got) != 1 || !strings.Contains(got[0], "Maximum size is 5MB") {
			t.Fatalf("replies = %q", got)
		}
		if len(ext.paths) != 0 {
			t.Fatal("extractor called for oversize photo")
		}
	})

	t.Run("download larger than limit", func(t *testing.T) {
		bot := &fakeBot{fileURL: fileServer(t, make([]byte, 2<<20)).URL}
		r := NewRouter(bot, &fakeExtractor{}, upload.NewReceiver(t.TempDir(), 1<<20, nil), nil)
		r.HandleUpdate(context.Background(), photo(1, 0))
		if got := bot.messages(); len(got) != 1 || !strings.Contains(got[0], "File too large") {
			t.Fatalf("replies = %q", got)
		}
	})

	t.Run("pdf document", func(t *testing.T) {
		bot := &fakeBot{}
		r := NewRouter(bot, &fakeExtractor{}, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)
		r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
			Chat:     &tgbotapi.Chat{ID: 1},
			Document: &tgbotapi.Document{FileID: "doc", FileName: "a.pdf", MimeType: "application/pdf"},
		}})
		if got := bot.messages(); len(got) != 1 || got[0] != msgNotImage {
			t.Fatalf("replies = %q", got)
		}
	})

	t.Run("file url unavailable", func(t *testing.T) {
		bot := &fakeBot{}
		r := NewRouter(bot, &fakeExtractor{}, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)
		r.HandleUpdate(context.Background(), photo(1, 10))
		if got := bot.messages(); len(got) != 1 || got[0] != msgFailed {
			t.Fatalf("replies = %q", got)
		}
	})

	t.Run("plain text", func(t *testing.T) {
		bot := &fakeBot{}
		r := NewRouter(bot, &fakeExtractor{}, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)
		r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: 1}, Text: "hi"}})
		if got := bot.messages(); len(got) != 1 || got[0] != msgSendPhoto {
			t.Fatalf("replies = %q", got)
		}
	})
}

func TestHandleDocumentImage(t *testing.T) {
	bot := &fakeBot{fileURL: fileServer(t, []byte("\x89PNG\r\n\x1a\nrest")).URL}
	ext := &fakeExtractor{res: ocr.Result{Succeeded: true, Text: "scan"}}
	r := NewRouter(bot, ext, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)

	r.HandleUpdate(context.Background(), tgbotapi.Update{Message: &tgbotapi.Message{
		Chat:     &tgbotapi.Chat{ID: 1},
		Document: &tgbotapi.Document{FileID: "doc", FileName: "scan.png", MimeType: "image/png", FileSize: 12},
	}})
	if got := bot.messages(); len(got) != 1 || got[0] != msgResult+"scan" {
		t.Fatalf("replies = %q", got)
	}
}

func TestRunPolling(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var offsets []int
	var mu sync.Mutex
	calls := 0
	bot := &fakeBot{}
	bot.updates = func(offset int) ([]tgbotapi.Update, error) {
		mu.Lock()
		defer mu.Unlock()
		offsets = append(offsets, offset)
		calls++
		switch calls {
		case 1:
			u1, u2 := command(1, "/health"), command(2, "/start")
			u1.UpdateID, u2.UpdateID = 10, 11
			return []tgbotapi.Update{u1, u2}, nil
		case 2:
			return nil, errors.New("connection reset")
		default:
			cancel()
			return nil, nil
		}
	}
	r := NewRouter(bot, &fakeExtractor{}, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)

	done := make(chan error, 1)
	go func() { done <- r.Run(ctx, "", "") }()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("Run() did not stop")
	}

	if len(bot.messages()) != 2 {
		t.Fatalf("replies = %q, want 2", bot.messages())
	}
	mu.Lock()
	defer mu.Unlock()
	if offsets[0] != 0 || offsets[1] != 12 {
		t.Fatalf("offsets = %v", offsets)
	}
	if _, ok := bot.requests[0].(tgbotapi.DeleteWebhookConfig); !ok {
		t.Fatalf("polling did not clear webhook first: %T", bot.requests[0])
	}
}

func TestRunWebhookRegisters(t *testing.T) {
	bot := &fakeBot{}
	r := NewRouter(bot, &fakeExtractor{}, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := r.Run(ctx, "https://example.com/", "/webhook/abc"); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	wh, ok := bot.requests[0].(tgbotapi.WebhookConfig)
	if !ok {
		t.Fatalf("request = %T, want WebhookConfig", bot.requests[0])
	}
	if wh.URL.String() != "https://example.com/webhook/abc" || !wh.DropPendingUpdates {
		t.Fatalf("unexpected webhook: %s drop=%v", wh.URL, wh.DropPendingUpdates)
	}
}

func TestWebhookHandler(t *testing.T) {
	bot := &fakeBot{}
	r := NewRouter(bot, &fakeExtractor{}, upload.NewReceiver(t.TempDir(), 5<<20, nil), nil)
	h := r.WebhookHandler()

	body, _ := json.Marshal(command(5, "/health"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/x", strings.NewReader(string(body))))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	r.Wait()
	if got := bot.messages(); len(got) != 1 || got[0] != msgHealth {
		t.Fatalf("replies = %q", got)
	}

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/x", strings.NewReader("{")))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestRetryDelayFromError(t *testing.T) {
	tests := []struct {
		err  error
		want time.Duration
	}{
		{nil, 0},
		{&tgbotapi.Error{Code: 429, ResponseParameters: tgbotapi.ResponseParameters{RetryAfter: 7}}, 7 * time.Second},
		{errors.New("Too Many Requests: retry after 5"), 5 * time.Second},
		{errors.New("too many requests"), 3 * time.Second},
		{fmt.Errorf("get: %w", timeoutErr{}), 2 * time.Second},
		{errors.New("bad gateway"), 1 * time.Second},
	}
	for _, tt := range tests {
		if got := retryDelayFromError(tt.err); got != tt.want {
			t.Errorf("retryDelayFromError(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func TestWebhookPath(t *testing.T) {
	a, b := WebhookPath("123:abc"), WebhookPath("123:abc")
	if a != b || !strings.HasPrefix(a, "/webhook/") || len(a) != len("/webhook/")+16 {
		t.Fatalf("WebhookPath() = %q / %q", a, b)
	}
	if WebhookPath("123:abd") == a {
		t.Fatal("different tokens share a path")
	}
	if strings.Contains(a, "abc") {
		t.Fatal("token leaked into path")
	}
}
