package handle

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"img2text/api/internal/ocr"
	"img2text/api/internal/upload"
)

const (
	MsgExtracted   = "Image text extracted successfully"
	MsgNoFile      = "No file uploaded. Only jpg and png types accepted"
	MsgUnknown     = "Unknown error occured"
	MsgLive        = "API is Live!"
	MsgDemoCalled  = "Demo API called (httpbin.org)"
	MsgDemoFailed  = "Failed to call external API"
	MsgRouteAbsent = "API route does not exist"
)

// Extractor is the part of ocr.Extractor the handlers need.
type Extractor interface {
	Extract(ctx context.Context, path string) ocr.Result
}

type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

type ExtractResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    string `json:"data"`
}

// ErrorEnvelope is written for faults that escape a handler.
type ErrorEnvelope struct {
	Success bool   `json:"success"`
	Status  int    `json:"status"`
	Message string `json:"message"`
}

type LiveResponse struct {
	Message string `json:"message"`
}

type DemoResponse struct {
	Message string `json:"message"`
	Data    int    `json:"data"`
}

type DemoError struct {
	Error string `json:"error"`
}

type Handle struct {
	ext     Extractor
	uploads *upload.Receiver
	demoURL string
	httpc   *http.Client
	logger  *slog.Logger
}

func New(ext Extractor, uploads *upload.Receiver, demoURL string, httpc *http.Client, logger *slog.Logger) *Handle {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Handle{
		ext:     ext,
		uploads: uploads,
		demoURL: demoURL,
		httpc:   httpc,
		logger:  logger,
	}
}

func WriteJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func fail(msg string) Envelope { return Envelope{Success: false, Message: msg} }
