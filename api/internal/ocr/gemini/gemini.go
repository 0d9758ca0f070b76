package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"img2text/api/internal/ocr"
	"img2text/api/internal/util"
)

const systemPrompt = `You are an OCR engine. Transcribe every piece of text visible in the image exactly as written.
Keep the original line breaks and reading order. Do not translate, summarize, correct or explain.
If the image contains no text, answer with an empty string. Output only the transcribed text.`

const maxAttempts = 3

type Engine struct {
	APIKey string
	Model  string
	logger *slog.Logger
}

func New(apiKey, model string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		APIKey: strings.TrimSpace(apiKey),
		Model:  strings.TrimSpace(model),
		logger: logger,
	}
}

func (e *Engine) Name() string     { return "gemini" }
func (e *Engine) GetModel() string { return e.Model }

func (e *Engine) Recognize(ctx context.Context, path string) (string, error) {
	if e.APIKey == "" {
		return "", fmt.Errorf("%w: GEMINI_API_KEY is empty", ocr.ErrEngineUnavailable)
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("gemini: read image: %w", err)
	}

	cl, err := genai.NewClient(ctx, option.WithAPIKey(e.APIKey))
	if err != nil {
		return "", fmt.Errorf("gemini: new client: %w", err)
	}
	defer cl.Close()

	m := cl.GenerativeModel(e.Model)
	m.GenerationConfig = genai.GenerationConfig{
		Temperature: ptrFloat32(0),
	}
	m.SystemInstruction = &genai.Content{
		Parts: []genai.Part{genai.Text(systemPrompt)},
	}

	parts := []genai.Part{
		genai.Text("Transcribe the text in this image."),
		genai.Blob{MIMEType: util.SniffMimeHTTP(img), Data: img},
	}

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		resp, err := m.GenerateContent(ctx, parts...)
		if err == nil {
			return util.StripCodeFences(firstText(resp)), nil
		}
		lastErr = err
		if !retryable(err) || attempt == maxAttempts {
			break
		}
		e.logger.Debug("gemini retry", "attempt", attempt, "error", err)
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-time.After(time.Duration(attempt) * 300 * time.Millisecond):
		}
	}
	return "", fmt.Errorf("gemini: generate: %w", lastErr)
}

// retryable reports transient API failures: HTTP 429/5xx or their gRPC equivalents.
func retryable(err error) bool {
	var gerr *googleapi.Error
	if errors.As(err, &gerr) {
		return gerr.Code == 429 || gerr.Code >= 500
	}
	switch status.Code(err) {
	case codes.ResourceExhausted, codes.Unavailable, codes.Internal:
		return true
	}
	return false
}

func firstText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	for _, c := range resp.Candidates {
		if c.Content == nil {
			continue
		}
		var b strings.Builder
		for _, p := range c.Content.Parts {
			if t, ok := p.(genai.Text); ok {
				b.WriteString(string(t))
			}
		}
		if b.Len() > 0 {
			return b.String()
		}
	}
	return ""
}

func ptrFloat32(v float32) *float32 { return &v }
