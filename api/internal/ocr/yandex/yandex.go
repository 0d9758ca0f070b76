// Package yandex recognizes text with the Yandex Cloud Vision OCR API.
package yandex

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"img2text/api/internal/ocr"
	"img2text/api/internal/util"
)

const defaultOCRURL = "https://ocr.api.cloud.yandex.net/ocr/v1/recognizeText"

type Engine struct {
	iam      *IamClient
	folderID string
	model    string
	langs    []string
	url      string
	httpc    *http.Client
	logger   *slog.Logger
}

// New builds the engine. model is a Vision OCR model such as "page" or
// "handwritten"; langs are ISO codes, "*" meaning auto-detect.
func New(oauthToken, folderID, model string, langs []string, logger *slog.Logger) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(model) == "" {
		model = "page"
	}
	if len(langs) == 0 {
		langs = []string{"*"}
	}
	httpc := &http.Client{Timeout: 60 * time.Second}
	var iam *IamClient
	if t := strings.TrimSpace(oauthToken); t != "" {
		iam = NewIamClient(t, httpc)
	}
	return &Engine{
		iam:      iam,
		folderID: strings.TrimSpace(folderID),
		model:    model,
		langs:    langs,
		url:      defaultOCRURL,
		httpc:    httpc,
		logger:   logger,
	}
}

func (e *Engine) Name() string     { return "yandex" }
func (e *Engine) GetModel() string { return e.model }

type request struct {
	Content       string   `json:"content"`
	MimeType      string   `json:"mimeType"`
	LanguageCodes []string `json:"languageCodes,omitempty"`
	Model         string   `json:"model,omitempty"`
}

type textAnnotation struct {
	FullText string `json:"fullText"`
	Blocks   []struct {
		Lines []struct {
			Text string `json:"text"`
		} `json:"lines"`
	} `json:"blocks"`
}

type response struct {
	Result *struct {
		TextAnnotation *textAnnotation `json:"textAnnotation"`
	} `json:"result"`
}

func (e *Engine) Recognize(ctx context.Context, path string) (string, error) {
	if e.iam == nil || e.folderID == "" {
		return "", fmt.Errorf("%w: YC_OAUTH_TOKEN and YC_FOLDER_ID are required", ocr.ErrEngineUnavailable)
	}
	img, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("yandex: read image: %w", err)
	}
	payload, _ := json.Marshal(request{
		Content:       base64.StdEncoding.EncodeToString(img),
		MimeType:      apiMime(util.SniffMimeHTTP(img)),
		LanguageCodes: e.langs,
		Model:         e.model,
	})

	resp, err := e.post(ctx, payload)
	if err == nil && resp.StatusCode == http.StatusUnauthorized {
		// one retry with a fresh IAM token
		resp.Body.Close()
		e.logger.Debug("yandex iam token rejected, refreshing")
		e.iam.Invalidate()
		resp, err = e.post(ctx, payload)
	}
	if err != nil {
		return "", fmt.Errorf("yandex: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		x, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("yandex ocr %d: %s", resp.StatusCode, strings.TrimSpace(string(x)))
	}
	var out response
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("yandex: decode: %w", err)
	}
	return out.text(), nil
}

func (e *Engine) post(ctx context.Context, payload []byte) (*http.Response, error) {
	token, err := e.iam.Token(ctx)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.url, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("x-folder-id", e.folderID)
	req.Header.Set("x-data-logging-enabled", "false")
	return e.httpc.Do(req)
}

// text prefers the full text and falls back to joining block lines.
func (r *response) text() string {
	if r == nil || r.Result == nil || r.Result.TextAnnotation == nil {
		return ""
	}
	ta := r.Result.TextAnnotation
	if t := strings.TrimSpace(ta.FullText); t != "" {
		return t
	}
	var lines []string
	for _, b := range ta.Blocks {
		for _, l := range b.Lines {
			if s := strings.TrimSpace(l.Text); s != "" {
				lines = append(lines, s)
			}
		}
	}
	return strings.Join(lines, "\n")
}

func apiMime(m string) string {
	switch m {
	case "image/png":
		return "PNG"
	default:
		return "JPEG"
	}
}
