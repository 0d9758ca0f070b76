// Package tesseract recognizes text with the Tesseract library through gosseract.
package tesseract

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/otiai10/gosseract/v2"
)

// Engine implements ocr.Engine. Each call uses its own client, so calls may run
// in parallel; the caller is responsible for bounding them.
type Engine struct {
	lang          string
	tessdataDir   string
	clientFactory func() *gosseract.Client
	logger        *slog.Logger
}

func New(lang, tessdataDir string, logger *slog.Logger) *Engine {
	if lang == "" {
		lang = "eng"
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		lang:          lang,
		tessdataDir:   tessdataDir,
		clientFactory: gosseract.NewClient,
		logger:        logger,
	}
}

func (e *Engine) Name() string     { return "tesseract" }
func (e *Engine) GetModel() string { return e.lang }

// Version reports the linked libtesseract version.
func (e *Engine) Version() string { return gosseract.Version() }

// Recognize runs OCR on the image at path. gosseract cannot be interrupted, so
// ctx is only checked before the work starts.
func (e *Engine) Recognize(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	c := e.clientFactory()
	defer func() { _ = c.Close() }()

	if e.tessdataDir != "" {
		if err := c.SetTessdataPrefix(e.tessdataDir); err != nil {
			return "", fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if err := c.SetLanguage(e.lang); err != nil {
		return "", fmt.Errorf("set language: %w", err)
	}
	if err := c.SetImage(path); err != nil {
		return "", fmt.Errorf("set image: %w", err)
	}
	e.logger.Debug("tesseract recognizing", "path", path, "lang", e.lang)

	text, err := c.Text()
	if err != nil {
		return "", fmt.Errorf("recognize text: %w", err)
	}
	return strings.TrimSpace(text), nil
}
