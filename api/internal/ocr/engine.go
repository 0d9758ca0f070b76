package ocr

import (
	"context"
	"errors"
	"strings"
)

var ErrEngineUnavailable = errors.New("ocr engine unavailable")

// Engine recognizes text in an image file on local disk.
type Engine interface {
	Name() string
	GetModel() string
	Recognize(ctx context.Context, path string) (string, error)
}

type Engines struct {
	Tesseract Engine
	Gemini    Engine
	Yandex    Engine
}

// GetEngine resolves an engine by its configured name.
func (e *Engines) GetEngine(name string) (Engine, error) {
	var eng Engine
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "tesseract":
		eng = e.Tesseract
	case "gemini":
		eng = e.Gemini
	case "yandex":
		eng = e.Yandex
	default:
		return nil, errors.New("unknown ocr engine; use 'tesseract', 'gemini' or 'yandex'")
	}
	if eng == nil {
		return nil, ErrEngineUnavailable
	}
	return eng, nil
}
