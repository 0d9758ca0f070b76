package ocr

import (
	"context"
	"time"
)

// Result is the outcome of one extraction. Text is only meaningful when Succeeded.
type Result struct {
	Succeeded bool
	Text      string
}

// Cache stores recognized text keyed by image content, engine and model.
// A miss is reported as a non-nil error.
type Cache interface {
	Find(ctx context.Context, imageHash, engine, model string, maxAge time.Duration) (string, error)
	Upsert(ctx context.Context, imageHash, engine, model, text string) error
}
