package ocr

import (
	"log/slog"
	"time"
)

// Option configures an Extractor.
type Option func(*Extractor)

// WithConcurrency bounds the number of recognitions running at once.
func WithConcurrency(n int) Option {
	return func(x *Extractor) {
		if n > 0 {
			x.limit = int64(n)
		}
	}
}

// WithTimeout sets a per-recognition deadline. Zero disables it.
func WithTimeout(d time.Duration) Option {
	return func(x *Extractor) { x.timeout = d }
}

// WithCache enables result caching for entries younger than maxAge (0 = any age).
func WithCache(c Cache, maxAge time.Duration) Option {
	return func(x *Extractor) {
		x.cache = c
		x.cacheTTL = maxAge
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(x *Extractor) {
		if l != nil {
			x.logger = l
		}
	}
}
