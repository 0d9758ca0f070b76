package ocr

import (
	"context"
	"fmt"
	"log/slog"
	"runtime"
	"time"

	"golang.org/x/sync/semaphore"

	"img2text/api/internal/util"
)

// Extractor runs an Engine with admission control and folds every failure into
// an unsuccessful Result. Callers never see engine errors.
type Extractor struct {
	engine   Engine
	limit    int64
	sem      *semaphore.Weighted
	timeout  time.Duration
	cache    Cache
	cacheTTL time.Duration
	logger   *slog.Logger
}

func NewExtractor(engine Engine, opts ...Option) *Extractor {
	x := &Extractor{
		engine: engine,
		limit:  int64(runtime.NumCPU()),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(x)
	}
	x.sem = semaphore.NewWeighted(x.limit)
	return x
}

func (x *Extractor) Engine() Engine { return x.engine }

type outcome struct {
	text string
	err  error
}

// Extract recognizes the text in the image at path.
func (x *Extractor) Extract(ctx context.Context, path string) Result {
	start := time.Now()
	log := x.logger.With("engine", x.engine.Name(), "path", path)

	hash := x.imageHash(log, path)
	if text, ok := x.lookup(ctx, log, hash); ok {
		return Result{Succeeded: true, Text: text}
	}

	if err := x.sem.Acquire(ctx, 1); err != nil {
		log.Warn("ocr admission cancelled", "error", err)
		return Result{}
	}

	rctx, cancel := ctx, context.CancelFunc(func() {})
	if x.timeout > 0 {
		rctx, cancel = context.WithTimeout(ctx, x.timeout)
	}
	defer cancel()

	// The slot is released when the engine returns, not when we stop waiting,
	// so abandoned recognitions still count against the limit.
	done := make(chan outcome, 1)
	go func() {
		defer x.sem.Release(1)
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("engine panic: %v", r)}
			}
		}()
		text, err := x.engine.Recognize(rctx, path)
		done <- outcome{text: text, err: err}
	}()

	var out outcome
	select {
	case out = <-done:
	case <-rctx.Done():
		out.err = rctx.Err()
	}
	dur := time.Since(start)

	if out.err != nil {
		log.Warn("ocr failed", "error", out.err, "duration_ms", dur.Milliseconds())
		return Result{}
	}
	log.Info("ocr done", "chars", len(out.text), "duration_ms", dur.Milliseconds())

	x.remember(ctx, log, hash, out.text)
	return Result{Succeeded: true, Text: out.text}
}

func (x *Extractor) imageHash(log *slog.Logger, path string) string {
	if x.cache == nil {
		return ""
	}
	h, err := util.FileSHA256(path)
	if err != nil {
		log.Debug("ocr cache skipped", "error", err)
		return ""
	}
	return h
}

func (x *Extractor) lookup(ctx context.Context, log *slog.Logger, hash string) (string, bool) {
	if hash == "" {
		return "", false
	}
	text, err := x.cache.Find(ctx, hash, x.engine.Name(), x.engine.GetModel(), x.cacheTTL)
	if err != nil {
		log.Debug("ocr cache miss", "hash", hash, "error", err)
		return "", false
	}
	log.Info("ocr cache hit", "hash", hash)
	return text, true
}

func (x *Extractor) remember(ctx context.Context, log *slog.Logger, hash, text string) {
	if hash == "" {
		return
	}
	if err := x.cache.Upsert(ctx, hash, x.engine.Name(), x.engine.GetModel(), text); err != nil {
		log.Warn("ocr cache write failed", "hash", hash, "error", err)
	}
}
