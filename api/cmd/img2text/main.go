package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/sync/errgroup"

	"img2text/api/internal/config"
	"img2text/api/internal/handle"
	"img2text/api/internal/httpserver"
	"img2text/api/internal/ocr"
	"img2text/api/internal/ocr/gemini"
	"img2text/api/internal/ocr/tesseract"
	"img2text/api/internal/ocr/yandex"
	"img2text/api/internal/store"
	"img2text/api/internal/telegram"
	"img2text/api/internal/upload"
)

const purgeInterval = time.Hour

func main() {
	cfg := config.Load()
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	engines := &ocr.Engines{
		Tesseract: tesseract.New(cfg.TesseractLang, cfg.TessdataDir, logger),
		Gemini:    gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel, logger),
		Yandex:    yandex.New(cfg.YCOAuthToken, cfg.YCFolderID, cfg.YandexModel, cfg.YandexLangs, logger),
	}
	engine, err := engines.GetEngine(cfg.OCREngine)
	if err != nil {
		return err
	}

	opts := []ocr.Option{
		ocr.WithConcurrency(cfg.OCRConcurrency),
		ocr.WithTimeout(cfg.OCRTimeout),
		ocr.WithLogger(logger),
	}

	var repo *store.ExtractRepo
	if cfg.DatabaseURL != "" {
		db, err := store.Open(ctx, cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		logger.Info("db connected", "dsn", store.SafeDSNSummary(cfg.DatabaseURL))
		repo = store.NewExtractRepo(db)
		opts = append(opts, ocr.WithCache(repo, cfg.OCRCacheTTL))
	}

	ext := ocr.NewExtractor(engine, opts...)
	uploads := upload.NewReceiver(cfg.UploadDir, cfg.MaxUploadBytes, logger)
	h := handle.New(ext, uploads, cfg.DemoAPIURL, &http.Client{Timeout: cfg.DemoAPITimeout}, logger)

	logger.Info("ocr engine ready",
		"engine", engine.Name(),
		"model", engine.GetModel(),
		"concurrency", cfg.OCRConcurrency,
		"max_upload_bytes", cfg.MaxUploadBytes,
	)

	g, gctx := errgroup.WithContext(ctx)

	var routes []httpserver.Route
	if cfg.TelegramBotToken != "" {
		api, err := tgbotapi.NewBotAPI(cfg.TelegramBotToken)
		if err != nil {
			return fmt.Errorf("telegram: %w", err)
		}
		bot := telegram.NewRouter(api, ext, uploads, logger)
		path := telegram.WebhookPath(cfg.TelegramBotToken)
		if cfg.WebhookURL != "" {
			routes = append(routes, httpserver.Route{Pattern: "POST " + path, Handler: bot.WebhookHandler()})
		}
		logger.Info("telegram bot authorized", "username", api.Self.UserName)
		g.Go(func() error { return bot.Run(gctx, cfg.WebhookURL, path) })
	}

	if repo != nil && cfg.OCRCacheTTL > 0 {
		g.Go(func() error {
			purgeLoop(gctx, repo, cfg.OCRCacheTTL, logger)
			return nil
		})
	}

	srv := httpserver.New(cfg.Addr(), httpserver.NewRouter(h, logger, routes...), logger)
	g.Go(func() error { return srv.Run(gctx) })

	return g.Wait()
}

// purgeLoop drops cache rows older than ttl once an hour.
func purgeLoop(ctx context.Context, repo *store.ExtractRepo, ttl time.Duration, logger *slog.Logger) {
	t := time.NewTicker(purgeInterval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := repo.PurgeOlderThan(ctx, ttl)
			if err != nil {
				logger.Warn("cache purge failed", "error", err)
				continue
			}
			if n > 0 {
				logger.Info("cache purged", "rows", n)
			}
		}
	}
}
