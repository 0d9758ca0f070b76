package config

import (
	"log/slog"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const (
	DefaultPort           = "3000"
	DefaultMaxUploadBytes = int64(5 << 20) // 5 MiB
	DefaultDemoAPIURL     = "https://httpbin.org/get"
)

type Config struct {
	Port     string
	LogLevel slog.Level

	UploadDir      string
	MaxUploadBytes int64

	OCREngine      string // "tesseract" | "gemini"
	TesseractLang  string
	TessdataDir    string
	OCRConcurrency int
	OCRTimeout     time.Duration // 0 = no deadline

	GeminiAPIKey string
	GeminiModel  string

	YCOAuthToken string
	YCFolderID   string
	YandexModel  string
	YandexLangs  []string

	DatabaseURL string
	OCRCacheTTL time.Duration

	DemoAPIURL     string
	DemoAPITimeout time.Duration

	TelegramBotToken string
	WebhookURL       string
}

func getEnv(k, def string) string {
	if v := strings.TrimSpace(os.Getenv(k)); v != "" {
		return v
	}
	return def
}

func getEnvAsInt(k string, def int) int {
	if v, err := strconv.Atoi(getEnv(k, "")); err == nil {
		return v
	}
	return def
}

func getEnvAsInt64(k string, def int64) int64 {
	if v, err := strconv.ParseInt(getEnv(k, ""), 10, 64); err == nil {
		return v
	}
	return def
}

func getEnvAsList(k string, def []string) []string {
	v := getEnv(k, "")
	if v == "" {
		return def
	}
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return def
	}
	return out
}

func getEnvAsDuration(k string, def time.Duration) time.Duration {
	if v, err := time.ParseDuration(getEnv(k, "")); err == nil {
		return v
	}
	return def
}

func parseLevel(s string) slog.Level {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(s)); err != nil {
		return slog.LevelInfo
	}
	return lvl
}

// Load reads the configuration from the environment. Every value has a default,
// so a bare `PORT=3000` process starts with the tesseract engine and no cache.
func Load() *Config {
	cfg := &Config{
		Port:     getEnv("PORT", DefaultPort),
		LogLevel: parseLevel(getEnv("LOG_LEVEL", "info")),

		UploadDir:      getEnv("UPLOAD_DIR", os.TempDir()),
		MaxUploadBytes: getEnvAsInt64("MAX_UPLOAD_BYTES", DefaultMaxUploadBytes),

		OCREngine:      strings.ToLower(getEnv("OCR_ENGINE", "tesseract")),
		TesseractLang:  getEnv("TESSERACT_LANG", "eng"),
		TessdataDir:    getEnv("TESSDATA_PREFIX", ""),
		OCRConcurrency: getEnvAsInt("OCR_CONCURRENCY", runtime.NumCPU()),
		OCRTimeout:     getEnvAsDuration("OCR_TIMEOUT", 0),

		GeminiAPIKey: getEnv("GEMINI_API_KEY", ""),
		GeminiModel:  getEnv("GEMINI_MODEL", "gemini-2.5-flash"),

		YCOAuthToken: getEnv("YC_OAUTH_TOKEN", ""),
		YCFolderID:   getEnv("YC_FOLDER_ID", ""),
		YandexModel:  getEnv("YANDEX_OCR_MODEL", "page"),
		YandexLangs:  getEnvAsList("YANDEX_OCR_LANGS", []string{"*"}),

		DatabaseURL: getEnv("DATABASE_URL", ""),
		OCRCacheTTL: getEnvAsDuration("OCR_CACHE_TTL", 24*time.Hour),

		DemoAPIURL:     getEnv("DEMO_API_URL", DefaultDemoAPIURL),
		DemoAPITimeout: getEnvAsDuration("DEMO_API_TIMEOUT", 10*time.Second),

		TelegramBotToken: getEnv("TELEGRAM_BOT_TOKEN", ""),
		WebhookURL:       getEnv("WEBHOOK_URL", ""),
	}
	if cfg.OCRConcurrency < 1 {
		cfg.OCRConcurrency = 1
	}
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = DefaultMaxUploadBytes
	}
	return cfg
}

// Addr is the listen address for the HTTP server.
func (c *Config) Addr() string { return "0.0.0.0:" + c.Port }
