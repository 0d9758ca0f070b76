package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"img2text/api/internal/handle"
)

const shutdownTimeout = 10 * time.Second

// Route is an extra pattern mounted next to the API routes.
type Route struct {
	Pattern string
	Handler http.Handler
}

// NewRouter wires the API routes. Anything unmatched, for any method, gets the
// 404 envelope.
func NewRouter(h *handle.Handle, logger *slog.Logger, extra ...Route) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", h.Root)
	mux.HandleFunc("GET /api", h.DemoAPI)
	mux.HandleFunc("POST /extract-text", h.ExtractText)
	mux.HandleFunc("GET /docs", h.Docs)
	mux.HandleFunc("GET /docs/openapi.json", h.OpenAPI)
	for _, rt := range extra {
		mux.Handle(rt.Pattern, rt.Handler)
	}
	mux.HandleFunc("/", h.NotFound)

	return LogRequests(logger, Recover(logger, mux))
}

type Server struct {
	srv    *http.Server
	logger *slog.Logger
}

func New(addr string, h http.Handler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		srv: &http.Server{
			Addr:              addr,
			Handler:           h,
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", s.srv.Addr)
		errc <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		s.logger.Info("http server shutting down")
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return s.srv.Shutdown(sctx)
	}
}
