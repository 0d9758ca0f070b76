package httpserver

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/felixge/httpsnoop"
	"github.com/google/uuid"

	"img2text/api/internal/handle"
)

// Recover turns a handler panic into the 500 error envelope.
func Recover(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			msg := fmt.Sprint(rec)
			if err, ok := rec.(error); ok {
				msg = err.Error()
			}
			logger.Error("handler panic", "method", r.Method, "path", r.URL.Path, "error", msg, "stack", string(debug.Stack()))
			handle.WriteJSON(w, http.StatusInternalServerError, handle.ErrorEnvelope{
				Success: false,
				Status:  http.StatusInternalServerError,
				Message: msg,
			})
		}()
		next.ServeHTTP(w, r)
	})
}

// LogRequests logs one line per request and tags it with X-Request-ID.
func LogRequests(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rid := r.Header.Get("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		w.Header().Set("X-Request-ID", rid)

		m := httpsnoop.CaptureMetrics(next, w, r)
		logger.Info("http request",
			"request_id", rid,
			"method", r.Method,
			"path", r.URL.Path,
			"status", m.Code,
			"bytes", m.Written,
			"duration_ms", m.Duration.Milliseconds(),
		)
	})
}
