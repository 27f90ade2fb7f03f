package api

import (
	"fmt"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/bobarin/shortform/internal/apperr"
	"github.com/bobarin/shortform/internal/logging"
)

const correlationHeader = "X-Correlation-ID"

// Correlation assigns every request a fresh correlation id, stores it in the
// request context and echoes it in the X-Correlation-ID response header.
func Correlation(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := logging.NewCorrelationID()
		w.Header().Set(correlationHeader, id)
		next.ServeHTTP(w, r.WithContext(logging.WithCorrelationID(r.Context(), id)))
	})
}

// RequestLogger logs one structured line per request.
func RequestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		logging.FromContext(r.Context()).Info("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// Recover turns a handler panic into the usual JSON error body with status 500.
func Recover(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rvr := recover()
			if rvr == nil {
				return
			}
			if rvr == http.ErrAbortHandler {
				panic(rvr)
			}

			logging.FromContext(r.Context()).Error("handler panicked",
				"panic", rvr,
				"stack", string(debug.Stack()),
			)
			err := apperr.Internal("unexpected server error", fmt.Errorf("panic: %v", rvr))
			respondAppError(w, apperr.WithCorrelation(err, logging.CorrelationID(r.Context())))
		}()

		next.ServeHTTP(w, r)
	})
}
