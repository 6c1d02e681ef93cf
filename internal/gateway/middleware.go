package gateway

import (
	"net/http"
	"time"

	"fermata/internal/shared"
)

// statusRecorder captures the response status for request logging.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

// logRequests writes one line per request through a child logger, debug for
// normal traffic and warn for server errors. Every response carries an
// X-Request-ID, minted here when the client sent none.
func (g *Gateway) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := r.Header.Get("X-Request-ID")
		if id == "" {
			id = shared.GenerateID()
		}
		w.Header().Set("X-Request-ID", id)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		logger := g.logger.With("id", id, "method", r.Method, "path", r.URL.Path, "status", rec.status, "elapsed", time.Since(start))
		if rec.status >= http.StatusInternalServerError {
			logger.Warn("request failed")
		} else {
			logger.Debug("request served")
		}
	})
}

// recoverPanics turns a handler panic into a 500 envelope instead of tearing
// down the whole gateway.
func (g *Gateway) recoverPanics(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				g.logger.Error("handler panicked", "path", r.URL.Path, "panic", rec)
				writeError(w, http.StatusInternalServerError, "internal error")
			}
		}()

		next.ServeHTTP(w, r)
	})
}
