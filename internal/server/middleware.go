package server

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/null12138/AI4LATEX/internal/metrics"
)

const requestIDHeader = "X-Request-ID"

type loggerKey struct{}

// requestID tags each request with an ID and a logger that carries it.
// A well-formed inbound X-Request-ID is reused.
func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		w.Header().Set(requestIDHeader, id)

		log := zap.L().With(
			zap.String("component", "server"),
			zap.String("request_id", id),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
		)
		ctx := context.WithValue(r.Context(), loggerKey{}, log)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func loggerFrom(ctx context.Context) *zap.Logger {
	if log, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return log
	}
	return zap.L()
}

// rateLimit rejects requests beyond the token bucket with 429.
func rateLimit(l *rate.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !l.Allow() {
				metrics.RateLimitedTotal.Inc()
				loggerFrom(r.Context()).Warn("rate limited")
				w.Header().Set("Retry-After", "1")
				writeJSON(w, http.StatusTooManyRequests, errorResponse{
					Error:     "too many requests, please retry shortly",
					ErrorKind: "rate_limited",
					LaTeX:     "too many requests, please retry shortly",
					Raw:       "error: too many requests",
				})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
