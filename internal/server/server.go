// Package server exposes recognition over HTTP.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/null12138/AI4LATEX/internal/recognize"
	"github.com/null12138/AI4LATEX/internal/upload"
)

// Recognizer is the recognition operation served by the handler.
type Recognizer interface {
	Recognize(ctx context.Context, req *recognize.Request) (*recognize.Result, error)
	Limits() recognize.Limits
}

// Options configures the handler.
type Options struct {
	// Credential is sent upstream with every request. Empty means every
	// recognition fails with credential_missing.
	Credential  string
	RatePerSec  float64
	Burst       int
	CORSOrigins []string
	Endpoints   []string
	Version     string
}

type handler struct {
	rec  Recognizer
	opts Options
}

// New builds the HTTP handler.
func New(rec Recognizer, opts Options) http.Handler {
	if len(opts.CORSOrigins) == 0 {
		opts.CORSOrigins = []string{"*"}
	}
	h := &handler{rec: rec, opts: opts}

	r := chi.NewRouter()
	r.Use(requestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Content-Type", "Authorization"},
		ExposedHeaders: []string{requestIDHeader},
		MaxAge:         300,
	}))

	r.Get("/", h.describe)
	r.Get("/health", h.health)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		if opts.RatePerSec > 0 {
			burst := opts.Burst
			if burst < 1 {
				burst = 1
			}
			r.Use(rateLimit(rate.NewLimiter(rate.Limit(opts.RatePerSec), burst)))
		}
		r.Post("/", h.recognize)
		r.Post("/api/recognize", h.recognize)
	})

	return r
}

func (h *handler) describe(w http.ResponseWriter, _ *http.Request) {
	limits := h.rec.Limits()
	writeJSON(w, http.StatusOK, map[string]any{
		"service":   "ai4latex",
		"version":   h.opts.Version,
		"endpoints": h.opts.Endpoints,
		"upload": map[string]any{
			"method":        http.MethodPost,
			"field":         upload.FormField,
			"max_bytes":     limits.MaxBytes,
			"allowed_types": limits.AllowedTypes,
		},
	})
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// successResponse is the body of a recognized formula.
type successResponse struct {
	LaTeX    string `json:"latex"`
	Raw      string `json:"raw"`
	Endpoint string `json:"endpoint"`
}

// errorResponse keeps latex and raw populated so simple clients can render
// the message in place of a formula.
type errorResponse struct {
	Error     string `json:"error"`
	ErrorKind string `json:"error_kind"`
	LaTeX     string `json:"latex"`
	Raw       string `json:"raw"`
}

func (h *handler) recognize(w http.ResponseWriter, r *http.Request) {
	log := loggerFrom(r.Context())
	start := time.Now()

	img, err := upload.FromMultipart(w, r, h.rec.Limits())
	if err != nil {
		writeError(w, log, err)
		return
	}
	log.Info("image received",
		zap.String("name", img.Name),
		zap.String("media_type", img.MediaType),
		zap.Int("bytes", len(img.Data)),
		zap.Int("width", img.Width),
		zap.Int("height", img.Height),
	)

	res, err := h.rec.Recognize(r.Context(), img.Request(h.opts.Credential))
	if err != nil {
		writeError(w, log, err)
		return
	}

	log.Info("formula recognized",
		zap.String("endpoint", res.Endpoint),
		zap.Int("attempts", res.Attempts),
		zap.Duration("elapsed", time.Since(start)),
	)
	writeJSON(w, http.StatusOK, successResponse{
		LaTeX:    res.Markup,
		Raw:      res.RawPreview,
		Endpoint: res.Endpoint,
	})
}

// StatusFor maps a recognition error kind to an HTTP status.
func StatusFor(kind recognize.Kind) int {
	switch kind {
	case recognize.KindClientInput:
		return http.StatusBadRequest
	case recognize.KindCredentialMissing:
		return http.StatusInternalServerError
	case recognize.KindUpstreamPermanent:
		return http.StatusBadGateway
	case recognize.KindUpstreamTransient:
		return http.StatusServiceUnavailable
	case recognize.KindProcessingTimeout:
		return http.StatusRequestTimeout
	case recognize.KindContentUnresolved:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func writeError(w http.ResponseWriter, log *zap.Logger, err error) {
	var rerr *recognize.Error
	if !errors.As(err, &rerr) {
		log.Error("unexpected recognition error", zap.Error(err))
		rerr = &recognize.Error{Detail: "internal server error"}
	}

	raw := rerr.Preview
	if raw == "" {
		raw = "error: " + rerr.Detail
	}
	kind := rerr.Kind.String()
	if rerr.Kind == 0 {
		kind = "internal"
	}
	writeJSON(w, StatusFor(rerr.Kind), errorResponse{
		Error:     rerr.Detail,
		ErrorKind: kind,
		LaTeX:     rerr.Detail,
		Raw:       raw,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
