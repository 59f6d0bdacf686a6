// Package recognize composes the invocation engine and the normalizer into
// a single image-to-LaTeX operation with a caller-visible error taxonomy.
package recognize

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/null12138/AI4LATEX/internal/invoke"
	"github.com/null12138/AI4LATEX/internal/metrics"
	"github.com/null12138/AI4LATEX/internal/normalize"
	"github.com/null12138/AI4LATEX/pkg/vision"
)

const (
	// DefaultBudget bounds a whole recognition end to end.
	DefaultBudget = 90 * time.Second

	maxRawPreview = 1000
)

// Invoker runs a request across the configured endpoints.
type Invoker interface {
	Invoke(ctx context.Context, req *vision.Request) (*invoke.Result, error)
}

// Config holds the per-request upstream parameters.
type Config struct {
	Model       string
	MaxTokens   int
	Temperature float64
	Budget      time.Duration
	Limits      Limits
	Prompt      string
}

// Result is a successful recognition.
type Result struct {
	Markup     string `json:"latex" yaml:"latex"`
	RawPreview string `json:"raw" yaml:"raw"`
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	Attempts   int    `json:"attempts" yaml:"attempts"`
}

// Recognizer is safe for concurrent use.
type Recognizer struct {
	invoker Invoker
	cfg     Config
}

// New creates a Recognizer. Zero-valued config fields take defaults.
func New(invoker Invoker, cfg Config) *Recognizer {
	if cfg.Budget <= 0 {
		cfg.Budget = DefaultBudget
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 500
	}
	if cfg.Prompt == "" {
		cfg.Prompt = Prompt
	}
	cfg.Limits = cfg.Limits.WithDefaults()
	return &Recognizer{invoker: invoker, cfg: cfg}
}

// Limits returns the effective upload limits.
func (r *Recognizer) Limits() Limits {
	return r.cfg.Limits
}

// Recognize validates req, invokes the upstream chain under the overall
// budget and normalizes the reply. Failures are returned as *Error.
func (r *Recognizer) Recognize(ctx context.Context, req *Request) (*Result, error) {
	start := time.Now()
	log := zap.L().With(zap.String("component", "recognize"))

	res, err := r.recognize(ctx, req)
	metrics.RecognitionDuration.Observe(time.Since(start).Seconds())

	if err != nil {
		var rerr *Error
		if errors.As(err, &rerr) {
			metrics.RecognitionsTotal.WithLabelValues(rerr.Kind.String()).Inc()
			log.Warn("recognition failed",
				zap.String("kind", rerr.Kind.String()),
				zap.String("detail", rerr.Detail),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
		return nil, err
	}

	metrics.RecognitionsTotal.WithLabelValues("success").Inc()
	log.Info("recognition succeeded",
		zap.String("endpoint", res.Endpoint),
		zap.Int("attempts", res.Attempts),
		zap.Int("latex_len", len(res.Markup)),
		zap.Duration("elapsed", time.Since(start)),
	)
	return res, nil
}

func (r *Recognizer) recognize(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(r.cfg.Limits); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, r.cfg.Budget)
	defer cancel()

	res, err := r.invoker.Invoke(ctx, &vision.Request{
		Credential:  req.Credential,
		Model:       r.cfg.Model,
		Prompt:      r.cfg.Prompt,
		MediaType:   vision.CanonicalMediaType(req.MediaType),
		Data:        req.Payload,
		MaxTokens:   r.cfg.MaxTokens,
		Temperature: r.cfg.Temperature,
	})
	if err != nil {
		return nil, r.classify(ctx, err)
	}

	preview := rawPreview(res.Response.Raw)
	formula := normalize.Extract(res.Response)
	if !formula.Confident {
		return nil, &Error{Kind: KindContentUnresolved, Detail: formula.Text, Preview: preview}
	}

	return &Result{
		Markup:     formula.Text,
		RawPreview: preview,
		Endpoint:   res.Endpoint.Name,
		Attempts:   res.Attempts,
	}, nil
}

func (r *Recognizer) classify(ctx context.Context, err error) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return newError(KindProcessingTimeout, "processing exceeded %s budget", r.cfg.Budget)
	}

	var f *invoke.Failure
	if errors.As(err, &f) {
		kind := KindUpstreamTransient
		if f.Permanent {
			kind = KindUpstreamPermanent
		}
		return &Error{Kind: kind, Detail: f.Reason, Preview: f.Body}
	}
	return newError(KindUpstreamTransient, "request cancelled")
}

// rawPreview pretty-prints the upstream body when it is JSON and truncates
// it for display.
func rawPreview(raw []byte) string {
	if len(raw) == 0 {
		return ""
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return vision.Truncate(string(raw), maxRawPreview)
	}
	return vision.Truncate(buf.String(), maxRawPreview)
}
