// Package invoke drives recognition requests across a ranked list of
// inference endpoints with a bounded per-endpoint retry budget.
//
// Attempts are strictly sequential: at most one request is in flight per
// invocation, so a struggling upstream never sees speculative parallel load.
package invoke

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/null12138/AI4LATEX/internal/metrics"
	"github.com/null12138/AI4LATEX/pkg/vision"
)

// Endpoint is one candidate upstream. Slice order is failover order.
// A non-empty Model replaces the request's model on this endpoint only.
type Endpoint struct {
	Name   string
	URL    string
	Model  string
	Client vision.Client
}

// Policy bounds the retry loop.
type Policy struct {
	MaxAttempts    int           // per endpoint, including the first
	AttemptTimeout time.Duration // hard cap on a single attempt
}

// DefaultPolicy is 1 initial attempt plus 2 retries, 20 s each.
var DefaultPolicy = Policy{
	MaxAttempts:    3,
	AttemptTimeout: 20 * time.Second,
}

// DefaultDelay is the uniform 1 to 3 second backoff between retries.
var DefaultDelay = RandomDelay{Min: time.Second, Max: 3 * time.Second}

// Result is a successful invocation.
type Result struct {
	Response *vision.Response
	Endpoint Endpoint
	Attempts int
}

// Failure is returned when no endpoint produced a usable response.
// Permanent is set when a client-side (4xx) answer aborted the call.
type Failure struct {
	Permanent  bool
	Reason     string
	StatusCode int
	Body       string
	Endpoint   string
	Attempts   int
}

func (f *Failure) Error() string {
	return "invoke: " + f.Reason
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(e *Engine) {
		e.policy = p
	}
}

// WithDelayer overrides the backoff between retries.
func WithDelayer(d Delayer) Option {
	return func(e *Engine) {
		e.delay = d
	}
}

// Engine holds the static endpoint list. It keeps no per-request state and
// is safe for concurrent use.
type Engine struct {
	endpoints []Endpoint
	policy    Policy
	delay     Delayer
}

// New creates an Engine over endpoints in priority order.
func New(endpoints []Endpoint, opts ...Option) *Engine {
	e := &Engine{
		endpoints: endpoints,
		policy:    DefaultPolicy,
		delay:     DefaultDelay,
	}
	for _, o := range opts {
		o(e)
	}
	if e.policy.MaxAttempts < 1 {
		e.policy.MaxAttempts = 1
	}
	if e.policy.AttemptTimeout <= 0 {
		e.policy.AttemptTimeout = DefaultPolicy.AttemptTimeout
	}
	return e
}

// Endpoints returns the configured endpoints.
func (e *Engine) Endpoints() []Endpoint {
	return e.endpoints
}

// Invoke runs req against each endpoint in order until one succeeds, a
// terminal failure aborts the call, or every endpoint has used its budget.
// The overall time budget is ctx's deadline. req is never modified.
func (e *Engine) Invoke(ctx context.Context, req *vision.Request) (*Result, error) {
	log := zap.L().With(zap.String("component", "invoke"))

	var last *Outcome
	var lastEndpoint string
	total := 0

endpoints:
	for i, ep := range e.endpoints {
		for attempt := 1; ; attempt++ {
			if attempt > 1 {
				if err := e.delay.Delay(ctx); err != nil {
					return nil, cancelled(ctx, last, total)
				}
			}
			if ctx.Err() != nil {
				return nil, cancelled(ctx, last, total)
			}

			total++
			start := time.Now()
			out := e.attempt(ctx, ep, req)
			elapsed := time.Since(start)

			metrics.AttemptsTotal.WithLabelValues(ep.Name, out.Label).Inc()
			metrics.AttemptDuration.WithLabelValues(ep.Name).Observe(elapsed.Seconds())

			fields := []zap.Field{
				zap.String("endpoint", ep.Name),
				zap.Int("endpoint_index", i+1),
				zap.Int("attempt", attempt),
				zap.String("outcome", out.Label),
				zap.Duration("latency", elapsed),
			}
			if out.StatusCode != 0 {
				fields = append(fields, zap.Int("status", out.StatusCode))
			}

			if ctx.Err() != nil && out.Kind != OutcomeSuccess {
				log.Warn("invoke: cancelled during attempt", fields...)
				return nil, cancelled(ctx, &out, total)
			}

			switch Next(out.Kind, attempt, e.policy.MaxAttempts) {
			case Succeed:
				log.Info("invoke: attempt succeeded", fields...)
				return &Result{Response: out.Response, Endpoint: ep, Attempts: total}, nil
			case Abort:
				log.Warn("invoke: terminal failure, aborting", append(fields, zap.String("reason", out.Reason))...)
				return nil, &Failure{
					Permanent:  true,
					Reason:     out.Reason,
					StatusCode: out.StatusCode,
					Body:       out.Body,
					Endpoint:   ep.Name,
					Attempts:   total,
				}
			case Retry:
				log.Warn("invoke: retryable failure", append(fields, zap.String("reason", out.Reason))...)
				last, lastEndpoint = &out, ep.Name
			case NextEndpoint:
				log.Warn("invoke: endpoint exhausted", append(fields, zap.String("reason", out.Reason))...)
				last, lastEndpoint = &out, ep.Name
				continue endpoints
			}
		}
	}

	if last == nil {
		log.Error("invoke: no endpoint attempted")
		return nil, &Failure{Reason: "all endpoints unreachable", Attempts: total}
	}

	log.Error("invoke: all endpoints failed",
		zap.Int("attempts", total),
		zap.String("reason", last.Reason),
	)
	return nil, &Failure{
		Reason:     last.Reason,
		StatusCode: last.StatusCode,
		Body:       last.Body,
		Endpoint:   lastEndpoint,
		Attempts:   total,
	}
}

// attempt runs one call under the per-attempt timeout. The deferred cancel
// releases the in-flight request before the next attempt starts.
func (e *Engine) attempt(ctx context.Context, ep Endpoint, req *vision.Request) Outcome {
	actx, cancel := context.WithTimeout(ctx, e.policy.AttemptTimeout)
	defer cancel()

	r := *req
	if ep.Model != "" {
		r.Model = ep.Model
	}
	resp, err := ep.Client.Complete(actx, r)
	return Classify(resp, err, actx.Err())
}

func cancelled(ctx context.Context, last *Outcome, attempts int) error {
	if last == nil {
		return eris.Wrapf(ctx.Err(), "invoke: cancelled after %d attempts", attempts)
	}
	return eris.Wrapf(ctx.Err(), "invoke: cancelled after %d attempts (last: %s)", attempts, last.Reason)
}
