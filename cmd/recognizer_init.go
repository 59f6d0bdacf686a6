package main

import (
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/null12138/AI4LATEX/internal/config"
	"github.com/null12138/AI4LATEX/internal/invoke"
	"github.com/null12138/AI4LATEX/internal/recognize"
	"github.com/null12138/AI4LATEX/pkg/vision"
)

// buildEndpoints creates one upstream client per configured endpoint,
// preserving failover order.
func buildEndpoints(c *config.Config) []invoke.Endpoint {
	eps := make([]invoke.Endpoint, 0, len(c.Vision.Endpoints))
	for _, ep := range c.Vision.Endpoints {
		var client vision.Client
		switch ep.Provider {
		case "anthropic":
			client = vision.NewAnthropicClient(ep.URL)
		default:
			client = vision.NewChatClient(ep.URL, vision.WithUserAgent("ai4latex/"+version))
		}
		eps = append(eps, invoke.Endpoint{Name: ep.Name, URL: ep.URL, Model: ep.Model, Client: client})
	}
	return eps
}

// initRecognizer validates c and wires the engine and recognizer.
func initRecognizer(c *config.Config) (*recognize.Recognizer, error) {
	if err := c.Validate(); err != nil {
		return nil, eris.Wrap(err, "init recognizer")
	}

	eps := buildEndpoints(c)
	engine := invoke.New(eps,
		invoke.WithPolicy(invoke.Policy{
			MaxAttempts:    c.Retry.MaxAttempts,
			AttemptTimeout: c.Retry.AttemptTimeout(),
		}),
		invoke.WithDelayer(invoke.RandomDelay{
			Min: time.Duration(c.Retry.BackoffMinMs) * time.Millisecond,
			Max: time.Duration(c.Retry.BackoffMaxMs) * time.Millisecond,
		}),
	)

	zap.L().Info("recognizer initialized",
		zap.Strings("endpoints", endpointNames(c)),
		zap.String("model", c.Vision.Model),
		zap.Int("max_attempts", c.Retry.MaxAttempts),
	)

	return recognize.New(engine, recognize.Config{
		Model:       c.Vision.Model,
		MaxTokens:   c.Vision.MaxTokens,
		Temperature: c.Vision.Temperature,
		Budget:      c.Recognize.Budget(),
		Limits: recognize.Limits{
			MaxBytes:     c.Recognize.MaxUploadBytes,
			AllowedTypes: c.Recognize.AllowedTypes,
		},
	}), nil
}

func endpointNames(c *config.Config) []string {
	names := make([]string, len(c.Vision.Endpoints))
	for i, ep := range c.Vision.Endpoints {
		names[i] = ep.Name
	}
	return names
}
