package vision

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/null12138/AI4LATEX/pkg/anthropic"
)

type anthropicClient struct {
	client anthropic.Client
}

// NewAnthropicClient creates a Client that speaks the Anthropic Messages API.
// baseURL may be empty for the public API.
func NewAnthropicClient(baseURL string) Client {
	var opts []option.RequestOption
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	return &anthropicClient{client: anthropic.NewClient("", opts...)}
}

// newAnthropicClientFrom wraps an existing anthropic.Client.
func newAnthropicClientFrom(c anthropic.Client) Client {
	return &anthropicClient{client: c}
}

func (c *anthropicClient) Complete(ctx context.Context, req Request) (*Response, error) {
	temp := req.Temperature
	resp, err := c.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     req.Model,
		MaxTokens: int64(req.MaxTokens),
		Messages: []anthropic.Message{{
			Content: req.Prompt,
			Images:  []anthropic.Image{{MediaType: CanonicalMediaType(req.MediaType), Data: req.Data}},
		}},
		Temperature: &temp,
		APIKey:      req.Credential,
	})
	if err != nil {
		var apiErr *anthropic.APIError
		if errors.As(err, &apiErr) {
			return nil, &StatusError{StatusCode: apiErr.StatusCode, Message: apiErr.Message}
		}
		return nil, err
	}

	resp.Usage.LogCost(resp.Model, "recognize")

	raw, err := json.Marshal(resp)
	if err != nil {
		return nil, &ParseError{Err: err}
	}
	return &Response{Text: resp.Text(), Raw: raw}, nil
}
