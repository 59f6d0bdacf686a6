// Package vision provides clients for multi-modal inference endpoints that
// read an inline image and answer with text.
package vision

import (
	"context"
	"fmt"
	"strings"
)

// Client sends a single recognition request to one endpoint. Implementations
// do not retry; a non-2xx answer is reported as *StatusError and an
// undecodable 2xx body as *ParseError.
type Client interface {
	Complete(ctx context.Context, req Request) (*Response, error)
}

// Request is one image plus an instruction prompt.
type Request struct {
	Credential  string
	Model       string
	Prompt      string
	MediaType   string
	Data        string // base64
	MaxTokens   int
	Temperature float64
}

// DataURL returns the image as a data: URL.
func (r Request) DataURL() string {
	return "data:" + r.MediaType + ";base64," + r.Data
}

// CanonicalMediaType lower-cases mt and folds the image/jpg alias into
// image/jpeg.
func CanonicalMediaType(mt string) string {
	mt = strings.ToLower(strings.TrimSpace(mt))
	if mt == "image/jpg" {
		return "image/jpeg"
	}
	return mt
}

// Response is a decoded 2xx answer. Exactly one of Text or ErrorMessage is
// meaningful: upstreams sometimes answer 200 with an error object.
type Response struct {
	Text         string
	ErrorMessage string
	Raw          []byte
}

// HasError reports whether the upstream returned an error object instead of
// generated text.
func (r *Response) HasError() bool {
	return r.ErrorMessage != ""
}

// StatusError is returned for non-2xx HTTP answers.
type StatusError struct {
	StatusCode int
	Message    string // upstream error message when one could be decoded
	Body       string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("vision: unexpected status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("vision: unexpected status %d: %s", e.StatusCode, Truncate(e.Body, 100))
}

// ParseError is returned when a 2xx body cannot be decoded.
type ParseError struct {
	Err  error
	Body string
}

func (e *ParseError) Error() string {
	return "vision: unmarshal response: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// Truncate shortens s to at most n bytes without splitting a UTF-8 sequence.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8Start(s[n]) {
		n--
	}
	return s[:n]
}

func utf8Start(b byte) bool { return b&0xC0 != 0x80 }
