package invoke

import (
	"context"
	"errors"
	"fmt"

	"github.com/null12138/AI4LATEX/pkg/vision"
)

// maxBodyPreview bounds how much of an upstream body is kept on a failure.
const maxBodyPreview = 500

// OutcomeKind is the classification of a single attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRetryable
	OutcomeTerminal
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRetryable:
		return "retryable"
	case OutcomeTerminal:
		return "terminal"
	default:
		return "unknown"
	}
}

// Metric labels for attempt outcomes. 525 gets its own label so edge/TLS
// faults can be told apart from application 5xx.
const (
	LabelSuccess      = "success"
	LabelTimeout      = "timeout"
	LabelAborted      = "aborted"
	LabelNetwork      = "network"
	LabelTLSHandshake = "tls_handshake"
	LabelServerError  = "server_error"
	LabelClientError  = "client_error"
	LabelParseError   = "parse_error"
)

// Outcome describes one classified attempt.
type Outcome struct {
	Kind       OutcomeKind
	Label      string
	Reason     string
	StatusCode int
	Body       string
	Response   *vision.Response
}

// Classify maps the result of one attempt to an Outcome. attemptErr is the
// attempt context's Err() after the call returned.
func Classify(resp *vision.Response, err error, attemptErr error) Outcome {
	if err == nil {
		if resp == nil {
			return Outcome{Kind: OutcomeRetryable, Label: LabelParseError, Reason: "response parse error: empty response"}
		}
		return Outcome{Kind: OutcomeSuccess, Label: LabelSuccess, Response: resp}
	}

	var se *vision.StatusError
	if errors.As(err, &se) {
		return classifyStatus(se)
	}

	var pe *vision.ParseError
	if errors.As(err, &pe) {
		return Outcome{
			Kind:   OutcomeRetryable,
			Label:  LabelParseError,
			Reason: "response parse error",
			Body:   vision.Truncate(pe.Body, maxBodyPreview),
		}
	}

	switch {
	case errors.Is(attemptErr, context.DeadlineExceeded):
		return Outcome{Kind: OutcomeRetryable, Label: LabelTimeout, Reason: "timeout"}
	case attemptErr != nil:
		return Outcome{Kind: OutcomeRetryable, Label: LabelAborted, Reason: "request aborted"}
	default:
		return Outcome{Kind: OutcomeRetryable, Label: LabelNetwork, Reason: "network error: " + err.Error()}
	}
}

func classifyStatus(se *vision.StatusError) Outcome {
	out := Outcome{
		StatusCode: se.StatusCode,
		Body:       vision.Truncate(se.Body, maxBodyPreview),
	}

	detail := se.Message
	if detail == "" {
		detail = vision.Truncate(se.Body, 100)
	}

	switch {
	case se.StatusCode == 525:
		out.Kind = OutcomeRetryable
		out.Label = LabelTLSHandshake
		out.Reason = "tls handshake failed (525)"
	case se.StatusCode >= 500:
		out.Kind = OutcomeRetryable
		out.Label = LabelServerError
		out.Reason = fmt.Sprintf("upstream request failed (%d): %s", se.StatusCode, detail)
	case se.StatusCode >= 400:
		out.Kind = OutcomeTerminal
		out.Label = LabelClientError
		out.Reason = fmt.Sprintf("upstream request failed (%d): %s", se.StatusCode, detail)
	default:
		out.Kind = OutcomeRetryable
		out.Label = LabelServerError
		out.Reason = fmt.Sprintf("unexpected upstream status %d", se.StatusCode)
	}
	return out
}
