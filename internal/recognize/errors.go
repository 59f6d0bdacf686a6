package recognize

import "fmt"

// Kind classifies a failed recognition for the caller.
type Kind int

const (
	KindClientInput Kind = iota + 1
	KindCredentialMissing
	KindUpstreamTransient
	KindUpstreamPermanent
	KindContentUnresolved
	KindProcessingTimeout
)

func (k Kind) String() string {
	switch k {
	case KindClientInput:
		return "client_input"
	case KindCredentialMissing:
		return "credential_missing"
	case KindUpstreamTransient:
		return "upstream_transient"
	case KindUpstreamPermanent:
		return "upstream_permanent"
	case KindContentUnresolved:
		return "content_unresolved"
	case KindProcessingTimeout:
		return "processing_timeout"
	default:
		return "unknown"
	}
}

// Error is a recognition failure with a human-readable detail. Preview holds
// a truncated upstream body when one is available.
type Error struct {
	Kind    Kind
	Detail  string
	Preview string
}

func (e *Error) Error() string {
	return fmt.Sprintf("recognize: %s: %s", e.Kind, e.Detail)
}

func newError(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Detail: fmt.Sprintf(format, args...)}
}
