package recognize

import (
	"encoding/base64"
	"slices"
	"strings"

	"github.com/null12138/AI4LATEX/pkg/vision"
)

// DefaultAllowedTypes are the media types accepted for recognition.
var DefaultAllowedTypes = []string{"image/png", "image/jpeg", "image/jpg", "image/webp"}

// DefaultMaxBytes is the decoded payload ceiling (3 MiB).
const DefaultMaxBytes = 3 << 20

// Request is one image to recognize. Payload is standard base64.
type Request struct {
	Credential string
	MediaType  string
	Payload    string
}

// Limits bounds what Validate accepts.
type Limits struct {
	MaxBytes     int64
	AllowedTypes []string
}

// WithDefaults fills zero fields with DefaultMaxBytes and DefaultAllowedTypes.
func (l Limits) WithDefaults() Limits {
	if l.MaxBytes <= 0 {
		l.MaxBytes = DefaultMaxBytes
	}
	if len(l.AllowedTypes) == 0 {
		l.AllowedTypes = DefaultAllowedTypes
	}
	return l
}

// Allows reports whether mt is on the allow-list. Case and the image/jpg
// alias are ignored.
func (l Limits) Allows(mt string) bool {
	mt = vision.CanonicalMediaType(mt)
	return slices.ContainsFunc(l.AllowedTypes, func(a string) bool {
		return vision.CanonicalMediaType(a) == mt
	})
}

// Validate checks the request before any network attempt. Input problems
// are reported ahead of a missing credential.
func (r *Request) Validate(l Limits) error {
	l = l.WithDefaults()

	if r.Payload == "" {
		return newError(KindClientInput, "no image provided")
	}
	if !l.Allows(r.MediaType) {
		return newError(KindClientInput, "unsupported file type %q, allowed: %s",
			r.MediaType, strings.Join(l.AllowedTypes, ", "))
	}

	n := base64.StdEncoding.DecodedLen(len(r.Payload))
	if int64(n) > l.MaxBytes+2 {
		return newError(KindClientInput, "file too large, limit is %d MiB", l.MaxBytes>>20)
	}
	data, err := base64.StdEncoding.DecodeString(r.Payload)
	if err != nil {
		return newError(KindClientInput, "payload is not valid base64")
	}
	if int64(len(data)) > l.MaxBytes {
		return newError(KindClientInput, "file too large, limit is %d MiB", l.MaxBytes>>20)
	}

	if strings.TrimSpace(r.Credential) == "" {
		return newError(KindCredentialMissing, "no API credential configured")
	}
	return nil
}
