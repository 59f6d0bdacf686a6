// Package upload turns an uploaded or local image into a recognition request.
package upload

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg" // register decoders for DecodeConfig
	_ "image/png"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	_ "golang.org/x/image/webp"

	"github.com/null12138/AI4LATEX/internal/recognize"
	"github.com/null12138/AI4LATEX/pkg/vision"
)

// FormField is the multipart field carrying the image.
const FormField = "image"

// formats maps a decoder name from image.DecodeConfig to its media type.
var formats = map[string]string{
	"png":  "image/png",
	"jpeg": "image/jpeg",
	"webp": "image/webp",
}

// Image is a validated image ready for encoding.
type Image struct {
	Name      string
	MediaType string
	Data      []byte
	Width     int
	Height    int
}

// Base64 returns the standard base64 encoding of the image bytes.
func (i *Image) Base64() string {
	return base64.StdEncoding.EncodeToString(i.Data)
}

// Request builds a recognition request for this image.
func (i *Image) Request(credential string) *recognize.Request {
	return &recognize.Request{
		Credential: credential,
		MediaType:  i.MediaType,
		Payload:    i.Base64(),
	}
}

// FromMultipart reads the image field of a multipart form. Validation
// failures are returned as *recognize.Error with KindClientInput.
func FromMultipart(w http.ResponseWriter, r *http.Request, limits recognize.Limits) (*Image, error) {
	limits = limits.WithDefaults()

	// Allow headroom for the other form parts before the image is checked.
	r.Body = http.MaxBytesReader(w, r.Body, limits.MaxBytes+1<<20)
	if err := r.ParseMultipartForm(limits.MaxBytes + 1<<20); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			return nil, tooLarge(limits)
		}
		return nil, clientInput("invalid multipart form: %v", err)
	}

	file, header, err := r.FormFile(FormField)
	if err != nil {
		if errors.Is(err, http.ErrMissingFile) {
			return nil, clientInput("no image provided")
		}
		return nil, clientInput("read form file: %v", err)
	}
	defer file.Close() //nolint:errcheck

	return fromPart(file, header, limits)
}

func fromPart(file multipart.File, header *multipart.FileHeader, limits recognize.Limits) (*Image, error) {
	mt := strings.ToLower(header.Header.Get("Content-Type"))
	if mt == "application/octet-stream" {
		mt = ""
	}
	if mt != "" && !limits.Allows(mt) {
		return nil, unsupported(mt, limits)
	}
	if header.Size > limits.MaxBytes {
		return nil, tooLarge(limits)
	}

	data, err := io.ReadAll(io.LimitReader(file, limits.MaxBytes+1))
	if err != nil {
		return nil, eris.Wrap(err, "upload: read image")
	}
	return Inspect(header.Filename, mt, data, limits)
}

// FromFile reads a local image. The media type comes from the content.
func FromFile(path string, limits recognize.Limits) (*Image, error) {
	limits = limits.WithDefaults()

	info, err := os.Stat(path)
	if err != nil {
		return nil, eris.Wrapf(err, "upload: stat %s", path)
	}
	if info.Size() > limits.MaxBytes {
		return nil, tooLarge(limits)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "upload: read %s", path)
	}
	return Inspect(path, "", data, limits)
}

// Inspect checks data against limits and sniffs its format. An empty
// declared type is filled in from the content; a declared type that
// disagrees with the content is rejected.
func Inspect(name, declared string, data []byte, limits recognize.Limits) (*Image, error) {
	limits = limits.WithDefaults()

	if len(data) == 0 {
		return nil, clientInput("no image provided")
	}
	if int64(len(data)) > limits.MaxBytes {
		return nil, tooLarge(limits)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, clientInput("file is not a readable image")
	}
	sniffed, ok := formats[format]
	if !ok {
		return nil, unsupported("image/"+format, limits)
	}

	declared = strings.ToLower(strings.TrimSpace(declared))
	switch {
	case declared == "":
		declared = sniffed
	case vision.CanonicalMediaType(declared) != sniffed:
		return nil, clientInput("file content is %s but was declared as %s", sniffed, declared)
	}
	if !limits.Allows(declared) {
		return nil, unsupported(declared, limits)
	}

	return &Image{
		Name:      name,
		MediaType: vision.CanonicalMediaType(declared),
		Data:      data,
		Width:     cfg.Width,
		Height:    cfg.Height,
	}, nil
}

func clientInput(format string, args ...any) error {
	return &recognize.Error{Kind: recognize.KindClientInput, Detail: fmt.Sprintf(format, args...)}
}

func tooLarge(l recognize.Limits) error {
	return clientInput("file too large, limit is %d MiB", l.MaxBytes>>20)
}

func unsupported(mt string, l recognize.Limits) error {
	return clientInput("unsupported file type %q, allowed: %s", mt, strings.Join(l.AllowedTypes, ", "))
}
