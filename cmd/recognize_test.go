package main

import (
	"bytes"
	"context"
	"encoding/json"
	"image"
	"image/png"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/null12138/AI4LATEX/internal/recognize"
)

type stubRecognizer struct {
	result *recognize.Result
	err    error
	got    *recognize.Request
}

func (s *stubRecognizer) Recognize(_ context.Context, req *recognize.Request) (*recognize.Result, error) {
	s.got = req
	return s.result, s.err
}

func (s *stubRecognizer) Limits() recognize.Limits {
	return recognize.Limits{}.WithDefaults()
}

func writePNG(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "eq.png")
	f, err := os.Create(path)
	require.NoError(t, err)
	require.NoError(t, png.Encode(f, image.NewGray(image.Rect(0, 0, 3, 3))))
	require.NoError(t, f.Close())
	return path
}

func TestRecognizeFile_Success(t *testing.T) {
	path := writePNG(t)
	stub := &stubRecognizer{result: &recognize.Result{Markup: `x^{2}`, Endpoint: "openai", Attempts: 1}}

	got := recognizeFile(context.Background(), stub, "sk-cli", path)
	assert.Equal(t, fileResult{File: path, LaTeX: `x^{2}`, Endpoint: "openai", Attempts: 1}, got)
	require.NotNil(t, stub.got)
	assert.Equal(t, "sk-cli", stub.got.Credential)
	assert.Equal(t, "image/png", stub.got.MediaType)
}

func TestRecognizeFile_RecognitionError(t *testing.T) {
	path := writePNG(t)
	stub := &stubRecognizer{err: &recognize.Error{Kind: recognize.KindUpstreamPermanent, Detail: "upstream request failed (401): bad key"}}

	got := recognizeFile(context.Background(), stub, "sk", path)
	assert.Equal(t, "upstream_permanent", got.ErrorKind)
	assert.Equal(t, "upstream request failed (401): bad key", got.Error)
	assert.Empty(t, got.LaTeX)
}

func TestRecognizeFile_MissingFile(t *testing.T) {
	stub := &stubRecognizer{}
	got := recognizeFile(context.Background(), stub, "sk", filepath.Join(t.TempDir(), "nope.png"))
	assert.Equal(t, "internal", got.ErrorKind)
	assert.NotEmpty(t, got.Error)
	assert.Nil(t, stub.got)
}

func TestRecognizeFile_NotAnImage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "eq.png")
	require.NoError(t, os.WriteFile(path, []byte("plain text"), 0o600))

	stub := &stubRecognizer{}
	got := recognizeFile(context.Background(), stub, "sk", path)
	assert.Equal(t, "client_input", got.ErrorKind)
	assert.Nil(t, stub.got)
}

func TestWriteResults(t *testing.T) {
	results := []fileResult{
		{File: "a.png", LaTeX: `\alpha`, Endpoint: "openai", Attempts: 1},
		{File: "b.png", Error: "no formula recognized", ErrorKind: "content_unresolved"},
	}

	t.Run("text single", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResults(&buf, "text", results[:1]))
		assert.Equal(t, "\\alpha\n", buf.String())
	})

	t.Run("text many", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResults(&buf, "text", results))
		assert.Equal(t, "a.png\t\\alpha\nb.png\terror (content_unresolved): no formula recognized\n", buf.String())
	})

	t.Run("json", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResults(&buf, "json", results))
		var decoded []fileResult
		require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, results, decoded)
		assert.NotContains(t, buf.String(), `"error": ""`)
	})

	t.Run("yaml", func(t *testing.T) {
		var buf bytes.Buffer
		require.NoError(t, writeResults(&buf, "yaml", results))
		var decoded []fileResult
		require.NoError(t, yaml.Unmarshal(buf.Bytes(), &decoded))
		assert.Equal(t, results, decoded)
		assert.Contains(t, buf.String(), "error_kind: content_unresolved")
	})
}

func TestRecognizeCommand_PreRunValidation(t *testing.T) {
	origFormat, origConc := recognizeFormat, recognizeConcurrency
	t.Cleanup(func() { recognizeFormat, recognizeConcurrency = origFormat, origConc })

	recognizeFormat, recognizeConcurrency = "xml", 1
	assert.Error(t, recognizeCmd.PreRunE(recognizeCmd, nil))

	recognizeFormat, recognizeConcurrency = "yaml", 0
	assert.Error(t, recognizeCmd.PreRunE(recognizeCmd, nil))

	recognizeFormat, recognizeConcurrency = "json", 4
	assert.NoError(t, recognizeCmd.PreRunE(recognizeCmd, nil))
}
