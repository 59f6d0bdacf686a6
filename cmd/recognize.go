package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync/atomic"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/null12138/AI4LATEX/internal/recognize"
	"github.com/null12138/AI4LATEX/internal/upload"
)

var (
	recognizeFormat      string
	recognizeConcurrency int
)

// fileResult is the per-file output of the recognize command.
type fileResult struct {
	File      string `json:"file" yaml:"file"`
	LaTeX     string `json:"latex,omitempty" yaml:"latex,omitempty"`
	Endpoint  string `json:"endpoint,omitempty" yaml:"endpoint,omitempty"`
	Attempts  int    `json:"attempts,omitempty" yaml:"attempts,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
	ErrorKind string `json:"error_kind,omitempty" yaml:"error_kind,omitempty"`
}

var recognizeCmd = &cobra.Command{
	Use:   "recognize <image> [image...]",
	Short: "Recognize formulas in local image files",
	Args:  cobra.MinimumNArgs(1),
	PreRunE: func(cmd *cobra.Command, args []string) error {
		switch recognizeFormat {
		case "text", "json", "yaml":
		default:
			return eris.Errorf("recognize: unknown format %q (want text, json or yaml)", recognizeFormat)
		}
		if recognizeConcurrency < 1 {
			return eris.Errorf("recognize: concurrency must be at least 1, got %d", recognizeConcurrency)
		}
		return nil
	},
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		rec, err := initRecognizer(cfg)
		if err != nil {
			return err
		}
		credential := cfg.ResolveCredential()

		results := make([]fileResult, len(args))
		var failed atomic.Int64

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(recognizeConcurrency)

		for i, path := range args {
			g.Go(func() error {
				results[i] = recognizeFile(gctx, rec, credential, path)
				if results[i].Error != "" {
					failed.Add(1)
				}
				return nil // one bad file does not stop the rest
			})
		}
		_ = g.Wait()

		zap.L().Info("recognize: complete",
			zap.Int("total", len(args)),
			zap.Int64("failed", failed.Load()),
		)

		if err := writeResults(cmd.OutOrStdout(), recognizeFormat, results); err != nil {
			return err
		}
		if n := failed.Load(); n > 0 {
			return eris.Errorf("recognize: %d of %d files failed", n, len(args))
		}
		return nil
	},
}

type recognizer interface {
	Recognize(ctx context.Context, req *recognize.Request) (*recognize.Result, error)
	Limits() recognize.Limits
}

func recognizeFile(ctx context.Context, rec recognizer, credential, path string) fileResult {
	out := fileResult{File: path}

	img, err := upload.FromFile(path, rec.Limits())
	if err == nil {
		var res *recognize.Result
		res, err = rec.Recognize(ctx, img.Request(credential))
		if err == nil {
			out.LaTeX = res.Markup
			out.Endpoint = res.Endpoint
			out.Attempts = res.Attempts
			return out
		}
	}

	var rerr *recognize.Error
	if errors.As(err, &rerr) {
		out.Error = rerr.Detail
		out.ErrorKind = rerr.Kind.String()
	} else {
		out.Error = err.Error()
		out.ErrorKind = "internal"
	}
	zap.L().Warn("recognize: file failed",
		zap.String("file", path),
		zap.String("kind", out.ErrorKind),
		zap.String("error", out.Error),
	)
	return out
}

// writeResults renders results in the chosen format. Text output is one
// line per file; a single successful file prints the bare LaTeX.
func writeResults(w io.Writer, format string, results []fileResult) error {
	switch format {
	case "json":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return eris.Wrap(err, "recognize: encode json")
		}
		return nil
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(results); err != nil {
			return eris.Wrap(err, "recognize: encode yaml")
		}
		if err := enc.Close(); err != nil {
			return eris.Wrap(err, "recognize: encode yaml")
		}
		return nil
	}

	if len(results) == 1 && results[0].Error == "" {
		_, err := fmt.Fprintln(w, results[0].LaTeX)
		return err
	}
	for _, r := range results {
		var err error
		if r.Error != "" {
			_, err = fmt.Fprintf(w, "%s\terror (%s): %s\n", r.File, r.ErrorKind, r.Error)
		} else {
			_, err = fmt.Fprintf(w, "%s\t%s\n", r.File, r.LaTeX)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func init() {
	recognizeCmd.Flags().StringVar(&recognizeFormat, "format", "text", "output format: text, json or yaml")
	recognizeCmd.Flags().IntVar(&recognizeConcurrency, "concurrency", 2, "max files recognized in parallel")
	rootCmd.AddCommand(recognizeCmd)
}
