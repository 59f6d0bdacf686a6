package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/null12138/AI4LATEX/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP recognition server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		rec, err := initRecognizer(cfg)
		if err != nil {
			return err
		}

		credential := cfg.ResolveCredential()
		if credential == "" {
			zap.L().Warn("no API credential configured, recognition requests will fail",
				zap.Strings("checked", []string{"vision.api_key", "OPENAI_API_KEY", "GEMINI_API_KEY", "API_KEY"}),
			)
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr: fmt.Sprintf(":%d", port),
			Handler: server.New(rec, server.Options{
				Credential:  credential,
				RatePerSec:  cfg.Server.RatePerSec,
				Burst:       cfg.Server.Burst,
				CORSOrigins: cfg.Server.CORSOrigins,
				Endpoints:   endpointNames(cfg),
				Version:     version,
			}),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
