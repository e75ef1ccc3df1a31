package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"medparse/internal/logger"
	"medparse/internal/pipeline"
	"medparse/internal/server"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the parsing pipeline over HTTP",
	Long: `Start an HTTP server exposing the parsing pipeline.

Endpoints:
  GET  /healthz                  - liveness and version
  POST /api/v1/documents/parse   - multipart upload: file, optional mediaType,
                                   age, gender and region form fields

Optional environment variables:
  SERVER_ADDR - listen address (default :8080)
  MAX_UPLOAD_MB - upload size limit (default 20)`,
	Example: `  # Listen on the default address
  medparse serve

  # Listen on another port
  medparse serve --addr :9090

  # Upload a report
  curl -F file=@lab_report.pdf -F age=45 -F gender=male http://localhost:8080/api/v1/documents/parse`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("addr", "", "Listen address (default: SERVER_ADDR)")
	serveCmd.Flags().Int("shutdown-timeout", 30, "Graceful shutdown timeout in seconds")
}

func runServe(cmd *cobra.Command, args []string) error {
	log := logger.WithComponent("serve")

	addr, _ := cmd.Flags().GetString("addr")
	shutdownSecs, _ := cmd.Flags().GetInt("shutdown-timeout")

	cfg, err := loadConfig(log)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.ServerAddr
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, err := pipeline.NewFromConfig(ctx, cfg)
	if err != nil {
		return handleProcessingError(err, log)
	}
	defer func() {
		if closeErr := p.Close(); closeErr != nil {
			log.Warn().Err(closeErr).Msg("Failed to release pipeline resources")
		}
	}()

	srv := server.New(p, server.Options{
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Version:        version,
	})

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start(addr)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
		log.Info().Msg("Received interrupt signal, shutting down server")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(shutdownSecs)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info().Msg("Server stopped")
	return nil
}
