package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/agentic-research/genframe/internal/archive"
	"github.com/agentic-research/genframe/internal/config"
	"github.com/agentic-research/genframe/internal/graph"
	"github.com/agentic-research/genframe/internal/report"
	"github.com/agentic-research/genframe/internal/server"
	"github.com/agentic-research/genframe/internal/views"
)

const (
	connectTimeout  = 10 * time.Second
	shutdownTimeout = 10 * time.Second
)

var listenAddr string

func init() {
	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (overrides the config file)")
	rootCmd.AddCommand(serveCmd)
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the report, view and upload API",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if listenAddr != "" {
			cfg.Listen = listenAddr
		}
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		factory, err := graph.Open(cfg.GraphOptions())
		if err != nil {
			return fmt.Errorf("open graph: %w", err)
		}

		ln, err := net.Listen("tcp", cfg.Listen)
		if err != nil {
			_ = factory.Close(context.Background())
			return fmt.Errorf("listen %s: %w", cfg.Listen, err)
		}
		return serve(ctx, ln, cfg, factory, slog.Default())
	},
}

// newServer wires the HTTP handlers to the configured storage.
func newServer(cfg *config.Config, factory graph.SessionFactory, logger *slog.Logger) *server.Server {
	s := &server.Server{
		Graph:          factory,
		Views:          views.NewFileStore(cfg.Storage.ViewsFile, logger),
		Stager:         archive.Stager{Dir: cfg.Storage.StagingDir},
		Archives:       &archive.Ingestor{Root: cfg.Storage.ExtractRoot, MaxBytes: cfg.MaxExtractBytes(), Logger: logger},
		MaxUploadBytes: cfg.MaxUploadBytes(),
		Logger:         logger,
	}
	if cfg.Storage.ArtifactsFile != "" {
		s.Artifacts = report.FileArtifacts{Path: cfg.Storage.ArtifactsFile}
	}
	return s
}

// serve runs the API on ln until ctx is done, then shuts the server down and
// closes the graph factory. It owns both ln and factory.
func serve(ctx context.Context, ln net.Listener, cfg *config.Config, factory graph.SessionFactory, logger *slog.Logger) (err error) {
	defer func() {
		if cerr := factory.Close(context.Background()); cerr != nil {
			err = multierror.Append(err, fmt.Errorf("close graph: %w", cerr)).ErrorOrNil()
		}
	}()

	vctx, cancel := context.WithTimeout(ctx, connectTimeout)
	if verr := factory.VerifyConnectivity(vctx); verr != nil {
		logger.Error("graph connection failed, serving anyway", "backend", cfg.Graph.Backend, "err", verr)
	} else {
		logger.Info("connected to graph", "backend", cfg.Graph.Backend)
	}
	cancel()

	for _, dir := range []string{cfg.Storage.StagingDir, cfg.Storage.ExtractRoot} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			_ = ln.Close()
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}

	srv := &http.Server{
		Handler:           newServer(cfg, factory, logger).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if cfg.TLSEnabled() {
			logger.Info("serving https", "addr", ln.Addr().String(), "domain", cfg.Domain)
			errCh <- srv.ServeTLS(ln, cfg.TLS.CertFile, cfg.TLS.KeyFile)
			return
		}
		logger.Info("serving http", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		_ = ln.Close() // ServeTLS leaves it open when the key pair fails to load
		return fmt.Errorf("serve: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	var result *multierror.Error
	if err := srv.Shutdown(sctx); err != nil {
		result = multierror.Append(result, fmt.Errorf("shutdown: %w", err))
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		result = multierror.Append(result, fmt.Errorf("serve: %w", err))
	}
	return result.ErrorOrNil()
}
