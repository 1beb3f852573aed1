package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/fulmenhq/gofulmen/foundry"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/dataviz-jp/cartosync/internal/observability"
	"github.com/dataviz-jp/cartosync/internal/server"
	"github.com/dataviz-jp/cartosync/internal/server/handlers"
	"github.com/dataviz-jp/cartosync/pkg/blobstore/fs"
	"github.com/dataviz-jp/cartosync/pkg/projectstore/direct"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the dev gateway server",
	Long: `Run a local gateway server backing the gateway strategy.

Blobs land under the configured data directory; project metadata lives in
memory and is lost on restart. Intended for development and tests, not
production.`,
	Args: cobra.NoArgs,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	logger := observability.NewServerLogger(cfg.Logging.Level)
	defer func() { _ = logger.Sync() }()

	blobs, err := fs.New(fs.Config{BaseDir: cfg.Server.DataDir})
	if err != nil {
		return exitError(foundry.ExitInvalidArgument, "Cannot open data directory", err)
	}

	handlers.Version = versionInfo.Version

	srv := server.New(cfg.Server.Host, cfg.Server.Port, server.Options{
		Blobs:        blobs,
		Meta:         direct.NewMemoryStore(),
		Logger:       logger,
		RateLimit:    cfg.Server.RateLimit,
		Burst:        cfg.Server.Burst,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	})

	errCh := make(chan error, 1)
	go func() {
		logger.Info("dev gateway listening",
			zap.String("addr", srv.Addr()),
			zap.String("data_dir", cfg.Server.DataDir),
		)
		errCh <- srv.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return exitError(foundry.ExitExternalServiceUnavailable, "Server failed", err)
		}
		return nil
	case sig := <-sigCh:
		logger.Info("shutting down", zap.String("signal", sig.String()))
	case <-cmd.Context().Done():
		logger.Info("shutting down", zap.String("reason", "context canceled"))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return exitError(foundry.ExitExternalServiceUnavailable, "Shutdown failed", err)
	}
	return nil
}
