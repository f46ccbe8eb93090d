package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/averres/proxyfan/internal/api"
	"github.com/averres/proxyfan/internal/job"
	"github.com/averres/proxyfan/internal/metrics"
)

var runCmd = &cobra.Command{
	Use:   "run <input-file> <proxy-file> <output-file>",
	Short: "Fetch every item in the input file through the proxy pool",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cfg.Metrics.Enabled {
			metrics.Init()
			shutdown := startMetricsServer(ctx)
			defer shutdown()
		}

		return job.NewRunner(cfg, logger).Run(ctx, args[0], args[1], args[2])
	},
}

func startMetricsServer(ctx context.Context) func() {
	server := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler:           api.NewServer(logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("metrics server shutdown failed", zap.Error(err))
		}
	}
}

func init() {
	rootCmd.AddCommand(runCmd)
}
