// Command eventorch-worker scales out schedule-queue dispatch: it runs
// only the Dispatcher's firing consumer (internal/dispatcher), never the
// Schedule Promoter's reconciliation/promotion loops, so a deployment can
// run several of these alongside exactly one eventorch-scheduler (§5).
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/northcloud/eventorch/internal/app"
	"github.com/northcloud/eventorch/internal/config"
	"github.com/northcloud/eventorch/internal/logger"
)

const defaultShutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "eventorch-worker",
	Short: "Run eventorch's schedule-queue dispatch worker",
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eventorch-worker: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(logger.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	if err != nil {
		return fmt.Errorf("build logger: %w", err)
	}
	defer log.Sync() //nolint:errcheck

	a, err := app.New(cfg, log, nil)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go a.RunDispatcherWorker(ctx)

	gin.SetMode(gin.ReleaseMode)
	health := gin.New()
	health.Use(gin.Recovery())
	health.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy"})
	})
	server := &http.Server{Addr: cfg.Server.Address, Handler: health}

	errChan := make(chan error, 1)
	go func() {
		log.Info("eventorch-worker: starting health server", "addr", cfg.Server.Address)
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case serveErr := <-errChan:
		return fmt.Errorf("health server: %w", serveErr)
	case sig := <-sigChan:
		log.Info("eventorch-worker: shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shut down health server: %w", err)
		}
		log.Info("eventorch-worker: stopped")
		return nil
	}
}
