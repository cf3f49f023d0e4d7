// Command eventorch-scheduler runs the Schedule Promoter's reconciliation
// and promotion loops, the schedule-queue dispatcher worker, and the HTTP
// API (§5's process topology: one scheduler process per deployment, elected
// leader in a multi-instance setup).
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

	"github.com/spf13/cobra"

	"github.com/northcloud/eventorch/internal/app"
	"github.com/northcloud/eventorch/internal/api"
	"github.com/northcloud/eventorch/internal/config"
	"github.com/northcloud/eventorch/internal/logger"
)

const defaultShutdownTimeout = 10 * time.Second

var rootCmd = &cobra.Command{
	Use:   "eventorch-scheduler",
	Short: "Run eventorch's schedule promotion, dispatch, and HTTP API",
	RunE:  run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "eventorch-scheduler: %v\n", err)
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

	// eventorch-scheduler never runs export schedules to completion itself;
	// a deployment that uses WordPress export schedules wires a real
	// collaborators.WordPressExporter here instead of nil.
	a, err := app.New(cfg, log, nil)
	if err != nil {
		return fmt.Errorf("build app: %w", err)
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	go a.RunPromoterUnderLeaderElection(ctx)
	go a.RunDispatcherWorker(ctx)

	router := api.NewRouter(a.Router, log)
	server := &http.Server{Addr: cfg.Server.Address, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		log.Info("eventorch-scheduler: starting http server", "addr", cfg.Server.Address)
		if serveErr := server.ListenAndServe(); serveErr != nil && !errors.Is(serveErr, http.ErrServerClosed) {
			errChan <- serveErr
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case serveErr := <-errChan:
		return fmt.Errorf("http server: %w", serveErr)
	case sig := <-sigChan:
		log.Info("eventorch-scheduler: shutdown signal received", "signal", sig.String())
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), defaultShutdownTimeout)
		defer shutdownCancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shut down http server: %w", err)
		}
		log.Info("eventorch-scheduler: stopped")
		return nil
	}
}
