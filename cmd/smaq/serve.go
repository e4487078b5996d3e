package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/smaq/smaq/internal/api"
	"github.com/smaq/smaq/internal/compute"
	"github.com/smaq/smaq/internal/processor"
	"github.com/smaq/smaq/internal/store"
)

func newServeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP job service",
		Args:  cobra.NoArgs,
		RunE:  runServe,
	}
	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, logger, reg, eng, err := setup(cmd, os.Stdout)
	if err != nil {
		return err
	}

	logger.Info("smaq: starting",
		"listen_addr", cfg.ListenAddr,
		"engine", cfg.Engine,
		"window", cfg.Window,
	)

	db, err := store.NewMemoryStore()
	if err != nil {
		return fmt.Errorf("open result store: %w", err)
	}
	defer db.Close()

	proc := processor.New(compute.NewAdapter(eng), logger)

	// The recorder subscribes before any job can be submitted.
	ch, unsub := proc.Broker().Subscribe(cfg.SubscriberBuffer)
	defer unsub()
	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		store.NewRecorder(db, cfg.Engine, logger).Run(context.Background(), ch)
	}()

	srv := api.NewServer(api.Options{
		Addr:            cfg.ListenAddr,
		Engine:          cfg.Engine,
		MaxUploadBytes:  cfg.MaxUploadBytes,
		ShutdownTimeout: cfg.ShutdownTimeout,
	}, db, proc, reg, logger)

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	runErr := srv.Run(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	if err := proc.Shutdown(shutdownCtx); err != nil {
		logger.Warn("processor did not drain before timeout", "error", err)
	} else {
		<-recorderDone
	}

	logger.Info("smaq: stopped", "jobs", proc.Stats().LastID)
	if runErr != nil {
		return fmt.Errorf("server: %w", runErr)
	}
	return nil
}
