package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofrs/flock"
	"github.com/spf13/cobra"

	"slicerd/internal/logging"
	"slicerd/internal/server"
	"slicerd/internal/slicejobs"
	"slicerd/internal/slicer"
	"slicerd/internal/storage"
	"slicerd/internal/store"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the slicing service",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, ctx)
		},
	}
}

func runServe(cmd *cobra.Command, cmdCtx *commandContext) error {
	signalCtx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg, err := cmdCtx.ensureConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		return fmt.Errorf("prepare directories: %w", err)
	}

	// One serving instance per data directory.
	lockPath := filepath.Join(cfg.Paths.DataDir, "slicerd.lock")
	lock := flock.New(lockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("acquire lock: %w", err)
	}
	if !locked {
		return errors.New("another slicerd instance is already serving this data directory")
	}
	defer func() { _ = lock.Unlock() }()

	logger, err := logging.NewFromConfig(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	st, err := store.Open(cfg)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	svc := storage.New(cfg)
	cli := slicer.NewCLI(
		slicer.WithBinary(cfg.Slicer.Binary),
		slicer.WithDataDir(cfg.Slicer.DataDir),
	)
	if !cli.Available() {
		logger.Warn("slicer binary not found; slice jobs will fail until it is installed",
			logging.String("binary", cfg.Slicer.Binary))
	}

	runner := slicejobs.NewRunner(cfg, st, svc, cli, logger)
	api := server.New(cfg, st, svc, runner, cli, logger)

	logger.Info("slicerd starting",
		logging.String("version", version),
		logging.String("config", cmdCtx.cfgPath),
		logging.String("data_dir", cfg.Paths.DataDir),
		logging.String("bind", cfg.Paths.APIBind),
	)

	serveErr := make(chan error, 1)
	go func() {
		serveErr <- api.Start()
	}()

	select {
	case err := <-serveErr:
		return err
	case <-signalCtx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := api.Shutdown(shutdownCtx); err != nil {
		logger.Warn("api shutdown incomplete", logging.Error(err))
	}
	if err := runner.Shutdown(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown", logging.Error(err))
	}
	return nil
}
