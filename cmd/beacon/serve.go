package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/playbeacon/beacon/pkg/api"
	"github.com/playbeacon/beacon/pkg/config"
	"github.com/playbeacon/beacon/pkg/gate"
	"github.com/playbeacon/beacon/pkg/keycache"
	"github.com/playbeacon/beacon/pkg/log"
	"github.com/playbeacon/beacon/pkg/queue"
	"github.com/playbeacon/beacon/pkg/storage"
	"github.com/playbeacon/beacon/pkg/worker"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingest API and the derived-state worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(serveConfigPath)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "path to config.yaml (defaults apply when empty)")
}

func runServe(configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	log.Init(log.Config{
		Level:      log.Level(cfg.Log.Level),
		JSONOutput: cfg.Log.JSON,
	})
	logger := log.WithComponent("main")
	logger.Info().Str("version", Version).Msg("beacon starting")

	if err := os.MkdirAll(cfg.Server.DataDir, 0o755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sqlStore, err := storage.OpenSQLite(ctx, filepath.Join(cfg.Server.DataDir, "beacon.sqlite"))
	if err != nil {
		return fmt.Errorf("open heartbeat store: %w", err)
	}
	defer sqlStore.Close()

	boltStore, err := storage.NewBoltStore(cfg.Server.DataDir)
	if err != nil {
		return fmt.Errorf("open derived store: %w", err)
	}
	defer boltStore.Close()

	jobs, err := queue.NewSQLiteQueue(ctx, sqlStore.DB())
	if err != nil {
		return fmt.Errorf("open job queue: %w", err)
	}

	keys := keycache.New(boltStore, cfg.Server.KeyCacheTTL)
	g := gate.New(sqlStore, sqlStore, boltStore, keys, jobs, nil)

	w := worker.New(sqlStore, boltStore, keys, jobs, worker.Options{
		PollInterval:         cfg.Worker.PollInterval,
		BatchSize:            cfg.Worker.BatchSize,
		HistoryLimit:         cfg.Worker.HistoryLimit,
		UptimeWindow:         cfg.Worker.UptimeWindow,
		AnomalyDecay:         cfg.Worker.AnomalyDecay,
		DefaultCapacity:      cfg.Worker.DefaultCapacity,
		RankInterval:         cfg.Worker.RankInterval,
		RankPlayerCap:        cfg.Worker.RankPlayerCap,
		MaxAttempts:          cfg.Worker.MaxAttempts,
		FallbackGraceSeconds: cfg.Server.GraceWindowSeconds,
	})
	w.Start(ctx)

	server := api.New(cfg.Server.ListenAddr, g, boltStore, sqlStore)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info().Str("signal", sig.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("api server: %w", err)
		}
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("api shutdown failed")
	}
	w.Stop()

	logger.Info().Msg("beacon stopped")
	return nil
}
