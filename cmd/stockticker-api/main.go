package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"stockticker/internal/api"
	"stockticker/internal/archive"
	"stockticker/internal/config"
	"stockticker/internal/game"

	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadAPIFromEnv()
	if err != nil {
		slog.Error("load config", "err", err)
		os.Exit(1)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	var results archive.Store
	if cfg.ArchiveURL != "" {
		results, err = archive.Open(ctx, cfg.ArchiveURL)
		if err != nil {
			logger.Error("archive open failed", "err", err)
			os.Exit(1)
		}
		defer results.Close()
	}

	registry := game.NewRegistry(game.RegistryOptions{
		Logger:             logger,
		Dice:               func() game.RandomSource { return game.NewRandomSource(cfg.DiceSeed) },
		Retention:          cfg.Retention,
		DefaultPlayerCount: cfg.DefaultPlayerCount,
	})
	hub := api.NewHub(logger, cfg.AllowedOrigins)
	server := api.New(cfg, logger, registry, hub, results)

	var recorder *archive.Recorder
	if results != nil {
		recorder = archive.NewRecorder(results, logger)
	}
	scheduler := game.NewScheduler(registry, game.SchedulerOptions{
		Logger:       logger,
		TickEvery:    cfg.TickEvery,
		ReapEvery:    cfg.ReapEvery,
		OnTransition: server.PublishTransition,
		OnReap: func(ctx context.Context, games []*game.Game) {
			server.ForgetGames(ctx, games)
			if recorder != nil {
				recorder.Archive(ctx, games)
			}
		},
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		scheduler.Run(ctx)
	}()

	httpServer := &http.Server{
		Addr:              cfg.Addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		_ = httpServer.Shutdown(shutdownCtx)
	}()

	logger.Info("stockticker api listening",
		"addr", cfg.Addr,
		"tick_every", cfg.TickEvery.String(),
		"retention", cfg.Retention.String(),
		"archive", results != nil,
	)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Error("server failed", "err", err)
		stop()
		wg.Wait()
		os.Exit(1)
	}
	wg.Wait()
}
