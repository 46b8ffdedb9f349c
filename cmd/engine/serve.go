package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"devfeed/internal/cache"
	"devfeed/internal/config"
	"devfeed/internal/content"
	"devfeed/internal/database"
	"devfeed/internal/engine"
	"devfeed/internal/handlers"
	"devfeed/internal/social"
	"devfeed/internal/utils"

	"github.com/asynkron/protoactor-go/actor"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

const (
	breakerFailures = 5
	breakerTimeout  = 30 * time.Second
	shutdownTimeout = 10 * time.Second
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	metrics := utils.NewMetricsCollector()

	store, err := database.NewStore(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			log.Error().Err(err).Msg("failed to close store")
		}
	}()
	log.Info().Str("store", store.Name()).Msg("ledger store ready")

	var followCache social.FollowSetCache
	if cfg.Cache.RedisAddr != "" {
		fc, err := cache.NewFollowCache(cfg.Cache.RedisAddr, cfg.Cache.RedisDB, cfg.Cache.FollowCacheTTL)
		if err != nil {
			return err
		}
		defer fc.Close()
		followCache = fc
		log.Info().Str("addr", cfg.Cache.RedisAddr).Dur("ttl", cfg.Cache.FollowCacheTTL).Msg("follow-set cache enabled")
	}

	var model content.Model
	if cfg.AI.GeminiAPIKey != "" {
		gm, err := content.NewGeminiModel(ctx, cfg.AI.GeminiAPIKey, cfg.AI.Model)
		if err != nil {
			log.Warn().Err(err).Msg("content generator disabled")
		} else {
			model = gm
		}
	}
	generator := content.NewGenerator(model, breakerFailures, breakerTimeout)

	system := actor.NewActorSystem()
	eng := engine.NewEngine(system, engine.NewServices(store, followCache, cfg, metrics), cfg.Server.EngineWorkers, metrics)
	defer eng.Stop()

	server := handlers.NewServer(cfg, eng, generator, metrics, store.Name())
	httpServer := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", httpServer.Addr).Int("workers", eng.Workers()).Bool("ai", generator.Available()).Msg("starting server")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
