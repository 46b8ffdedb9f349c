package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"devfeed/internal/config"
	"devfeed/internal/utils"
	"devfeed/simulator"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		log.Error().Err(err).Msg("simulation failed")
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	simCfg := simulator.DefaultSimConfig()
	cmd := &cobra.Command{
		Use:          "simulator",
		Short:        "Drive synthetic follow, post, like, comment and feed traffic against the engine",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadConfig()
			if err != nil {
				return err
			}
			utils.ConfigureLogger(cfg.Debug)
			simCfg.JWTSecret = cfg.Auth.JWTSecret
			simCfg.JWTIssuer = cfg.Auth.Issuer

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, simCfg.SimulationTime)
			defer cancel()

			sim := simulator.NewEnhancedSimulator(simCfg)
			if err := sim.Run(ctx); err != nil {
				return err
			}

			m := sim.GetMetrics()
			log.Info().
				Int("users", m.TotalUsers).
				Int("activeUsers", m.ActiveUsers).
				Int64("requests", m.TotalRequests).
				Int64("failed", m.FailedRequests).
				Dur("avgLatency", m.AverageLatency).
				Int("posts", m.TotalPosts).
				Int("aiPosts", m.AIPosts).
				Int("likes", m.TotalLikes).
				Int("unlikes", m.TotalUnlikes).
				Int("comments", m.TotalComments).
				Int("follows", m.TotalFollows).
				Int("unfollows", m.TotalUnfollows).
				Int("feeds", m.FeedFetches).
				Interface("errors", m.ErrorsByCode).
				Msg("simulation completed")
			return nil
		},
	}

	f := cmd.Flags()
	f.StringVar(&simCfg.EngineURL, "engine-url", simCfg.EngineURL, "base URL of the engine")
	f.IntVar(&simCfg.NumUsers, "users", simCfg.NumUsers, "number of synthetic users")
	f.IntVar(&simCfg.Workers, "workers", simCfg.Workers, "concurrent request workers")
	f.DurationVar(&simCfg.SimulationTime, "duration", simCfg.SimulationTime, "how long to run")
	f.DurationVar(&simCfg.RoundInterval, "round", simCfg.RoundInterval, "interval between activity rounds")
	f.Float64Var(&simCfg.ZipfS, "zipf", simCfg.ZipfS, "Zipf exponent for author popularity (> 1)")
	f.Float64Var(&simCfg.PostProbability, "post-prob", simCfg.PostProbability, "per-round post probability")
	f.Float64Var(&simCfg.LikeProbability, "like-prob", simCfg.LikeProbability, "per-round like toggle probability")
	return cmd
}
