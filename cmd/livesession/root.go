package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/logging"
	"github.com/KirkDiggler/livesession/internal/config"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
)

var (
	cfg         *config.Config
	logger      *zap.Logger
	redisClient *redis.Client
)

// Execute runs the CLI
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "livesession",
	Short: "Live session coordinator",
	Long: `livesession - tracks live broadcast sessions and who is in them

Runs the Discord bot and the session reconciler, and provides operator
commands for one-off maintenance against the session store.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		if cfg, err = config.Load(); err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		if logger, err = logging.New(cfg.AppEnv, cfg.LogLevel); err != nil {
			return err
		}

		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})

		// Test Redis connection
		ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
		defer cancel()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return fmt.Errorf("failed to connect to Redis: %w", err)
		}
		return nil
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if redisClient != nil {
			_ = redisClient.Close()
		}
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func newRepository() (sessionRepo.Repository, error) {
	repo, err := sessionRepo.NewRedis(&sessionRepo.Config{
		RedisClient:  redisClient,
		PollInterval: cfg.PollInterval,
		Logger:       logger.Named("store"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create session repository: %w", err)
	}
	return repo, nil
}
