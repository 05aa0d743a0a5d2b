package main

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

	"github.com/KirkDiggler/livesession/internal/handlers/api"
	"github.com/KirkDiggler/livesession/internal/handlers/discord"
	"github.com/KirkDiggler/livesession/internal/services/reconciler"
)

var serveDiscord bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reconciler, the Discord bot, and the HTTP API",
	Long: `Run the long-lived process.

The reconciler follows the active-session feed and cleans up orphaned
sessions. The Discord bot exposes /live to users, and the HTTP API serves
health checks, the reconciled session list, and host transport signals.`,
	RunE: runServe,
}

func init() {
	serveCmd.Flags().BoolVar(&serveDiscord, "discord", true, "Run the Discord bot")
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, args []string) error {
	if serveDiscord {
		if err := cfg.ValidateDiscord(); err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	repo, err := newRepository()
	if err != nil {
		return err
	}

	rec, err := reconciler.New(&reconciler.Config{
		Repository:   repo,
		GraceWindow:  cfg.GraceWindow,
		PollInterval: cfg.PollInterval,
		Logger:       logger.Named("reconciler"),
	})
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %w", err)
	}

	if err := rec.Start(ctx); err != nil {
		return fmt.Errorf("failed to start reconciler: %w", err)
	}
	defer func() {
		if err := rec.Stop(); err != nil {
			logger.Warn("error stopping reconciler", zap.Error(err))
		}
	}()

	if serveDiscord {
		bot, err := discord.New(&discord.Config{
			Token:             cfg.Discord.Token,
			ApplicationID:     cfg.Discord.ApplicationID,
			GuildID:           cfg.Discord.GuildID,
			AnnounceChannelID: cfg.Discord.AnnounceChannelID,
			Repository:        repo,
			Reconciler:        rec,
			DebounceInterval:  cfg.DebounceInterval,
			ConfirmTimeout:    cfg.Discord.ConfirmTimeout,
			Logger:            logger.Named("discord"),
		})
		if err != nil {
			return fmt.Errorf("failed to create Discord bot: %w", err)
		}

		if err := bot.Start(ctx); err != nil {
			return fmt.Errorf("failed to start Discord bot: %w", err)
		}
		defer func() {
			if err := bot.Stop(); err != nil {
				logger.Warn("error stopping bot", zap.Error(err))
			}
		}()
	}

	if cfg.HTTPAddr != "" {
		srv := &http.Server{
			Addr: cfg.HTTPAddr,
			Handler: api.NewRouter(&api.Config{
				Sessions:   rec,
				Repository: repo,
				Ping: func(ctx context.Context) error {
					return redisClient.Ping(ctx).Err()
				},
				Logger: logger.Named("http"),
			}),
			ReadHeaderTimeout: 5 * time.Second,
		}

		go func() {
			logger.Info("HTTP server listening", zap.String("addr", cfg.HTTPAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("HTTP server failed", zap.Error(err))
				stop()
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				logger.Warn("error shutting down HTTP server", zap.Error(err))
			}
		}()
	}

	logger.Info("livesession is running")
	<-ctx.Done()
	logger.Info("shutting down")

	return nil
}
