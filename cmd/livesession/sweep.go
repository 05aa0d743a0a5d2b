package main

import (
	"fmt"

	"github.com/spf13/cobra"

	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
	"github.com/KirkDiggler/livesession/internal/services/reconciler"
)

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one reconciliation pass",
	Long: `Read the active sessions once and apply the reconciliation rules.

Orphaned sessions are deleted, or ended when they cannot be deleted. The
visible and pending sessions are printed.`,
	RunE: runSweep,
}

func init() {
	rootCmd.AddCommand(sweepCmd)
}

func runSweep(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	repo, err := newRepository()
	if err != nil {
		return err
	}

	rec, err := reconciler.New(&reconciler.Config{
		Repository:  repo,
		GraceWindow: cfg.GraceWindow,
		Logger:      logger.Named("reconciler"),
	})
	if err != nil {
		return fmt.Errorf("failed to create reconciler: %w", err)
	}

	active, err := repo.ListActiveSessions(ctx, &sessionRepo.ListActiveSessionsInput{})
	if err != nil {
		return fmt.Errorf("failed to list active sessions: %w", err)
	}

	out, err := rec.Apply(ctx, &sessionRepo.Snapshot{Seq: 1, Sessions: active.Sessions})
	if err != nil {
		return fmt.Errorf("failed to reconcile: %w", err)
	}

	fmt.Printf("Active:   %d\n", len(active.Sessions))
	fmt.Printf("Visible:  %d\n", len(out.Sessions))
	fmt.Printf("Pending:  %d\n", len(out.Pending))
	fmt.Printf("Orphaned: %d\n", len(out.Orphaned))
	for _, id := range out.Orphaned {
		fmt.Printf("  cleaned up %s\n", id)
	}

	return nil
}
