package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
)

var (
	signalSession   string
	signalConnected bool
	signalViewers   int
)

var hostSignalCmd = &cobra.Command{
	Use:   "host-signal",
	Short: "Write host transport state for a session",
	Long: `Write hostConnected and viewerCount for a session the way the media
transport would. Only the flags that are given are written.

Example:
  livesession host-signal --session host1_1713528000000 --connected --viewers 3`,
	RunE: runHostSignal,
}

func init() {
	hostSignalCmd.Flags().StringVar(&signalSession, "session", "", "Session ID")
	hostSignalCmd.Flags().BoolVar(&signalConnected, "connected", false, "Host stream attached")
	hostSignalCmd.Flags().IntVar(&signalViewers, "viewers", 0, "Viewer count")
	_ = hostSignalCmd.MarkFlagRequired("session")
	rootCmd.AddCommand(hostSignalCmd)
}

func runHostSignal(cmd *cobra.Command, args []string) error {
	input := &sessionRepo.UpdateSessionInput{SessionID: signalSession}

	if cmd.Flags().Changed("connected") {
		input.HostConnected = &signalConnected
	}
	if cmd.Flags().Changed("viewers") {
		if signalViewers < 0 {
			return fmt.Errorf("--viewers must not be negative")
		}
		input.ViewerCount = &signalViewers
	}
	if input.HostConnected == nil && input.ViewerCount == nil {
		return fmt.Errorf("nothing to write: pass --connected and/or --viewers")
	}

	now := time.Now()
	input.LastActivity = &now

	repo, err := newRepository()
	if err != nil {
		return err
	}

	if err := repo.UpdateSession(cmd.Context(), input); err != nil {
		return fmt.Errorf("failed to update session %s: %w", signalSession, err)
	}

	fmt.Printf("Updated %s\n", signalSession)
	return nil
}
