package moderation

import (
	"go.uber.org/zap"

	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
)

// Config holds configuration for the moderation service
type Config struct {
	// Sessions is checked before any store write
	Sessions SnapshotSource

	Repository sessionRepo.Repository
	Logger     *zap.Logger
}

// Action names a moderation action
type Action string

const (
	ActionKick Action = "kick"
	ActionMute Action = "mute"
	ActionBan  Action = "ban"
)

// ActionInput contains parameters for a moderation action
type ActionInput struct {
	SessionID string
	ActorID   string
	TargetID  string

	// Value is the flag to set for mute and ban; kick ignores it
	Value bool
}

// ActionOutput contains the result of a moderation action
type ActionOutput struct {
	Action Action

	// Applied is true when the store accepted the change
	Applied bool

	// Denied is true when the action was rejected; nothing was changed
	Denied bool

	// Reason explains a denial
	Reason string
}
