package lifecycle

import (
	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/common/oplock"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
)

// Config holds configuration for the lifecycle manager
type Config struct {
	Repository    sessionRepo.Repository
	Authenticator Authenticator
	Confirmer     Confirmer

	// Lock serializes this client's operations
	Lock *oplock.Lock

	// DefaultTitle is used when a session is created without one
	DefaultTitle string

	Clock  clock.Clock
	Logger *zap.Logger
}

// ConfirmKind identifies which question is being asked
type ConfirmKind string

const (
	// ConfirmCreateConflict asks whether to end the current session to start a new one
	ConfirmCreateConflict ConfirmKind = "create_conflict"

	// ConfirmJoinConflict asks whether to leave the current session to join another
	ConfirmJoinConflict ConfirmKind = "join_conflict"

	// ConfirmHostLeave asks a host whether leaving should end the broadcast
	ConfirmHostLeave ConfirmKind = "host_leave"

	// ConfirmHostEnd asks a host to confirm ending the session
	ConfirmHostEnd ConfirmKind = "host_end"
)

// ConfirmInput describes a confirmation prompt
type ConfirmInput struct {
	Kind ConfirmKind

	// SessionID is the session the operation targets
	SessionID string

	// CurrentSessionID is the session the client is watching, if any
	CurrentSessionID string

	// Message is the question shown to the user
	Message string
}

// CreateSessionInput contains parameters for creating a session
type CreateSessionInput struct {
	Title      string
	HostID     string
	HostName   string
	HostAvatar string
}

// CreateSessionOutput contains the result of creating a session
type CreateSessionOutput struct {
	SessionID string

	// Existed is true when an identical session ID was already in the store
	Existed bool
}

// JoinSessionInput contains parameters for joining a session
type JoinSessionInput struct {
	SessionID string

	// SkipConfirmation joins without asking when another session is watched
	SkipConfirmation bool

	// AsHost joins as a co-host instead of a viewer
	AsHost bool
}

// JoinSessionOutput contains the result of joining a session
type JoinSessionOutput struct {
	SessionID string

	// AlreadyWatching is true when the call was a no-op
	AlreadyWatching bool

	// JoinOrder is the caller's join order in the session
	JoinOrder int64
}

// LeaveSessionInput contains parameters for leaving a session. An empty
// SessionID leaves the watched session.
type LeaveSessionInput struct {
	SessionID string
}

// EndSessionInput contains parameters for ending a session. An empty
// SessionID ends the watched session.
type EndSessionInput struct {
	SessionID string
}

// RefreshOutput contains the result of a watched-session refresh
type RefreshOutput struct {
	// SessionID is the session that was checked
	SessionID string

	// Reset is true when the client stopped tracking it
	Reset bool
}
