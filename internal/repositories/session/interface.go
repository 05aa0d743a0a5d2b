package session

//go:generate mockgen -package=mocks -destination=mocks/mock_repository.go github.com/KirkDiggler/livesession/internal/repositories/session Repository

import (
	"context"

	"github.com/KirkDiggler/livesession/internal/models"
)

// Repository is the contract the coordinator depends on for the authoritative
// session store. Implementations must derive session IDs with BuildSessionID so
// that creation stays idempotent per host and start time.
type Repository interface {
	// SubscribeActiveSessions streams full snapshots of the active sessions
	SubscribeActiveSessions(ctx context.Context, input *SubscribeActiveSessionsInput) (Subscription, error)

	// ListActiveSessions reads the current active sessions once
	ListActiveSessions(ctx context.Context, input *ListActiveSessionsInput) (*ListActiveSessionsOutput, error)

	// CreateSession creates a session unless one with the same ID exists
	CreateSession(ctx context.Context, input *CreateSessionInput) (*CreateSessionOutput, error)

	// GetSession retrieves a session by ID
	GetSession(ctx context.Context, input *GetSessionInput) (*models.Session, error)

	// UpdateSession applies a partial update to a session
	UpdateSession(ctx context.Context, input *UpdateSessionInput) error

	// DeleteSession removes a session
	DeleteSession(ctx context.Context, input *DeleteSessionInput) error

	// AddParticipant adds a member with the next join order
	AddParticipant(ctx context.Context, input *AddParticipantInput) (*AddParticipantOutput, error)

	// RemoveParticipant drops a member's record
	RemoveParticipant(ctx context.Context, input *RemoveParticipantInput) error

	// UpdateParticipant sets moderation flags on a member
	UpdateParticipant(ctx context.Context, input *UpdateParticipantInput) error
}

// Subscription is a live feed of active-session snapshots. Close releases the
// underlying connection and closes the Snapshots channel.
type Subscription interface {
	Snapshots() <-chan *Snapshot
	Close() error
}
