package session

import (
	"time"

	"github.com/KirkDiggler/livesession/internal/models"
)

// Snapshot is one delivery of the active-session feed
type Snapshot struct {
	// Seq increases with every delivery of a subscription
	Seq uint64

	// Sessions is the full set of documents with IsActive == true
	Sessions []*models.Session

	// ReceivedAt is when the snapshot was read from the store
	ReceivedAt time.Time
}

// SubscribeActiveSessionsInput contains parameters for subscribing to the feed
type SubscribeActiveSessionsInput struct {
	// PollInterval overrides the repository's poll interval when positive
	PollInterval time.Duration
}

// ListActiveSessionsInput contains parameters for listing active sessions
type ListActiveSessionsInput struct{}

// ListActiveSessionsOutput contains the active sessions
type ListActiveSessionsOutput struct {
	Sessions []*models.Session
}

// CreateSessionInput contains parameters for creating a session
type CreateSessionInput struct {
	Title      string
	HostID     string
	HostName   string
	HostAvatar string

	// StartedAt is part of the session ID
	StartedAt time.Time
}

// CreateSessionOutput contains the result of creating a session
type CreateSessionOutput struct {
	Session *models.Session

	// Existed is true when the ID was already taken and nothing was written
	Existed bool
}

// GetSessionInput contains parameters for retrieving a session
type GetSessionInput struct {
	SessionID string
}

// UpdateSessionInput contains a partial update; nil fields are left unchanged
type UpdateSessionInput struct {
	SessionID     string
	Title         *string
	IsActive      *bool
	HostConnected *bool
	ViewerCount   *int
	LastActivity  *time.Time
	EndedAt       *time.Time
}

// DeleteSessionInput contains parameters for deleting a session
type DeleteSessionInput struct {
	SessionID string
}

// AddParticipantInput contains parameters for adding a member
type AddParticipantInput struct {
	SessionID   string
	UserID      string
	DisplayName string
	AvatarRef   string
	IsHost      bool
	JoinedAt    time.Time
}

// AddParticipantOutput contains the member record
type AddParticipantOutput struct {
	Participant *models.Participant

	// AlreadyPresent is true when the user was already a member
	AlreadyPresent bool
}

// RemoveParticipantInput contains parameters for removing a member
type RemoveParticipantInput struct {
	SessionID string
	UserID    string

	// ActorID is set for kicks; the store rejects actors that do not
	// outrank the member
	ActorID string
}

// UpdateParticipantInput sets moderation flags; nil fields are left unchanged
type UpdateParticipantInput struct {
	SessionID string
	UserID    string

	// ActorID is checked against the stored document like RemoveParticipantInput.ActorID
	ActorID  string
	IsMuted  *bool
	IsBanned *bool
}
