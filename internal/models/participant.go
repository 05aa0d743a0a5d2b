package models

import (
	"time"
)

// Participant represents a member of a live session
type Participant struct {
	// UserID is the ID of the member
	UserID string `json:"userId"`

	// DisplayName is the member's display name
	DisplayName string `json:"displayName"`

	// AvatarRef points at the member's avatar
	AvatarRef string `json:"avatarRef"`

	// IsHost indicates the member has broadcasting authority
	IsHost bool `json:"isHost"`

	// JoinOrder is assigned at join time and strictly increases per session.
	// Among hosts, a lower value outranks a higher one.
	JoinOrder int64 `json:"joinOrder"`

	// IsMuted is toggled by moderation
	IsMuted bool `json:"isMuted"`

	// IsBanned is toggled by moderation; the record is kept for audit
	IsBanned bool `json:"isBanned"`

	// JoinedAt is when the member joined
	JoinedAt time.Time `json:"joinedAt"`
}
