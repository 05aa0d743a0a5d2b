package models

import (
	"time"
)

// DefaultSessionTitle is used when a session is published without a title
const DefaultSessionTitle = "Live Stream"

// Session represents one live broadcast
type Session struct {
	// ID is the unique identifier for the session, stable for its lifetime
	ID string `json:"id"`

	// Title is the display title, may be empty
	Title string `json:"title"`

	// HostID is the user ID of the creating host; immutable once set
	HostID string `json:"hostId"`

	// IsActive is true from creation until the session is ended or reclassified
	IsActive bool `json:"isActive"`

	// HostConnected is set by the real-time transport when the host's stream is attached
	HostConnected bool `json:"hostConnected"`

	// ViewerCount is maintained externally and consumed read-only
	ViewerCount int `json:"viewerCount"`

	// StartedAt is when the session was created
	StartedAt time.Time `json:"startedAt"`

	// LastActivity is updated by activity signals
	LastActivity time.Time `json:"lastActivity"`

	// EndedAt is set when the session is soft-terminated
	EndedAt *time.Time `json:"endedAt,omitempty"`

	// Participants is ordered by join order
	Participants []*Participant `json:"participants"`
}

// Participant returns the participant record for a user, or nil
func (s *Session) Participant(userID string) *Participant {
	for _, p := range s.Participants {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// Hosts returns the non-banned host participants in join order
func (s *Session) Hosts() []*Participant {
	hosts := make([]*Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		if p.IsHost && !p.IsBanned {
			hosts = append(hosts, p)
		}
	}
	return hosts
}

// Outranks reports whether actorID may moderate targetID: both must be
// non-banned hosts and the actor must have joined first
func (s *Session) Outranks(actorID, targetID string) bool {
	if actorID == targetID {
		return false
	}

	actor := s.Participant(actorID)
	target := s.Participant(targetID)
	if actor == nil || target == nil {
		return false
	}

	if !actor.IsHost || actor.IsBanned || !target.IsHost {
		return false
	}

	return actor.JoinOrder < target.JoinOrder
}

// Age returns how long the session has been running; zero when StartedAt is unset
func (s *Session) Age(now time.Time) time.Duration {
	if s.StartedAt.IsZero() {
		return 0
	}
	return now.Sub(s.StartedAt)
}

// Clone returns a deep copy of the session
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}
	out := *s
	if s.EndedAt != nil {
		endedAt := *s.EndedAt
		out.EndedAt = &endedAt
	}
	out.Participants = make([]*Participant, 0, len(s.Participants))
	for _, p := range s.Participants {
		cp := *p
		out.Participants = append(out.Participants, &cp)
	}
	return &out
}
