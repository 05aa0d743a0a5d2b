package api

import (
	"time"

	"github.com/KirkDiggler/livesession/internal/models"
)

// SessionSource exposes the reconciled session list
type SessionSource interface {
	Sessions() []*models.Session
	Session(sessionID string) (*models.Session, bool)
	LastSeq() uint64
}

// SessionResponse is the JSON shape of a live session
type SessionResponse struct {
	ID           string                `json:"id"`
	Title        string                `json:"title"`
	HostID       string                `json:"hostId"`
	ViewerCount  int                   `json:"viewerCount"`
	StartedAt    time.Time             `json:"startedAt"`
	AgeSeconds   int64                 `json:"ageSeconds"`
	Participants []*models.Participant `json:"participants"`
}

// ListSessionsResponse is returned by GET /sessions
type ListSessionsResponse struct {
	Seq      uint64             `json:"seq"`
	Sessions []*SessionResponse `json:"sessions"`
}

// HostSignalRequest is sent by the media transport when the host's stream
// attaches or detaches, or the audience size changes
type HostSignalRequest struct {
	HostConnected *bool `json:"hostConnected"`
	ViewerCount   *int  `json:"viewerCount" binding:"omitempty,min=0"`
}
