package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/models"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
)

// SessionHandler serves the reconciled session list and accepts host
// signals from the media transport
type SessionHandler struct {
	sessions SessionSource
	repo     sessionRepo.Repository
	clock    clock.Clock
	log      *zap.Logger
}

// NewSessionHandler creates a session handler
func NewSessionHandler(sessions SessionSource, repo sessionRepo.Repository, clk clock.Clock, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		repo:     repo,
		clock:    clk,
		log:      log,
	}
}

// ListSessions responds to GET /sessions
func (h *SessionHandler) ListSessions(c *gin.Context) {
	now := h.clock.Now()
	sessions := h.sessions.Sessions()

	out := make([]*SessionResponse, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, toResponse(session, now))
	}

	c.JSON(http.StatusOK, ListSessionsResponse{
		Seq:      h.sessions.LastSeq(),
		Sessions: out,
	})
}

// GetSession responds to GET /sessions/:id
func (h *SessionHandler) GetSession(c *gin.Context) {
	session, ok := h.sessions.Session(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
		return
	}

	c.JSON(http.StatusOK, toResponse(session, h.clock.Now()))
}

// HostSignal responds to POST /sessions/:id/signal
func (h *SessionHandler) HostSignal(c *gin.Context) {
	var req HostSignalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request", "message": err.Error()})
		return
	}

	if req.HostConnected == nil && req.ViewerCount == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "hostConnected or viewerCount required"})
		return
	}

	sessionID := c.Param("id")
	now := h.clock.Now()
	err := h.repo.UpdateSession(c.Request.Context(), &sessionRepo.UpdateSessionInput{
		SessionID:     sessionID,
		HostConnected: req.HostConnected,
		ViewerCount:   req.ViewerCount,
		LastActivity:  &now,
	})
	if err != nil {
		if errors.Is(err, sessionRepo.ErrSessionNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "session not found"})
			return
		}
		h.log.Error("failed to apply host signal", zap.String("session_id", sessionID), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update session"})
		return
	}

	c.Status(http.StatusNoContent)
}

func toResponse(session *models.Session, now time.Time) *SessionResponse {
	return &SessionResponse{
		ID:           session.ID,
		Title:        session.Title,
		HostID:       session.HostID,
		ViewerCount:  session.ViewerCount,
		StartedAt:    session.StartedAt,
		AgeSeconds:   int64(session.Age(now).Seconds()),
		Participants: session.Participants,
	}
}
