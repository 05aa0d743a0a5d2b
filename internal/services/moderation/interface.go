package moderation

import "github.com/KirkDiggler/livesession/internal/models"

// SnapshotSource exposes the locally synchronized sessions
//
//go:generate mockgen -package=mocks -destination=mocks/mock_snapshot_source.go github.com/KirkDiggler/livesession/internal/services/moderation SnapshotSource
type SnapshotSource interface {
	Session(sessionID string) (*models.Session, bool)
}
