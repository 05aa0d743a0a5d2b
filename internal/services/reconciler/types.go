package reconciler

import (
	"time"

	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/models"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
)

// DefaultGraceWindow is how long a session may wait for its host's transport
// before it is treated as orphaned
const DefaultGraceWindow = 15 * time.Second

// Config holds configuration for the reconciler
type Config struct {
	// Repository is the session store the feed is read from
	Repository sessionRepo.Repository

	// GraceWindow; zero uses DefaultGraceWindow
	GraceWindow time.Duration

	// PollInterval is passed to the subscription; zero keeps the store default
	PollInterval time.Duration

	// DefaultTitle replaces empty titles; empty uses models.DefaultSessionTitle
	DefaultTitle string

	Clock  clock.Clock
	Logger *zap.Logger
}

// Delta lists what changed between two materialized lists
type Delta struct {
	Added   []string
	Removed []string
	Changed []string
}

// Empty reports whether nothing changed
func (d *Delta) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Changed) == 0
}

// ApplyOutput contains the result of applying one snapshot
type ApplyOutput struct {
	// Stale is true when the snapshot was older than the last applied one
	// and was dropped
	Stale bool

	// Sessions is the new materialized list
	Sessions []*models.Session

	// Delta against the previous list
	Delta *Delta

	// Orphaned lists sessions that were cleaned up in this delivery
	Orphaned []string

	// Pending lists active sessions still waiting for their host
	Pending []string
}

// Update is published to UI consumers after every applied snapshot that
// changed the materialized list
type Update struct {
	Seq      uint64
	Sessions []*models.Session
	Delta    *Delta
}
