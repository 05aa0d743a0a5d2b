package coordinator

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/common/logging"
	"github.com/KirkDiggler/livesession/internal/common/oplock"
	"github.com/KirkDiggler/livesession/internal/models"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
	"github.com/KirkDiggler/livesession/internal/services/lifecycle"
	"github.com/KirkDiggler/livesession/internal/services/moderation"
	"github.com/KirkDiggler/livesession/internal/services/reconciler"
)

// CoordinatorError is a custom error type for coordinator construction errors
type CoordinatorError string

// Error implements the error interface
func (e CoordinatorError) Error() string {
	return string(e)
}

// Define errors
const (
	ErrNilConfig     CoordinatorError = "config cannot be nil"
	ErrNilRepository CoordinatorError = "session repository cannot be nil"
)

// Config holds configuration for a coordinator
type Config struct {
	Repository    sessionRepo.Repository
	Authenticator lifecycle.Authenticator
	Confirmer     lifecycle.Confirmer

	// Reconciler is shared between coordinators of one process. When nil the
	// coordinator creates its own and runs it between Start and Close.
	Reconciler *reconciler.Reconciler

	GraceWindow      time.Duration
	PollInterval     time.Duration
	DebounceInterval time.Duration

	Clock  clock.Clock
	Logger *zap.Logger
}

// Coordinator is one client's view of live sessions: its lifecycle manager,
// the moderation service, and the reconciled session list
type Coordinator struct {
	reconciler    *reconciler.Reconciler
	ownReconciler bool
	lifecycle     *lifecycle.Manager
	moderation    *moderation.Service
	log           *zap.Logger
}

// New wires a coordinator
func New(cfg *Config) (*Coordinator, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if cfg.Repository == nil {
		return nil, ErrNilRepository
	}

	log := logging.OrNop(cfg.Logger)

	rec := cfg.Reconciler
	own := false
	if rec == nil {
		var err error
		rec, err = reconciler.New(&reconciler.Config{
			Repository:   cfg.Repository,
			GraceWindow:  cfg.GraceWindow,
			PollInterval: cfg.PollInterval,
			Clock:        cfg.Clock,
			Logger:       log.Named("reconciler"),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create reconciler: %w", err)
		}
		own = true
	}

	lock, err := oplock.New(&oplock.Config{
		MinInterval: cfg.DebounceInterval,
		Clock:       cfg.Clock,
		Logger:      log.Named("oplock"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lifecycle lock: %w", err)
	}

	manager, err := lifecycle.New(&lifecycle.Config{
		Repository:    cfg.Repository,
		Authenticator: cfg.Authenticator,
		Confirmer:     cfg.Confirmer,
		Lock:          lock,
		Clock:         cfg.Clock,
		Logger:        log.Named("lifecycle"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create lifecycle manager: %w", err)
	}

	mod, err := moderation.New(&moderation.Config{
		Sessions:   rec,
		Repository: cfg.Repository,
		Logger:     log.Named("moderation"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create moderation service: %w", err)
	}

	return &Coordinator{
		reconciler:    rec,
		ownReconciler: own,
		lifecycle:     manager,
		moderation:    mod,
		log:           log,
	}, nil
}

// Start runs the coordinator's own reconciler; a shared one is started by
// its owner
func (c *Coordinator) Start(ctx context.Context) error {
	if !c.ownReconciler {
		return nil
	}
	return c.reconciler.Start(ctx)
}

// Close stops the coordinator's own reconciler
func (c *Coordinator) Close() error {
	if !c.ownReconciler {
		return nil
	}
	return c.reconciler.Stop()
}

// Lifecycle returns the client's lifecycle manager
func (c *Coordinator) Lifecycle() *lifecycle.Manager {
	return c.lifecycle
}

// Moderation returns the moderation service
func (c *Coordinator) Moderation() *moderation.Service {
	return c.moderation
}

// Reconciler returns the reconciler backing Sessions
func (c *Coordinator) Reconciler() *reconciler.Reconciler {
	return c.reconciler
}

// Sessions returns the reconciled list of live sessions
func (c *Coordinator) Sessions() []*models.Session {
	return c.reconciler.Sessions()
}

// WatchedSession returns the tracked session as last reconciled. A tracked
// session that is not yet visible, or was dropped, is reported as absent.
func (c *Coordinator) WatchedSession() (*models.Session, bool) {
	sessionID := c.lifecycle.State().CurrentlyWatching
	if sessionID == "" {
		return nil, false
	}
	return c.reconciler.Session(sessionID)
}
