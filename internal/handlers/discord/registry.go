package discord

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/common/logging"
	"github.com/KirkDiggler/livesession/internal/coordinator"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
	"github.com/KirkDiggler/livesession/internal/services/lifecycle"
	"github.com/KirkDiggler/livesession/internal/services/reconciler"
)

// RegistryConfig holds configuration for the coordinator registry
type RegistryConfig struct {
	Repository    sessionRepo.Repository
	Reconciler    *reconciler.Reconciler
	Authenticator lifecycle.Authenticator
	Confirmer     lifecycle.Confirmer

	DebounceInterval time.Duration

	Clock  clock.Clock
	Logger *zap.Logger
}

// Registry keeps one coordinator per Discord user. Every user is a separate
// client with its own lock and state; all of them share one reconciler.
type Registry struct {
	cfg *RegistryConfig
	log *zap.Logger

	mu           sync.Mutex
	coordinators map[string]*coordinator.Coordinator
}

// NewRegistry creates a coordinator registry
func NewRegistry(cfg *RegistryConfig) (*Registry, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if cfg.Repository == nil {
		return nil, ErrNilRepository
	}

	if cfg.Reconciler == nil {
		return nil, ErrNilReconciler
	}

	return &Registry{
		cfg:          cfg,
		log:          logging.OrNop(cfg.Logger),
		coordinators: make(map[string]*coordinator.Coordinator),
	}, nil
}

// For returns the user's coordinator, creating it on first use
func (r *Registry) For(userID string) (*coordinator.Coordinator, error) {
	if userID == "" {
		return nil, ErrNoUser
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if c, ok := r.coordinators[userID]; ok {
		return c, nil
	}

	c, err := coordinator.New(&coordinator.Config{
		Repository:       r.cfg.Repository,
		Authenticator:    r.cfg.Authenticator,
		Confirmer:        r.cfg.Confirmer,
		Reconciler:       r.cfg.Reconciler,
		DebounceInterval: r.cfg.DebounceInterval,
		Clock:            r.cfg.Clock,
		Logger:           r.log.With(zap.String("user_id", userID)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator for %s: %w", userID, err)
	}

	r.coordinators[userID] = c
	return c, nil
}

// Len returns the number of users with a coordinator
func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.coordinators)
}
