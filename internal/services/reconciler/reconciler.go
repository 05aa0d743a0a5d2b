package reconciler

import (
	"context"
	"fmt"
	"reflect"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/common/logging"
	"github.com/KirkDiggler/livesession/internal/models"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
)

// Reconciler turns the active-session feed into the canonical local session
// list and cleans up orphaned sessions as a side effect of each delivery.
// The materialized list is owned here and replaced wholesale per delivery.
type Reconciler struct {
	repo         sessionRepo.Repository
	clock        clock.Clock
	log          *zap.Logger
	graceWindow  time.Duration
	pollInterval time.Duration
	defaultTitle string

	// applyMu serializes deliveries
	applyMu sync.Mutex
	lastSeq uint64
	applied bool

	mu       sync.RWMutex
	sessions []*models.Session
	byID     map[string]*models.Session

	updatesMu     sync.Mutex
	updates       chan *Update
	updatesClosed bool

	subMu   sync.Mutex
	sub     sessionRepo.Subscription
	cancel  context.CancelFunc
	done    chan struct{}
	stopped bool
}

// New creates a new reconciler
func New(cfg *Config) (*Reconciler, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if cfg.Repository == nil {
		return nil, ErrNilRepository
	}

	graceWindow := cfg.GraceWindow
	if graceWindow <= 0 {
		graceWindow = DefaultGraceWindow
	}

	defaultTitle := cfg.DefaultTitle
	if defaultTitle == "" {
		defaultTitle = models.DefaultSessionTitle
	}

	clk := cfg.Clock
	if clk == nil {
		clk = &clock.DefaultClock{}
	}

	return &Reconciler{
		repo:         cfg.Repository,
		clock:        clk,
		log:          logging.OrNop(cfg.Logger),
		graceWindow:  graceWindow,
		pollInterval: cfg.PollInterval,
		defaultTitle: defaultTitle,
		sessions:     []*models.Session{},
		byID:         make(map[string]*models.Session),
		updates:      make(chan *Update, 1),
	}, nil
}

// Start opens the feed subscription and applies deliveries in the order they
// arrive until ctx is cancelled or Stop is called
func (r *Reconciler) Start(ctx context.Context) error {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.stopped {
		return ErrStopped
	}

	if r.sub != nil {
		return ErrAlreadyStarted
	}

	sub, err := r.repo.SubscribeActiveSessions(ctx, &sessionRepo.SubscribeActiveSessionsInput{
		PollInterval: r.pollInterval,
	})
	if err != nil {
		return fmt.Errorf("failed to subscribe to active sessions: %w", err)
	}

	runCtx, cancel := context.WithCancel(ctx)
	r.sub = sub
	r.cancel = cancel
	r.done = make(chan struct{})

	go r.consume(runCtx, sub, r.done)

	r.log.Info("reconciler started", zap.Duration("grace_window", r.graceWindow))
	return nil
}

// Stop closes the subscription and waits for the delivery loop to exit. The
// reconciler cannot be restarted afterwards.
func (r *Reconciler) Stop() error {
	r.subMu.Lock()
	defer r.subMu.Unlock()

	if r.stopped {
		return nil
	}
	r.stopped = true

	var err error
	if r.sub != nil {
		r.cancel()
		err = r.sub.Close()
		<-r.done
		r.sub = nil
	}

	r.updatesMu.Lock()
	r.updatesClosed = true
	close(r.updates)
	r.updatesMu.Unlock()

	r.log.Info("reconciler stopped")
	return err
}

func (r *Reconciler) consume(ctx context.Context, sub sessionRepo.Subscription, done chan struct{}) {
	defer close(done)

	snapshots := sub.Snapshots()
	for {
		select {
		case <-ctx.Done():
			return
		case snapshot, ok := <-snapshots:
			if !ok {
				return
			}
			if _, err := r.Apply(ctx, snapshot); err != nil {
				r.log.Error("failed to apply snapshot",
					zap.Uint64("seq", snapshot.Seq),
					zap.Error(err))
			}
		}
	}
}

// Apply runs one feed delivery: snapshots not newer than the last applied one
// are dropped, orphans are cleaned up, and the remaining ready sessions become
// the new materialized list.
func (r *Reconciler) Apply(ctx context.Context, snapshot *sessionRepo.Snapshot) (*ApplyOutput, error) {
	if snapshot == nil {
		return nil, ErrNilSnapshot
	}

	r.applyMu.Lock()
	defer r.applyMu.Unlock()

	if snapshot.Seq <= r.lastSeq {
		r.log.Debug("dropping stale snapshot",
			zap.Uint64("seq", snapshot.Seq),
			zap.Uint64("last_seq", r.lastSeq))
		return &ApplyOutput{Stale: true}, nil
	}

	now := r.clock.Now()
	visible := make([]*models.Session, 0, len(snapshot.Sessions))
	var orphaned, pending []string

	for _, raw := range snapshot.Sessions {
		if raw == nil {
			continue
		}

		if r.isOrphan(raw, now) {
			orphaned = append(orphaned, raw.ID)
			continue
		}

		if !raw.IsActive || !raw.HostConnected {
			// Not ready yet, typically still inside the grace window
			pending = append(pending, raw.ID)
			continue
		}

		visible = append(visible, r.normalize(raw, now))
	}

	delta := r.replace(visible)
	r.lastSeq = snapshot.Seq

	if !delta.Empty() || !r.applied {
		r.publish(&Update{
			Seq:      snapshot.Seq,
			Sessions: cloneAll(visible),
			Delta:    delta,
		})
	}
	r.applied = true

	// Cleanup runs after the list is published so a slow store never delays it
	for _, sessionID := range orphaned {
		r.cleanupOrphan(ctx, sessionID, now)
	}

	return &ApplyOutput{
		Sessions: cloneAll(visible),
		Delta:    delta,
		Orphaned: orphaned,
		Pending:  pending,
	}, nil
}

// Sessions returns a copy of the materialized list
func (r *Reconciler) Sessions() []*models.Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.sessions)
}

// Session returns a copy of one materialized session
func (r *Reconciler) Session(sessionID string) (*models.Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	session, ok := r.byID[sessionID]
	if !ok {
		return nil, false
	}
	return session.Clone(), true
}

// LastSeq returns the sequence number of the last applied snapshot
func (r *Reconciler) LastSeq() uint64 {
	r.applyMu.Lock()
	defer r.applyMu.Unlock()
	return r.lastSeq
}

// Updates delivers the newest materialized list after each change. Slow
// readers only see the latest update. The channel is closed by Stop.
func (r *Reconciler) Updates() <-chan *Update {
	return r.updates
}

// isOrphan: active, no host transport, nobody watching, past the grace window
func (r *Reconciler) isOrphan(session *models.Session, now time.Time) bool {
	return session.IsActive &&
		!session.HostConnected &&
		session.ViewerCount <= 0 &&
		session.Age(now) > r.graceWindow
}

// cleanupOrphan deletes the session, falling back to soft termination. Either
// terminal state is acceptable; failures are retried on the next delivery.
func (r *Reconciler) cleanupOrphan(ctx context.Context, sessionID string, now time.Time) {
	deleteErr := r.repo.DeleteSession(ctx, &sessionRepo.DeleteSessionInput{
		SessionID: sessionID,
	})
	if deleteErr == nil {
		r.log.Info("deleted orphaned session", zap.String("session_id", sessionID))
		return
	}

	inactive := false
	endedAt := now
	updateErr := r.repo.UpdateSession(ctx, &sessionRepo.UpdateSessionInput{
		SessionID: sessionID,
		IsActive:  &inactive,
		EndedAt:   &endedAt,
	})
	if updateErr == nil {
		r.log.Info("ended orphaned session",
			zap.String("session_id", sessionID),
			zap.NamedError("delete_error", deleteErr))
		return
	}

	r.log.Warn(ErrOrphanCleanupFailed.Error(),
		zap.String("session_id", sessionID),
		zap.NamedError("delete_error", deleteErr),
		zap.NamedError("update_error", updateErr))
}

func (r *Reconciler) normalize(raw *models.Session, now time.Time) *models.Session {
	session := raw.Clone()

	if session.Title == "" {
		session.Title = r.defaultTitle
	}

	// A missing start time is stamped once; redeliveries keep the first stamp
	if session.StartedAt.IsZero() {
		session.StartedAt = now
		r.mu.RLock()
		if previous, ok := r.byID[session.ID]; ok {
			session.StartedAt = previous.StartedAt
		}
		r.mu.RUnlock()
	}

	sort.SliceStable(session.Participants, func(i, j int) bool {
		return session.Participants[i].JoinOrder < session.Participants[j].JoinOrder
	})

	return session
}

func (r *Reconciler) replace(visible []*models.Session) *Delta {
	next := make(map[string]*models.Session, len(visible))
	for _, session := range visible {
		next[session.ID] = session
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	delta := &Delta{}
	for _, session := range visible {
		previous, ok := r.byID[session.ID]
		if !ok {
			delta.Added = append(delta.Added, session.ID)
			continue
		}
		if !reflect.DeepEqual(previous, session) {
			delta.Changed = append(delta.Changed, session.ID)
		}
	}
	for _, session := range r.sessions {
		if _, ok := next[session.ID]; !ok {
			delta.Removed = append(delta.Removed, session.ID)
		}
	}

	r.sessions = visible
	r.byID = next
	return delta
}

func (r *Reconciler) publish(update *Update) {
	r.updatesMu.Lock()
	defer r.updatesMu.Unlock()

	if r.updatesClosed {
		return
	}

	select {
	case r.updates <- update:
		return
	default:
	}

	select {
	case <-r.updates:
	default:
	}

	select {
	case r.updates <- update:
	default:
	}
}

func cloneAll(sessions []*models.Session) []*models.Session {
	out := make([]*models.Session, 0, len(sessions))
	for _, session := range sessions {
		out = append(out, session.Clone())
	}
	return out
}
