package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/common/logging"
	"github.com/KirkDiggler/livesession/internal/common/oplock"
	"github.com/KirkDiggler/livesession/internal/models"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
)

const (
	createConflictMessage = "End current session to start a new one?"
	joinConflictMessage   = "Leave the current session to join this one?"
	hostLeaveMessage      = "You are the host. Leaving will end the session for everyone. Leave anyway?"
	hostEndMessage        = "End this session for everyone?"
)

// Manager owns the membership state of one client and runs its create, join
// and leave operations one at a time
type Manager struct {
	repo         sessionRepo.Repository
	auth         Authenticator
	confirmer    Confirmer
	lock         *oplock.Lock
	defaultTitle string
	clock        clock.Clock
	log          *zap.Logger

	mu          sync.Mutex
	watching    string
	isMinimized bool
	phase       models.MembershipPhase
}

// New creates a new lifecycle manager
func New(cfg *Config) (*Manager, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if cfg.Repository == nil {
		return nil, ErrNilRepository
	}

	if cfg.Authenticator == nil {
		return nil, ErrNilAuthenticator
	}

	if cfg.Confirmer == nil {
		return nil, ErrNilConfirmer
	}

	if cfg.Lock == nil {
		return nil, ErrNilLock
	}

	clk := cfg.Clock
	if clk == nil {
		clk = &clock.DefaultClock{}
	}

	defaultTitle := cfg.DefaultTitle
	if defaultTitle == "" {
		defaultTitle = models.DefaultSessionTitle
	}

	return &Manager{
		repo:         cfg.Repository,
		auth:         cfg.Authenticator,
		confirmer:    cfg.Confirmer,
		lock:         cfg.Lock,
		defaultTitle: defaultTitle,
		clock:        clk,
		log:          logging.OrNop(cfg.Logger),
		phase:        models.PhaseIdle,
	}, nil
}

// CreateSession starts a new session hosted by the caller. When the client
// already watches another session the user must agree to end it first.
func (m *Manager) CreateSession(ctx context.Context, input *CreateSessionInput) (*CreateSessionOutput, error) {
	if input == nil {
		return nil, ErrInvalidInput
	}

	var output *CreateSessionOutput
	err := m.lock.RunExclusive(ctx, "create_session", func(ctx context.Context) error {
		identity, err := m.authenticate(ctx)
		if err != nil {
			return err
		}

		if input.HostID != identity.UID {
			return ErrHostMismatch
		}

		current := m.currentlyWatching()
		if current != "" {
			if err := m.confirm(ctx, &ConfirmInput{
				Kind:             ConfirmCreateConflict,
				CurrentSessionID: current,
				Message:          createConflictMessage,
			}); err != nil {
				return err
			}
		}

		tx := m.beginJoin()
		defer tx.compensate()

		if current != "" {
			m.leaveBestEffort(ctx, current, identity.UID)
		}

		title := input.Title
		if title == "" {
			title = m.defaultTitle
		}

		created, err := m.repo.CreateSession(ctx, &sessionRepo.CreateSessionInput{
			Title:      title,
			HostID:     identity.UID,
			HostName:   input.HostName,
			HostAvatar: input.HostAvatar,
			StartedAt:  m.clock.Now(),
		})
		if err != nil {
			return &StoreWriteError{Op: "create_session", Err: err}
		}

		tx.commit(created.Session.ID)
		output = &CreateSessionOutput{
			SessionID: created.Session.ID,
			Existed:   created.Existed,
		}

		m.log.Info("session created",
			zap.String("session_id", created.Session.ID),
			zap.String("host_id", identity.UID),
			zap.Bool("existed", created.Existed))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return output, nil
}

// JoinSession makes the caller a member of a session. Joining the watched
// session is a no-op; joining another one asks first unless
// SkipConfirmation is set.
func (m *Manager) JoinSession(ctx context.Context, input *JoinSessionInput) (*JoinSessionOutput, error) {
	if input == nil || input.SessionID == "" {
		return nil, ErrInvalidInput
	}

	var output *JoinSessionOutput
	err := m.lock.RunExclusive(ctx, "join_session", func(ctx context.Context) error {
		identity, err := m.authenticate(ctx)
		if err != nil {
			return err
		}

		current := m.currentlyWatching()
		if current == input.SessionID {
			output = &JoinSessionOutput{SessionID: current, AlreadyWatching: true}
			return nil
		}

		if current != "" && !input.SkipConfirmation {
			if err := m.confirm(ctx, &ConfirmInput{
				Kind:             ConfirmJoinConflict,
				SessionID:        input.SessionID,
				CurrentSessionID: current,
				Message:          joinConflictMessage,
			}); err != nil {
				return err
			}
		}

		tx := m.beginJoin()
		defer tx.compensate()

		if current != "" {
			m.leaveBestEffort(ctx, current, identity.UID)
		}

		joined, err := m.repo.AddParticipant(ctx, &sessionRepo.AddParticipantInput{
			SessionID:   input.SessionID,
			UserID:      identity.UID,
			DisplayName: identity.DisplayName,
			AvatarRef:   identity.AvatarRef,
			IsHost:      input.AsHost,
			JoinedAt:    m.clock.Now(),
		})
		if err != nil {
			return &StoreWriteError{Op: "join_session", Err: err}
		}

		tx.commit(input.SessionID)
		output = &JoinSessionOutput{
			SessionID: input.SessionID,
			JoinOrder: joined.Participant.JoinOrder,
		}

		m.log.Info("joined session",
			zap.String("session_id", input.SessionID),
			zap.String("user_id", identity.UID),
			zap.Int64("join_order", joined.Participant.JoinOrder))
		return nil
	})
	if err != nil {
		return nil, err
	}

	return output, nil
}

// LeaveSession stops tracking the session right away and then writes the
// leave. A failed write is returned but the session stays untracked. A host
// leaving ends the session.
func (m *Manager) LeaveSession(ctx context.Context, input *LeaveSessionInput) error {
	if input == nil {
		return ErrInvalidInput
	}

	return m.lock.RunExclusive(ctx, "leave_session", func(ctx context.Context) error {
		identity, err := m.authenticate(ctx)
		if err != nil {
			return err
		}

		sessionID, err := m.targetSession(input.SessionID)
		if err != nil {
			return err
		}

		return m.leave(ctx, sessionID, identity.UID)
	})
}

// LeaveSessionWithConfirmation asks the host before leaving. Other members
// leave without a prompt.
func (m *Manager) LeaveSessionWithConfirmation(ctx context.Context, input *LeaveSessionInput) error {
	if input == nil {
		return ErrInvalidInput
	}

	return m.lock.RunExclusive(ctx, "leave_session", func(ctx context.Context) error {
		identity, err := m.authenticate(ctx)
		if err != nil {
			return err
		}

		sessionID, err := m.targetSession(input.SessionID)
		if err != nil {
			return err
		}

		isHost, err := m.isHost(ctx, sessionID, identity.UID)
		if err != nil {
			return err
		}

		if isHost {
			if err := m.confirm(ctx, &ConfirmInput{
				Kind:             ConfirmHostLeave,
				SessionID:        sessionID,
				CurrentSessionID: m.currentlyWatching(),
				Message:          hostLeaveMessage,
			}); err != nil {
				return err
			}
		}

		return m.leave(ctx, sessionID, identity.UID)
	})
}

// EndSession ends a session the caller hosts, after confirmation
func (m *Manager) EndSession(ctx context.Context, input *EndSessionInput) error {
	if input == nil {
		return ErrInvalidInput
	}

	return m.lock.RunExclusive(ctx, "end_session", func(ctx context.Context) error {
		identity, err := m.authenticate(ctx)
		if err != nil {
			return err
		}

		sessionID, err := m.targetSession(input.SessionID)
		if err != nil {
			return err
		}

		isHost, err := m.isHost(ctx, sessionID, identity.UID)
		if err != nil {
			return err
		}

		if !isHost {
			return ErrNotHost
		}

		if err := m.confirm(ctx, &ConfirmInput{
			Kind:             ConfirmHostEnd,
			SessionID:        sessionID,
			CurrentSessionID: m.currentlyWatching(),
			Message:          hostEndMessage,
		}); err != nil {
			return err
		}

		m.clearIfWatching(sessionID, models.PhasePendingLeave)
		defer m.settleLeave()

		if err := m.endSession(ctx, sessionID); err != nil {
			return &StoreWriteError{Op: "end_session", Err: err}
		}

		m.log.Info("session ended", zap.String("session_id", sessionID))
		return nil
	})
}

// SetMinimized tracks sessionID with the given minimized flag. It is local
// only and does not take the lifecycle lock.
func (m *Manager) SetMinimized(sessionID string, minimized bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.watching = sessionID
	m.isMinimized = minimized && sessionID != ""
	if sessionID == "" {
		m.phase = models.PhaseIdle
	} else if m.phase == models.PhaseIdle {
		m.phase = models.PhaseActive
	}
}

// HasActiveSession reports whether a session is tracked
func (m *Manager) HasActiveSession() bool {
	return m.currentlyWatching() != ""
}

// Phase returns the client's membership phase
func (m *Manager) Phase() models.MembershipPhase {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.phase
}

// State returns a copy of the client state
func (m *Manager) State() models.ClientState {
	m.mu.Lock()
	state := models.ClientState{
		CurrentlyWatching: m.watching,
		IsMinimized:       m.isMinimized,
		Phase:             m.phase,
	}
	m.mu.Unlock()

	state.OperationInProgress = m.lock.InProgress()
	state.LastOperationTimestamp = m.lock.LastCompleted()
	return state
}

// RefreshWatching stops tracking the watched session when the store reports
// it gone, ended, or no longer listing the caller as an unbanned member. It
// runs under the lock but never counts against the debounce interval.
// Returns oplock.ErrOperationInProgress while a user operation is running.
func (m *Manager) RefreshWatching(ctx context.Context) (*RefreshOutput, error) {
	output := &RefreshOutput{}

	err := m.lock.RunBackground(ctx, "refresh_watching", func(ctx context.Context) error {
		sessionID := m.currentlyWatching()
		if sessionID == "" {
			return nil
		}
		output.SessionID = sessionID

		session, err := m.repo.GetSession(ctx, &sessionRepo.GetSessionInput{SessionID: sessionID})
		switch {
		case errors.Is(err, sessionRepo.ErrSessionNotFound):
			output.Reset = true
		case err != nil:
			return fmt.Errorf("failed to get watched session: %w", err)
		case !session.IsActive:
			output.Reset = true
		default:
			identity, authErr := m.auth.CurrentUser(ctx)
			if authErr == nil && identity.Authenticated() {
				p := session.Participant(identity.UID)
				output.Reset = p == nil || p.IsBanned
			}
		}

		if output.Reset {
			m.clearIfWatching(sessionID, models.PhaseIdle)
			m.log.Info("stopped tracking session", zap.String("session_id", sessionID))
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return output, nil
}

// leave is the two-phase leave: local state is cleared first and never
// restored, then the store is updated
func (m *Manager) leave(ctx context.Context, sessionID, userID string) error {
	m.clearIfWatching(sessionID, models.PhasePendingLeave)
	defer m.settleLeave()

	if err := m.leaveWrite(ctx, sessionID, userID); err != nil {
		m.log.Warn("leave write failed",
			zap.String("session_id", sessionID),
			zap.String("user_id", userID),
			zap.Error(err))
		return &StoreWriteError{Op: "leave_session", Err: err}
	}

	m.log.Info("left session",
		zap.String("session_id", sessionID),
		zap.String("user_id", userID))
	return nil
}

// leaveBestEffort leaves the previously watched session before a create or
// join; failures are logged only
func (m *Manager) leaveBestEffort(ctx context.Context, sessionID, userID string) {
	m.mu.Lock()
	if m.watching == sessionID {
		m.watching = ""
		m.isMinimized = false
	}
	m.mu.Unlock()

	if err := m.leaveWrite(ctx, sessionID, userID); err != nil {
		m.log.Warn("failed to leave previous session",
			zap.String("session_id", sessionID),
			zap.String("user_id", userID),
			zap.Error(err))
	}
}

// leaveWrite ends the session when userID is its host and removes the
// participant otherwise. Leaving a session that is already gone succeeds.
func (m *Manager) leaveWrite(ctx context.Context, sessionID, userID string) error {
	session, err := m.repo.GetSession(ctx, &sessionRepo.GetSessionInput{SessionID: sessionID})
	if errors.Is(err, sessionRepo.ErrSessionNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	if session.HostID == userID {
		if !session.IsActive {
			return nil
		}
		return m.endSession(ctx, sessionID)
	}

	err = m.repo.RemoveParticipant(ctx, &sessionRepo.RemoveParticipantInput{
		SessionID: sessionID,
		UserID:    userID,
	})
	if errors.Is(err, sessionRepo.ErrParticipantNotFound) || errors.Is(err, sessionRepo.ErrSessionNotFound) {
		return nil
	}
	return err
}

// endSession soft-terminates a session
func (m *Manager) endSession(ctx context.Context, sessionID string) error {
	inactive := false
	disconnected := false
	endedAt := m.clock.Now()

	return m.repo.UpdateSession(ctx, &sessionRepo.UpdateSessionInput{
		SessionID:     sessionID,
		IsActive:      &inactive,
		HostConnected: &disconnected,
		EndedAt:       &endedAt,
		LastActivity:  &endedAt,
	})
}

func (m *Manager) isHost(ctx context.Context, sessionID, userID string) (bool, error) {
	session, err := m.repo.GetSession(ctx, &sessionRepo.GetSessionInput{SessionID: sessionID})
	if errors.Is(err, sessionRepo.ErrSessionNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to get session: %w", err)
	}

	return session.HostID == userID, nil
}

func (m *Manager) authenticate(ctx context.Context) (*models.Identity, error) {
	identity, err := m.auth.CurrentUser(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNotAuthenticated, err)
	}

	if !identity.Authenticated() {
		return nil, ErrNotAuthenticated
	}

	return identity, nil
}

// confirm returns ErrUserCancelled when the user declines
func (m *Manager) confirm(ctx context.Context, input *ConfirmInput) error {
	ok, err := m.confirmer.Confirm(ctx, input)
	if err != nil {
		return fmt.Errorf("failed to confirm %s: %w", input.Kind, err)
	}

	if !ok {
		m.log.Debug("confirmation declined", zap.String("kind", string(input.Kind)))
		return ErrUserCancelled
	}

	return nil
}

func (m *Manager) targetSession(sessionID string) (string, error) {
	if sessionID != "" {
		return sessionID, nil
	}

	if current := m.currentlyWatching(); current != "" {
		return current, nil
	}

	return "", ErrNoSession
}

func (m *Manager) currentlyWatching() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watching
}

// clearIfWatching stops tracking sessionID and moves to phase
func (m *Manager) clearIfWatching(sessionID string, phase models.MembershipPhase) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.watching != sessionID {
		return
	}

	m.watching = ""
	m.isMinimized = false
	m.phase = phase
}

// settleLeave ends a PENDING_LEAVE phase whatever the write's outcome
func (m *Manager) settleLeave() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.phase == models.PhasePendingLeave {
		m.phase = models.PhaseIdle
	}
}

// joinTx moves the client into PENDING_JOIN and resets it to IDLE unless
// committed
type joinTx struct {
	m         *Manager
	committed bool
	startedAt time.Time
}

func (m *Manager) beginJoin() *joinTx {
	m.mu.Lock()
	m.phase = models.PhasePendingJoin
	m.mu.Unlock()

	return &joinTx{m: m, startedAt: m.clock.Now()}
}

func (tx *joinTx) commit(sessionID string) {
	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()

	tx.m.watching = sessionID
	tx.m.isMinimized = false
	tx.m.phase = models.PhaseActive
	tx.committed = true
}

// compensate runs deferred so panics also reset the client
func (tx *joinTx) compensate() {
	if tx.committed {
		return
	}

	tx.m.mu.Lock()
	defer tx.m.mu.Unlock()

	tx.m.watching = ""
	tx.m.isMinimized = false
	tx.m.phase = models.PhaseIdle

	tx.m.log.Debug("join rolled back",
		zap.Duration("elapsed", tx.m.clock.Now().Sub(tx.startedAt)))
}
