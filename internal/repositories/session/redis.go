package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/common/logging"
	"github.com/KirkDiggler/livesession/internal/models"
)

const (
	// Key prefixes for Redis
	sessionKeyPrefix  = "live_session:"
	joinSeqKeyPrefix  = "live_session_seq:"
	activeSessionsKey = "active_live_sessions"

	// ChangesChannel receives the ID of every session written
	ChangesChannel = "sessions:changed"

	// DefaultPollInterval is how often a subscription re-reads the active set
	// when no change notification arrives
	DefaultPollInterval = 5 * time.Second

	maxTxRetries = 5
)

// Config holds configuration for the Redis session repository
type Config struct {
	// Redis client
	RedisClient *redis.Client

	// PollInterval for subscriptions; zero uses DefaultPollInterval
	PollInterval time.Duration

	// Clock stamps snapshots; defaults to the system clock
	Clock clock.Clock

	// Logger defaults to a no-op logger
	Logger *zap.Logger
}

// redisRepository implements the Repository interface using Redis
type redisRepository struct {
	client       *redis.Client
	pollInterval time.Duration
	clock        clock.Clock
	log          *zap.Logger
}

// NewRedis creates a new Redis-backed session repository
func NewRedis(cfg *Config) (*redisRepository, error) {
	// Validate config
	if cfg == nil {
		return nil, errors.New("config cannot be nil")
	}

	if cfg.RedisClient == nil {
		return nil, errors.New("redis client cannot be nil")
	}

	// Test connection
	if err := cfg.RedisClient.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	pollInterval := cfg.PollInterval
	if pollInterval <= 0 {
		pollInterval = DefaultPollInterval
	}

	clk := cfg.Clock
	if clk == nil {
		clk = &clock.DefaultClock{}
	}

	return &redisRepository{
		client:       cfg.RedisClient,
		pollInterval: pollInterval,
		clock:        clk,
		log:          logging.OrNop(cfg.Logger),
	}, nil
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

func joinSeqKey(sessionID string) string {
	return joinSeqKeyPrefix + sessionID
}

// CreateSession creates the session document and its host participant. When a
// document with the computed ID exists it is returned untouched.
func (r *redisRepository) CreateSession(ctx context.Context, input *CreateSessionInput) (*CreateSessionOutput, error) {
	if input == nil {
		return nil, fmt.Errorf("%w: input cannot be nil", ErrInvalidInput)
	}

	if input.HostID == "" {
		return nil, fmt.Errorf("%w: host ID cannot be empty", ErrInvalidInput)
	}

	startedAt := input.StartedAt
	if startedAt.IsZero() {
		startedAt = r.clock.Now()
	}

	sessionID := BuildSessionID(input.HostID, startedAt)
	key := sessionKey(sessionID)

	var output *CreateSessionOutput
	txf := func(tx *redis.Tx) error {
		existing, err := getSession(ctx, tx, key)
		if err == nil {
			output = &CreateSessionOutput{Session: existing, Existed: true}
			return nil
		}
		if !errors.Is(err, ErrSessionNotFound) {
			return err
		}

		joinOrder, err := r.client.Incr(ctx, joinSeqKey(sessionID)).Result()
		if err != nil {
			return fmt.Errorf("failed to assign join order: %w", err)
		}

		session := &models.Session{
			ID:            sessionID,
			Title:         input.Title,
			HostID:        input.HostID,
			IsActive:      true,
			HostConnected: false,
			ViewerCount:   0,
			StartedAt:     startedAt,
			LastActivity:  startedAt,
			Participants: []*models.Participant{
				{
					UserID:      input.HostID,
					DisplayName: input.HostName,
					AvatarRef:   input.HostAvatar,
					IsHost:      true,
					JoinOrder:   joinOrder,
					JoinedAt:    startedAt,
				},
			},
		}

		if err := writeSession(ctx, tx, session); err != nil {
			return err
		}

		output = &CreateSessionOutput{Session: session}
		return nil
	}

	if err := r.watch(ctx, txf, key); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	return output, nil
}

// GetSession retrieves a session by ID from Redis
func (r *redisRepository) GetSession(ctx context.Context, input *GetSessionInput) (*models.Session, error) {
	if input == nil || input.SessionID == "" {
		return nil, fmt.Errorf("%w: input and session ID cannot be empty", ErrInvalidInput)
	}

	return getSession(ctx, r.client, sessionKey(input.SessionID))
}

// UpdateSession applies the non-nil fields of the input
func (r *redisRepository) UpdateSession(ctx context.Context, input *UpdateSessionInput) error {
	if input == nil || input.SessionID == "" {
		return fmt.Errorf("%w: input and session ID cannot be empty", ErrInvalidInput)
	}

	_, err := r.mutate(ctx, input.SessionID, func(session *models.Session) error {
		if input.Title != nil {
			session.Title = *input.Title
		}
		if input.IsActive != nil {
			session.IsActive = *input.IsActive
		}
		if input.HostConnected != nil {
			session.HostConnected = *input.HostConnected
		}
		if input.ViewerCount != nil {
			session.ViewerCount = *input.ViewerCount
		}
		if input.LastActivity != nil {
			session.LastActivity = *input.LastActivity
		}
		if input.EndedAt != nil {
			endedAt := *input.EndedAt
			session.EndedAt = &endedAt
		}
		return nil
	})
	return err
}

// DeleteSession removes a session, its join counter and its index entry
func (r *redisRepository) DeleteSession(ctx context.Context, input *DeleteSessionInput) error {
	if input == nil || input.SessionID == "" {
		return fmt.Errorf("%w: input and session ID cannot be empty", ErrInvalidInput)
	}

	key := sessionKey(input.SessionID)

	// Create a Redis transaction
	pipe := r.client.TxPipeline()
	del := pipe.Del(ctx, key)
	pipe.Del(ctx, joinSeqKey(input.SessionID))
	pipe.SRem(ctx, activeSessionsKey, input.SessionID)
	pipe.Publish(ctx, ChangesChannel, input.SessionID)

	// Execute the transaction
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	if del.Val() == 0 {
		return ErrSessionNotFound
	}

	return nil
}

// ListActiveSessions retrieves all active sessions, newest first
func (r *redisRepository) ListActiveSessions(ctx context.Context, input *ListActiveSessionsInput) (*ListActiveSessionsOutput, error) {
	// Get all active session IDs from the set
	sessionIDs, err := r.client.SMembers(ctx, activeSessionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get active session IDs: %w", err)
	}

	if len(sessionIDs) == 0 {
		return &ListActiveSessionsOutput{
			Sessions: []*models.Session{},
		}, nil
	}

	// Get all sessions in one round trip
	pipe := r.client.Pipeline()
	commands := make(map[string]*redis.StringCmd, len(sessionIDs))
	for _, sessionID := range sessionIDs {
		commands[sessionID] = pipe.Get(ctx, sessionKey(sessionID))
	}

	// A missing key surfaces as redis.Nil on its own command
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to get active sessions: %w", err)
	}

	sessions := make([]*models.Session, 0, len(sessionIDs))
	for sessionID, cmd := range commands {
		sessionJSON, err := cmd.Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				// Session was deleted between reading the index and fetching it
				continue
			}
			return nil, fmt.Errorf("failed to get session %s: %w", sessionID, err)
		}

		var session models.Session
		if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
			return nil, fmt.Errorf("failed to unmarshal session %s: %w", sessionID, err)
		}

		if !session.IsActive {
			continue
		}

		sessions = append(sessions, &session)
	}

	sort.Slice(sessions, func(i, j int) bool {
		if sessions[i].StartedAt.Equal(sessions[j].StartedAt) {
			return sessions[i].ID < sessions[j].ID
		}
		return sessions[i].StartedAt.After(sessions[j].StartedAt)
	})

	return &ListActiveSessionsOutput{
		Sessions: sessions,
	}, nil
}

// AddParticipant appends a member with the next value of the session's join
// counter. Counter values are never reused, so a member who leaves and
// rejoins always receives a higher join order.
func (r *redisRepository) AddParticipant(ctx context.Context, input *AddParticipantInput) (*AddParticipantOutput, error) {
	if input == nil || input.SessionID == "" || input.UserID == "" {
		return nil, fmt.Errorf("%w: session ID and user ID cannot be empty", ErrInvalidInput)
	}

	var output *AddParticipantOutput
	_, err := r.mutate(ctx, input.SessionID, func(session *models.Session) error {
		if !session.IsActive {
			return ErrSessionEnded
		}

		if existing := session.Participant(input.UserID); existing != nil {
			if existing.IsBanned {
				return ErrParticipantBanned
			}
			cp := *existing
			output = &AddParticipantOutput{Participant: &cp, AlreadyPresent: true}
			return errNoChange
		}

		joinOrder, err := r.client.Incr(ctx, joinSeqKey(input.SessionID)).Result()
		if err != nil {
			return fmt.Errorf("failed to assign join order: %w", err)
		}

		joinedAt := input.JoinedAt
		if joinedAt.IsZero() {
			joinedAt = r.clock.Now()
		}

		participant := &models.Participant{
			UserID:      input.UserID,
			DisplayName: input.DisplayName,
			AvatarRef:   input.AvatarRef,
			IsHost:      input.IsHost,
			JoinOrder:   joinOrder,
			JoinedAt:    joinedAt,
		}
		session.Participants = append(session.Participants, participant)

		cp := *participant
		output = &AddParticipantOutput{Participant: &cp}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return output, nil
}

// RemoveParticipant drops a member's record from the session. A banned
// member's record is kept so the ban outlives a leave or kick; removing it
// succeeds without writing.
func (r *redisRepository) RemoveParticipant(ctx context.Context, input *RemoveParticipantInput) error {
	if input == nil || input.SessionID == "" || input.UserID == "" {
		return fmt.Errorf("%w: session ID and user ID cannot be empty", ErrInvalidInput)
	}

	_, err := r.mutate(ctx, input.SessionID, func(session *models.Session) error {
		if err := checkActor(session, input.ActorID, input.UserID); err != nil {
			return err
		}

		remaining := make([]*models.Participant, 0, len(session.Participants))
		found := false
		for _, p := range session.Participants {
			if p.UserID == input.UserID {
				if p.IsBanned {
					return errNoChange
				}
				found = true
				continue
			}
			remaining = append(remaining, p)
		}

		if !found {
			return ErrParticipantNotFound
		}

		session.Participants = remaining
		return nil
	})
	return err
}

// UpdateParticipant sets the moderation flags of a member
func (r *redisRepository) UpdateParticipant(ctx context.Context, input *UpdateParticipantInput) error {
	if input == nil || input.SessionID == "" || input.UserID == "" {
		return fmt.Errorf("%w: session ID and user ID cannot be empty", ErrInvalidInput)
	}

	_, err := r.mutate(ctx, input.SessionID, func(session *models.Session) error {
		participant := session.Participant(input.UserID)
		if participant == nil {
			return ErrParticipantNotFound
		}

		if err := checkActor(session, input.ActorID, input.UserID); err != nil {
			return err
		}

		if input.IsMuted != nil {
			participant.IsMuted = *input.IsMuted
		}
		if input.IsBanned != nil {
			participant.IsBanned = *input.IsBanned
		}
		return nil
	})
	return err
}

// checkActor re-validates moderation authority against the stored document.
// An empty actor or an actor acting on themselves needs no authority.
func checkActor(session *models.Session, actorID, userID string) error {
	if actorID == "" || actorID == userID {
		return nil
	}

	if !session.Outranks(actorID, userID) {
		return ErrNotAuthorized
	}

	return nil
}

// errNoChange short-circuits a mutation without writing
var errNoChange = errors.New("no change")

// mutate applies fn to the current document under WATCH and writes the result
// back, retrying when the document changed underneath.
func (r *redisRepository) mutate(ctx context.Context, sessionID string, fn func(session *models.Session) error) (*models.Session, error) {
	key := sessionKey(sessionID)

	var updated *models.Session
	txf := func(tx *redis.Tx) error {
		session, err := getSession(ctx, tx, key)
		if err != nil {
			return err
		}

		if err := fn(session); err != nil {
			return err
		}

		if err := writeSession(ctx, tx, session); err != nil {
			return err
		}

		updated = session
		return nil
	}

	err := r.watch(ctx, txf, key)
	if errors.Is(err, errNoChange) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return updated, nil
}

func (r *redisRepository) watch(ctx context.Context, txf func(tx *redis.Tx) error, key string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := r.client.Watch(ctx, txf, key)
		if err == nil {
			return nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			r.log.Debug("session write conflict, retrying",
				zap.String("key", key),
				zap.Int("attempt", i+1))
			continue
		}
		return err
	}

	return ErrWriteConflict
}

// getter is satisfied by both *redis.Client and *redis.Tx
type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func getSession(ctx context.Context, c getter, key string) (*models.Session, error) {
	sessionJSON, err := c.Get(ctx, key).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(sessionJSON), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return &session, nil
}

// writeSession queues the document, its index membership and a change
// notification in one MULTI block
func writeSession(ctx context.Context, tx *redis.Tx, session *models.Session) error {
	sessionJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, sessionKey(session.ID), sessionJSON, 0)
		if session.IsActive {
			pipe.SAdd(ctx, activeSessionsKey, session.ID)
		} else {
			pipe.SRem(ctx, activeSessionsKey, session.ID)
		}
		pipe.Publish(ctx, ChangesChannel, session.ID)
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}

	return nil
}
