package moderation

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/logging"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
)

// Service applies host moderation actions. Authority is checked against the
// local snapshot first, and store rejections are reported as denials.
type Service struct {
	sessions SnapshotSource
	repo     sessionRepo.Repository
	log      *zap.Logger
}

// New creates a new moderation service
func New(cfg *Config) (*Service, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if cfg.Sessions == nil {
		return nil, ErrNilSessions
	}

	if cfg.Repository == nil {
		return nil, ErrNilRepository
	}

	return &Service{
		sessions: cfg.Sessions,
		repo:     cfg.Repository,
		log:      logging.OrNop(cfg.Logger),
	}, nil
}

// Kick removes the target from the session
func (s *Service) Kick(ctx context.Context, input *ActionInput) (*ActionOutput, error) {
	return s.apply(ctx, ActionKick, input, func(ctx context.Context) error {
		return s.repo.RemoveParticipant(ctx, &sessionRepo.RemoveParticipantInput{
			SessionID: input.SessionID,
			UserID:    input.TargetID,
			ActorID:   input.ActorID,
		})
	})
}

// Mute sets the target's muted flag
func (s *Service) Mute(ctx context.Context, input *ActionInput) (*ActionOutput, error) {
	return s.apply(ctx, ActionMute, input, func(ctx context.Context) error {
		value := input.Value
		return s.repo.UpdateParticipant(ctx, &sessionRepo.UpdateParticipantInput{
			SessionID: input.SessionID,
			UserID:    input.TargetID,
			ActorID:   input.ActorID,
			IsMuted:   &value,
		})
	})
}

// Ban sets the target's banned flag. Banned members keep their record and
// cannot rejoin.
func (s *Service) Ban(ctx context.Context, input *ActionInput) (*ActionOutput, error) {
	return s.apply(ctx, ActionBan, input, func(ctx context.Context) error {
		value := input.Value
		return s.repo.UpdateParticipant(ctx, &sessionRepo.UpdateParticipantInput{
			SessionID: input.SessionID,
			UserID:    input.TargetID,
			ActorID:   input.ActorID,
			IsBanned:  &value,
		})
	})
}

func (s *Service) apply(ctx context.Context, action Action, input *ActionInput, write func(ctx context.Context) error) (*ActionOutput, error) {
	if input == nil || input.SessionID == "" || input.ActorID == "" || input.TargetID == "" {
		return nil, ErrInvalidInput
	}

	session, _ := s.sessions.Session(input.SessionID)
	if err := Authorize(session, input.ActorID, input.TargetID); err != nil {
		reason := err.Error()
		var denied *DeniedError
		if errors.As(err, &denied) {
			reason = denied.Reason
		}
		s.log.Info("moderation denied",
			zap.String("action", string(action)),
			zap.String("session_id", input.SessionID),
			zap.String("actor_id", input.ActorID),
			zap.String("target_id", input.TargetID),
			zap.String("reason", reason))
		return &ActionOutput{Action: action, Denied: true, Reason: reason}, nil
	}

	if err := write(ctx); err != nil {
		if isRejection(err) {
			s.log.Info("moderation rejected by store",
				zap.String("action", string(action)),
				zap.String("session_id", input.SessionID),
				zap.Error(err))
			return &ActionOutput{Action: action, Denied: true, Reason: ReasonStoreRejected}, nil
		}
		return nil, fmt.Errorf("failed to %s participant: %w", action, err)
	}

	s.log.Info("moderation applied",
		zap.String("action", string(action)),
		zap.String("session_id", input.SessionID),
		zap.String("actor_id", input.ActorID),
		zap.String("target_id", input.TargetID),
		zap.Bool("value", input.Value))
	return &ActionOutput{Action: action, Applied: true}, nil
}

// isRejection reports whether the store refused the write, as opposed to
// failing to perform it
func isRejection(err error) bool {
	return errors.Is(err, sessionRepo.ErrNotAuthorized) ||
		errors.Is(err, sessionRepo.ErrParticipantNotFound) ||
		errors.Is(err, sessionRepo.ErrSessionNotFound) ||
		errors.Is(err, sessionRepo.ErrInvalidInput)
}
