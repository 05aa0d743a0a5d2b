package moderation

import (
	"github.com/KirkDiggler/livesession/internal/models"
)

// Authorize checks whether actorID may kick, mute or ban targetID in session.
// Both must be hosts and the actor must have joined earlier. Failures wrap
// ErrModerationDenied; the reason is available through *DeniedError.
func Authorize(session *models.Session, actorID, targetID string) error {
	if session == nil {
		return deny(ReasonSessionUnknown)
	}

	if actorID == targetID {
		return deny(ReasonSelf)
	}

	actor := session.Participant(actorID)
	if actor == nil || !actor.IsHost || actor.IsBanned {
		return deny(ReasonActorNotHost)
	}

	target := session.Participant(targetID)
	if target == nil || !target.IsHost {
		return deny(ReasonTargetNotHost)
	}

	if !session.Outranks(actorID, targetID) {
		return deny(ReasonOutranked)
	}

	return nil
}

func deny(reason string) error {
	return &DeniedError{Reason: reason}
}
