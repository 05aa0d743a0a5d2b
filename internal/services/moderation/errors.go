package moderation

import "fmt"

// ModerationError is a custom error type for moderation failures
type ModerationError string

// Error implements the error interface
func (e ModerationError) Error() string {
	return string(e)
}

// Define errors
const (
	ErrModerationDenied ModerationError = "moderation denied"
	ErrNilConfig        ModerationError = "config cannot be nil"
	ErrNilRepository    ModerationError = "session repository cannot be nil"
	ErrNilSessions      ModerationError = "session snapshot source cannot be nil"
	ErrInvalidInput     ModerationError = "invalid input"
)

// Denial reasons
const (
	ReasonSessionUnknown = "session is not in the local snapshot"
	ReasonSelf           = "cannot moderate yourself"
	ReasonActorNotHost   = "only hosts can moderate"
	ReasonTargetNotHost  = "target is not a host of this session"
	ReasonOutranked      = "target joined before you"
	ReasonStoreRejected  = "rejected by the session store"
)

// DeniedError carries the reason for a denial and matches ErrModerationDenied
type DeniedError struct {
	Reason string
}

// Error implements the error interface
func (e *DeniedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrModerationDenied, e.Reason)
}

// Is matches ErrModerationDenied
func (e *DeniedError) Is(target error) bool {
	return target == ErrModerationDenied
}
