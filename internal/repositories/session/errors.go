package session

// RepositoryError is a custom error type for session store errors
type RepositoryError string

// Error implements the error interface
func (e RepositoryError) Error() string {
	return string(e)
}

// Define errors
const (
	ErrSessionNotFound     RepositoryError = "session not found"
	ErrParticipantNotFound RepositoryError = "participant not found"
	ErrSessionEnded        RepositoryError = "session has ended"
	ErrParticipantBanned   RepositoryError = "participant is banned from this session"
	ErrNotAuthorized       RepositoryError = "actor does not outrank the participant"
	ErrWriteConflict       RepositoryError = "session changed concurrently, retries exhausted"
	ErrInvalidInput        RepositoryError = "invalid input"
)
