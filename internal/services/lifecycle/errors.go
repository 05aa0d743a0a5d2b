package lifecycle

import "fmt"

// LifecycleError is a custom error type for lifecycle failures
type LifecycleError string

// Error implements the error interface
func (e LifecycleError) Error() string {
	return string(e)
}

// Define errors
const (
	ErrNotAuthenticated LifecycleError = "caller is not authenticated"
	ErrHostMismatch     LifecycleError = "host ID does not match the caller"
	ErrUserCancelled    LifecycleError = "cancelled by user"
	ErrStoreWriteFailed LifecycleError = "session store write failed"
	ErrNotHost          LifecycleError = "only the host can end a session"
	ErrNoSession        LifecycleError = "no session to leave"
	ErrInvalidInput     LifecycleError = "invalid input"
	ErrNilConfig        LifecycleError = "config cannot be nil"
	ErrNilRepository    LifecycleError = "session repository cannot be nil"
	ErrNilAuthenticator LifecycleError = "authenticator cannot be nil"
	ErrNilConfirmer     LifecycleError = "confirmer cannot be nil"
	ErrNilLock          LifecycleError = "lifecycle lock cannot be nil"
)

// StoreWriteError reports which write failed. It matches ErrStoreWriteFailed
// with errors.Is and unwraps to the store's error.
type StoreWriteError struct {
	Op  string
	Err error
}

// Error implements the error interface
func (e *StoreWriteError) Error() string {
	return fmt.Sprintf("%s: %s: %v", ErrStoreWriteFailed, e.Op, e.Err)
}

// Unwrap returns the underlying store error
func (e *StoreWriteError) Unwrap() error {
	return e.Err
}

// Is matches ErrStoreWriteFailed
func (e *StoreWriteError) Is(target error) bool {
	return target == ErrStoreWriteFailed
}
