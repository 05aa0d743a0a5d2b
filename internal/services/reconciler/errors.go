package reconciler

// ReconcilerError is a custom error type for reconciler errors
type ReconcilerError string

// Error implements the error interface
func (e ReconcilerError) Error() string {
	return string(e)
}

// Define errors
const (
	ErrNilConfig           ReconcilerError = "config cannot be nil"
	ErrNilRepository       ReconcilerError = "session repository cannot be nil"
	ErrNilSnapshot         ReconcilerError = "snapshot cannot be nil"
	ErrAlreadyStarted      ReconcilerError = "reconciler is already subscribed"
	ErrStopped             ReconcilerError = "reconciler has been stopped"
	ErrOrphanCleanupFailed ReconcilerError = "orphan cleanup failed"
)
