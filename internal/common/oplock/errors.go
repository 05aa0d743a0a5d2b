package oplock

// LockError is a custom error type for lifecycle lock rejections
type LockError string

// Error implements the error interface
func (e LockError) Error() string {
	return string(e)
}

// Define errors
const (
	ErrOperationInProgress LockError = "another lifecycle operation is in progress"
	ErrDebounceRejected    LockError = "lifecycle operation issued too soon after the previous one"
	ErrNilConfig           LockError = "config cannot be nil"
	ErrNilFunc             LockError = "operation func cannot be nil"
)
