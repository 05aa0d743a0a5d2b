package oplock

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/common/logging"
)

// DefaultMinInterval is the spacing enforced between lifecycle operations
const DefaultMinInterval = 500 * time.Millisecond

// Config holds configuration for the lifecycle lock
type Config struct {
	// MinInterval is the minimum time between the completion of one operation
	// and the start of the next. Zero uses DefaultMinInterval.
	MinInterval time.Duration

	// Clock defaults to the system clock
	Clock clock.Clock

	// Logger defaults to a no-op logger
	Logger *zap.Logger
}

// Lock guards lifecycle operations of a single client. It is an in-process
// re-entrancy guard; it does not coordinate between devices.
type Lock struct {
	mu            sync.Mutex
	held          bool
	holder        string
	lastCompleted time.Time
	minInterval   time.Duration
	clock         clock.Clock
	log           *zap.Logger
}

// New creates a new lifecycle lock
func New(cfg *Config) (*Lock, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	minInterval := cfg.MinInterval
	if minInterval <= 0 {
		minInterval = DefaultMinInterval
	}

	clk := cfg.Clock
	if clk == nil {
		clk = &clock.DefaultClock{}
	}

	return &Lock{
		minInterval: minInterval,
		clock:       clk,
		log:         logging.OrNop(cfg.Logger),
	}, nil
}

// RunExclusive runs fn while holding the lock. It fails fast with
// ErrOperationInProgress when another operation holds the lock, and with
// ErrDebounceRejected when the previous operation completed less than
// MinInterval ago. The lock is released and the completion time recorded on
// every exit path of fn, including panics.
func (l *Lock) RunExclusive(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilFunc
	}

	if err := l.acquire(name, true); err != nil {
		return err
	}
	defer l.release(name, true)

	return fn(ctx)
}

// RunBackground runs fn under mutual exclusion without the debounce check and
// without stamping the completion time, so maintenance work never delays the
// next user-initiated operation.
func (l *Lock) RunBackground(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	if fn == nil {
		return ErrNilFunc
	}

	if err := l.acquire(name, false); err != nil {
		return err
	}
	defer l.release(name, false)

	return fn(ctx)
}

// InProgress reports whether an operation currently holds the lock
func (l *Lock) InProgress() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.held
}

// LastCompleted returns when the last debounced operation completed
func (l *Lock) LastCompleted() time.Time {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.lastCompleted
}

func (l *Lock) acquire(name string, debounce bool) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.held {
		l.log.Debug("lifecycle operation rejected",
			zap.String("operation", name),
			zap.String("holder", l.holder))
		return ErrOperationInProgress
	}

	if debounce && !l.lastCompleted.IsZero() {
		if elapsed := l.clock.Now().Sub(l.lastCompleted); elapsed < l.minInterval {
			l.log.Debug("lifecycle operation debounced",
				zap.String("operation", name),
				zap.Duration("elapsed", elapsed))
			return ErrDebounceRejected
		}
	}

	l.held = true
	l.holder = name
	return nil
}

func (l *Lock) release(name string, stamp bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.held = false
	l.holder = ""
	if stamp {
		l.lastCompleted = l.clock.Now()
	}
	l.log.Debug("lifecycle operation released", zap.String("operation", name))
}
