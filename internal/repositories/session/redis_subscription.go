package session

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// redisSubscription turns change notifications and poll ticks into full
// snapshots of the active set
type redisSubscription struct {
	repo         *redisRepository
	pubsub       *redis.PubSub
	pollInterval time.Duration
	out          chan *Snapshot
	cancel       context.CancelFunc
	done         chan struct{}
	closeOnce    sync.Once
	seq          uint64
}

// SubscribeActiveSessions opens a pub/sub subscription on the change channel
// and starts delivering snapshots, beginning with the current state
func (r *redisRepository) SubscribeActiveSessions(ctx context.Context, input *SubscribeActiveSessionsInput) (Subscription, error) {
	pollInterval := r.pollInterval
	if input != nil && input.PollInterval > 0 {
		pollInterval = input.PollInterval
	}

	pubsub := r.client.Subscribe(ctx, ChangesChannel)

	// Wait for the subscription to be confirmed so no write after this call is missed
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe to session changes: %w", err)
	}

	subCtx, cancel := context.WithCancel(ctx)
	sub := &redisSubscription{
		repo:         r,
		pubsub:       pubsub,
		pollInterval: pollInterval,
		out:          make(chan *Snapshot, 1),
		cancel:       cancel,
		done:         make(chan struct{}),
	}

	go sub.run(subCtx)

	return sub, nil
}

// Snapshots returns the delivery channel. It is closed after Close.
func (s *redisSubscription) Snapshots() <-chan *Snapshot {
	return s.out
}

// Close stops deliveries and releases the pub/sub connection
func (s *redisSubscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.cancel()
		err = s.pubsub.Close()
		<-s.done
	})
	return err
}

func (s *redisSubscription) run(ctx context.Context) {
	defer close(s.done)
	defer close(s.out)

	s.deliver(ctx)

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	messages := s.pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-messages:
			if !ok {
				return
			}
			s.deliver(ctx)
		case <-ticker.C:
			s.deliver(ctx)
		}
	}
}

// deliver reads the active set and hands it to the consumer. Only the newest
// snapshot is kept when the consumer falls behind.
func (s *redisSubscription) deliver(ctx context.Context) {
	output, err := s.repo.ListActiveSessions(ctx, &ListActiveSessionsInput{})
	if err != nil {
		if ctx.Err() == nil {
			s.repo.log.Warn("failed to read active sessions", zap.Error(err))
		}
		return
	}

	s.seq++
	snapshot := &Snapshot{
		Seq:        s.seq,
		Sessions:   output.Sessions,
		ReceivedAt: s.repo.clock.Now(),
	}

	select {
	case s.out <- snapshot:
		return
	default:
	}

	// Drop the undelivered snapshot in favour of this one
	select {
	case <-s.out:
	default:
	}

	select {
	case s.out <- snapshot:
	default:
	}
}
