package coordinator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"github.com/KirkDiggler/livesession/internal/common/clock/mocks"
	"github.com/KirkDiggler/livesession/internal/models"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
	"github.com/KirkDiggler/livesession/internal/services/lifecycle"
	"github.com/KirkDiggler/livesession/internal/services/moderation"
	"github.com/KirkDiggler/livesession/internal/services/reconciler"
)

type userAuth struct {
	uid string
}

func (a userAuth) CurrentUser(context.Context) (*models.Identity, error) {
	return &models.Identity{UID: a.uid, DisplayName: "User " + a.uid}, nil
}

type answer bool

func (a answer) Confirm(context.Context, *lifecycle.ConfirmInput) (bool, error) {
	return bool(a), nil
}

type CoordinatorTestSuite struct {
	suite.Suite
	mr        *miniredis.Miniredis
	client    *redis.Client
	repo      sessionRepo.Repository
	mockCtrl  *gomock.Controller
	mockClock *mocks.MockClock
	shared    *reconciler.Reconciler
	ctx       context.Context

	mu  sync.Mutex
	now time.Time
}

func (s *CoordinatorTestSuite) SetupTest() {
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	s.client = redis.NewClient(&redis.Options{
		Addr: s.mr.Addr(),
	})

	s.mockCtrl = gomock.NewController(s.T())
	s.mockClock = mocks.NewMockClock(s.mockCtrl)
	s.now = time.Date(2025, 4, 5, 10, 0, 0, 0, time.UTC)
	s.mockClock.EXPECT().Now().DoAndReturn(func() time.Time {
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.now
	}).AnyTimes()

	repo, err := sessionRepo.NewRedis(&sessionRepo.Config{
		RedisClient:  s.client,
		PollInterval: time.Minute,
		Clock:        s.mockClock,
	})
	s.Require().NoError(err)
	s.repo = repo

	s.shared, err = reconciler.New(&reconciler.Config{
		Repository: s.repo,
		Clock:      s.mockClock,
	})
	s.Require().NoError(err)

	s.ctx = context.Background()
}

func (s *CoordinatorTestSuite) TearDownTest() {
	s.Require().NoError(s.shared.Stop())
	s.client.Close()
	s.mr.Close()
	s.mockCtrl.Finish()
}

func TestCoordinatorTestSuite(t *testing.T) {
	suite.Run(t, new(CoordinatorTestSuite))
}

func (s *CoordinatorTestSuite) advance(d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = s.now.Add(d)
}

func (s *CoordinatorTestSuite) newClient(uid string) *Coordinator {
	c, err := New(&Config{
		Repository:    s.repo,
		Authenticator: userAuth{uid: uid},
		Confirmer:     answer(true),
		Reconciler:    s.shared,
		Clock:         s.mockClock,
	})
	s.Require().NoError(err)
	return c
}

// sync applies the store's current active set to the shared reconciler
func (s *CoordinatorTestSuite) sync(seq uint64) *reconciler.ApplyOutput {
	list, err := s.repo.ListActiveSessions(s.ctx, &sessionRepo.ListActiveSessionsInput{})
	s.Require().NoError(err)

	output, err := s.shared.Apply(s.ctx, &sessionRepo.Snapshot{Seq: seq, Sessions: list.Sessions})
	s.Require().NoError(err)
	return output
}

func (s *CoordinatorTestSuite) connectHost(sessionID string) {
	connected := true
	s.Require().NoError(s.repo.UpdateSession(s.ctx, &sessionRepo.UpdateSessionInput{
		SessionID:     sessionID,
		HostConnected: &connected,
	}))
}

func (s *CoordinatorTestSuite) TestNew_Validation() {
	_, err := New(nil)
	s.ErrorIs(err, ErrNilConfig)

	_, err = New(&Config{})
	s.ErrorIs(err, ErrNilRepository)

	_, err = New(&Config{Repository: s.repo})
	s.ErrorIs(err, lifecycle.ErrNilAuthenticator)
}

func (s *CoordinatorTestSuite) TestSharedReconcilerIsNotStartedByClients() {
	c := s.newClient("u1")
	s.NoError(c.Start(s.ctx))
	s.NoError(c.Close())
	s.Same(s.shared, c.Reconciler())
}

func (s *CoordinatorTestSuite) TestSessionBecomesVisibleOnceHostConnects() {
	host := s.newClient("u1")

	created, err := host.Lifecycle().CreateSession(s.ctx, &lifecycle.CreateSessionInput{HostID: "u1", Title: "Jam"})
	s.Require().NoError(err)

	output := s.sync(1)
	s.Empty(output.Sessions)
	s.Equal([]string{created.SessionID}, output.Pending)

	// Not visible yet, but still tracked by the host
	_, ok := host.WatchedSession()
	s.False(ok)
	s.True(host.Lifecycle().HasActiveSession())

	s.advance(10 * time.Second)
	s.connectHost(created.SessionID)

	s.advance(10 * time.Second)
	output = s.sync(2)
	s.Require().Len(output.Sessions, 1)
	s.Empty(output.Orphaned)

	watched, ok := host.WatchedSession()
	s.Require().True(ok)
	s.Equal("Jam", watched.Title)
}

func (s *CoordinatorTestSuite) TestOrphanedSessionIsCleanedUp() {
	host := s.newClient("u1")

	created, err := host.Lifecycle().CreateSession(s.ctx, &lifecycle.CreateSessionInput{HostID: "u1"})
	s.Require().NoError(err)

	s.advance(16 * time.Second)
	output := s.sync(1)
	s.Equal([]string{created.SessionID}, output.Orphaned)

	_, err = s.repo.GetSession(s.ctx, &sessionRepo.GetSessionInput{SessionID: created.SessionID})
	s.ErrorIs(err, sessionRepo.ErrSessionNotFound)

	s.Empty(s.sync(2).Sessions)

	// The host's client notices on its next refresh
	refresh, err := host.Lifecycle().RefreshWatching(s.ctx)
	s.Require().NoError(err)
	s.True(refresh.Reset)
}

func (s *CoordinatorTestSuite) TestModerationUsesReconciledSnapshot() {
	founder := s.newClient("u1")
	cohost := s.newClient("u2")

	created, err := founder.Lifecycle().CreateSession(s.ctx, &lifecycle.CreateSessionInput{HostID: "u1"})
	s.Require().NoError(err)
	s.connectHost(created.SessionID)

	_, err = cohost.Lifecycle().JoinSession(s.ctx, &lifecycle.JoinSessionInput{SessionID: created.SessionID, AsHost: true})
	s.Require().NoError(err)

	s.sync(1)

	input := &moderation.ActionInput{SessionID: created.SessionID, ActorID: "u2", TargetID: "u1"}
	denied, err := cohost.Moderation().Kick(s.ctx, input)
	s.Require().NoError(err)
	s.True(denied.Denied)

	input = &moderation.ActionInput{SessionID: created.SessionID, ActorID: "u1", TargetID: "u2"}
	applied, err := founder.Moderation().Kick(s.ctx, input)
	s.Require().NoError(err)
	s.True(applied.Applied)

	session, err := s.repo.GetSession(s.ctx, &sessionRepo.GetSessionInput{SessionID: created.SessionID})
	s.Require().NoError(err)
	s.Nil(session.Participant("u2"))

	refresh, err := cohost.Lifecycle().RefreshWatching(s.ctx)
	s.Require().NoError(err)
	s.True(refresh.Reset)
}

func (s *CoordinatorTestSuite) TestOwnReconcilerFollowsFeed() {
	c, err := New(&Config{
		Repository:    s.repo,
		Authenticator: userAuth{uid: "u1"},
		Confirmer:     answer(true),
		PollInterval:  50 * time.Millisecond,
		Clock:         s.mockClock,
	})
	s.Require().NoError(err)
	s.Require().NoError(c.Start(s.ctx))
	defer func() { s.NoError(c.Close()) }()

	created, err := c.Lifecycle().CreateSession(s.ctx, &lifecycle.CreateSessionInput{HostID: "u1"})
	s.Require().NoError(err)
	s.connectHost(created.SessionID)

	s.Eventually(func() bool {
		sessions := c.Sessions()
		return len(sessions) == 1 && sessions[0].ID == created.SessionID
	}, 2*time.Second, 20*time.Millisecond)
}
