package session

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/suite"

	"github.com/KirkDiggler/livesession/internal/models"
)

type RedisRepositoryTestSuite struct {
	suite.Suite
	mr      *miniredis.Miniredis
	client  *redis.Client
	repo    Repository
	ctx     context.Context
	testNow time.Time
}

func (s *RedisRepositoryTestSuite) SetupTest() {
	// Create a new miniredis server for each test
	mr, err := miniredis.Run()
	s.Require().NoError(err)
	s.mr = mr

	// Create a Redis client connected to the miniredis server
	s.client = redis.NewClient(&redis.Options{
		Addr: s.mr.Addr(),
	})

	// Create the repository
	repo, err := NewRedis(&Config{
		RedisClient:  s.client,
		PollInterval: time.Minute,
	})
	s.Require().NoError(err)
	s.repo = repo

	s.ctx = context.Background()
	s.testNow = time.Date(2025, 4, 5, 10, 0, 0, 0, time.UTC)
}

func (s *RedisRepositoryTestSuite) TearDownTest() {
	s.client.Close()
	s.mr.Close()
}

func TestRedisRepositoryTestSuite(t *testing.T) {
	suite.Run(t, new(RedisRepositoryTestSuite))
}

func (s *RedisRepositoryTestSuite) createSession(hostID string, startedAt time.Time) *models.Session {
	output, err := s.repo.CreateSession(s.ctx, &CreateSessionInput{
		Title:      "Friday jam",
		HostID:     hostID,
		HostName:   "Host " + hostID,
		HostAvatar: "avatars/" + hostID,
		StartedAt:  startedAt,
	})
	s.Require().NoError(err)
	s.Require().False(output.Existed)
	return output.Session
}

func (s *RedisRepositoryTestSuite) TestNewRedis_Validation() {
	_, err := NewRedis(nil)
	s.Error(err)

	_, err = NewRedis(&Config{})
	s.Error(err)
}

func (s *RedisRepositoryTestSuite) TestBuildSessionID() {
	s.Equal("u1_1743847200000", BuildSessionID("u1", s.testNow))
	s.Equal(BuildSessionID("u1", s.testNow), BuildSessionID("u1", s.testNow))
	s.NotEqual(BuildSessionID("u1", s.testNow), BuildSessionID("u1", s.testNow.Add(time.Millisecond)))
}

func (s *RedisRepositoryTestSuite) TestCreateAndGetSession() {
	created := s.createSession("u1", s.testNow)

	s.Equal(BuildSessionID("u1", s.testNow), created.ID)

	retrieved, err := s.repo.GetSession(s.ctx, &GetSessionInput{SessionID: created.ID})
	s.Require().NoError(err)

	s.Equal("Friday jam", retrieved.Title)
	s.Equal("u1", retrieved.HostID)
	s.True(retrieved.IsActive)
	s.False(retrieved.HostConnected)
	s.Equal(0, retrieved.ViewerCount)
	s.True(s.testNow.Equal(retrieved.StartedAt))
	s.Require().Len(retrieved.Participants, 1)
	s.Equal("u1", retrieved.Participants[0].UserID)
	s.True(retrieved.Participants[0].IsHost)
	s.Equal(int64(1), retrieved.Participants[0].JoinOrder)
}

func (s *RedisRepositoryTestSuite) TestCreateSession_Idempotent() {
	created := s.createSession("u1", s.testNow)

	output, err := s.repo.CreateSession(s.ctx, &CreateSessionInput{
		Title:     "Another title",
		HostID:    "u1",
		StartedAt: s.testNow,
	})
	s.Require().NoError(err)
	s.True(output.Existed)
	s.Equal(created.ID, output.Session.ID)
	s.Equal("Friday jam", output.Session.Title)

	list, err := s.repo.ListActiveSessions(s.ctx, &ListActiveSessionsInput{})
	s.Require().NoError(err)
	s.Len(list.Sessions, 1)
}

func (s *RedisRepositoryTestSuite) TestCreateSession_RequiresHost() {
	_, err := s.repo.CreateSession(s.ctx, &CreateSessionInput{StartedAt: s.testNow})
	s.ErrorIs(err, ErrInvalidInput)
}

func (s *RedisRepositoryTestSuite) TestGetSession_NotFound() {
	_, err := s.repo.GetSession(s.ctx, &GetSessionInput{SessionID: "missing"})
	s.ErrorIs(err, ErrSessionNotFound)
}

func (s *RedisRepositoryTestSuite) TestAddParticipant_JoinOrderIsMonotonic() {
	created := s.createSession("u1", s.testNow)

	var orders []int64
	for _, userID := range []string{"u2", "u3", "u4"} {
		output, err := s.repo.AddParticipant(s.ctx, &AddParticipantInput{
			SessionID: created.ID,
			UserID:    userID,
			IsHost:    true,
		})
		s.Require().NoError(err)
		s.False(output.AlreadyPresent)
		orders = append(orders, output.Participant.JoinOrder)
	}
	s.Equal([]int64{2, 3, 4}, orders)

	// Leave and rejoin gets a fresh, higher value
	s.Require().NoError(s.repo.RemoveParticipant(s.ctx, &RemoveParticipantInput{
		SessionID: created.ID,
		UserID:    "u2",
	}))
	output, err := s.repo.AddParticipant(s.ctx, &AddParticipantInput{
		SessionID: created.ID,
		UserID:    "u2",
	})
	s.Require().NoError(err)
	s.Equal(int64(5), output.Participant.JoinOrder)

	retrieved, err := s.repo.GetSession(s.ctx, &GetSessionInput{SessionID: created.ID})
	s.Require().NoError(err)
	s.Len(retrieved.Participants, 4)
}

func (s *RedisRepositoryTestSuite) TestAddParticipant_AlreadyPresent() {
	created := s.createSession("u1", s.testNow)

	first, err := s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: created.ID, UserID: "u2"})
	s.Require().NoError(err)

	second, err := s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: created.ID, UserID: "u2"})
	s.Require().NoError(err)
	s.True(second.AlreadyPresent)
	s.Equal(first.Participant.JoinOrder, second.Participant.JoinOrder)
}

func (s *RedisRepositoryTestSuite) TestAddParticipant_Banned() {
	created := s.createSession("u1", s.testNow)
	_, err := s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: created.ID, UserID: "u2"})
	s.Require().NoError(err)

	banned := true
	s.Require().NoError(s.repo.UpdateParticipant(s.ctx, &UpdateParticipantInput{
		SessionID: created.ID,
		UserID:    "u2",
		IsBanned:  &banned,
	}))

	_, err = s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: created.ID, UserID: "u2"})
	s.ErrorIs(err, ErrParticipantBanned)
}

func (s *RedisRepositoryTestSuite) TestAddParticipant_SessionNotFound() {
	_, err := s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: "missing", UserID: "u2"})
	s.ErrorIs(err, ErrSessionNotFound)
}

func (s *RedisRepositoryTestSuite) TestAddParticipant_SessionEnded() {
	created := s.createSession("u1", s.testNow)

	inactive := false
	s.Require().NoError(s.repo.UpdateSession(s.ctx, &UpdateSessionInput{
		SessionID: created.ID,
		IsActive:  &inactive,
	}))

	_, err := s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: created.ID, UserID: "u2"})
	s.ErrorIs(err, ErrSessionEnded)
}

func (s *RedisRepositoryTestSuite) TestModerationWrites_RevalidateAuthority() {
	created := s.createSession("u1", s.testNow)
	_, err := s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: created.ID, UserID: "u2", IsHost: true})
	s.Require().NoError(err)
	_, err = s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: created.ID, UserID: "u3"})
	s.Require().NoError(err)

	muted := true
	err = s.repo.UpdateParticipant(s.ctx, &UpdateParticipantInput{
		SessionID: created.ID,
		UserID:    "u1",
		ActorID:   "u2",
		IsMuted:   &muted,
	})
	s.ErrorIs(err, ErrNotAuthorized)

	// Viewers are never moderation targets
	err = s.repo.RemoveParticipant(s.ctx, &RemoveParticipantInput{SessionID: created.ID, UserID: "u3", ActorID: "u1"})
	s.ErrorIs(err, ErrNotAuthorized)

	s.Require().NoError(s.repo.RemoveParticipant(s.ctx, &RemoveParticipantInput{
		SessionID: created.ID,
		UserID:    "u2",
		ActorID:   "u1",
	}))

	retrieved, err := s.repo.GetSession(s.ctx, &GetSessionInput{SessionID: created.ID})
	s.Require().NoError(err)
	s.Nil(retrieved.Participant("u2"))
	s.False(retrieved.Participant("u1").IsMuted)
}

func (s *RedisRepositoryTestSuite) TestRemoveParticipant_KeepsBannedRecord() {
	created := s.createSession("u1", s.testNow)
	_, err := s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: created.ID, UserID: "u2", IsHost: true})
	s.Require().NoError(err)

	banned := true
	s.Require().NoError(s.repo.UpdateParticipant(s.ctx, &UpdateParticipantInput{
		SessionID: created.ID,
		UserID:    "u2",
		ActorID:   "u1",
		IsBanned:  &banned,
	}))

	// Leaving and being kicked both succeed without dropping the ban
	s.NoError(s.repo.RemoveParticipant(s.ctx, &RemoveParticipantInput{SessionID: created.ID, UserID: "u2"}))
	s.NoError(s.repo.RemoveParticipant(s.ctx, &RemoveParticipantInput{SessionID: created.ID, UserID: "u2", ActorID: "u1"}))

	retrieved, err := s.repo.GetSession(s.ctx, &GetSessionInput{SessionID: created.ID})
	s.Require().NoError(err)
	s.Require().NotNil(retrieved.Participant("u2"))
	s.True(retrieved.Participant("u2").IsBanned)

	_, err = s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: created.ID, UserID: "u2"})
	s.ErrorIs(err, ErrParticipantBanned)
}

func (s *RedisRepositoryTestSuite) TestRemoveParticipant_NotFound() {
	created := s.createSession("u1", s.testNow)

	err := s.repo.RemoveParticipant(s.ctx, &RemoveParticipantInput{SessionID: created.ID, UserID: "u9"})
	s.ErrorIs(err, ErrParticipantNotFound)
}

func (s *RedisRepositoryTestSuite) TestUpdateParticipant_TogglesFlags() {
	created := s.createSession("u1", s.testNow)
	_, err := s.repo.AddParticipant(s.ctx, &AddParticipantInput{SessionID: created.ID, UserID: "u2"})
	s.Require().NoError(err)

	muted := true
	s.Require().NoError(s.repo.UpdateParticipant(s.ctx, &UpdateParticipantInput{
		SessionID: created.ID,
		UserID:    "u2",
		IsMuted:   &muted,
	}))
	// Setting the same value twice is a no-op, not a counter
	s.Require().NoError(s.repo.UpdateParticipant(s.ctx, &UpdateParticipantInput{
		SessionID: created.ID,
		UserID:    "u2",
		IsMuted:   &muted,
	}))

	retrieved, err := s.repo.GetSession(s.ctx, &GetSessionInput{SessionID: created.ID})
	s.Require().NoError(err)
	s.True(retrieved.Participant("u2").IsMuted)
	s.False(retrieved.Participant("u2").IsBanned)

	err = s.repo.UpdateParticipant(s.ctx, &UpdateParticipantInput{SessionID: created.ID, UserID: "u9", IsMuted: &muted})
	s.ErrorIs(err, ErrParticipantNotFound)
}

func (s *RedisRepositoryTestSuite) TestUpdateSession_Partial() {
	created := s.createSession("u1", s.testNow)

	connected := true
	viewers := 3
	s.Require().NoError(s.repo.UpdateSession(s.ctx, &UpdateSessionInput{
		SessionID:     created.ID,
		HostConnected: &connected,
		ViewerCount:   &viewers,
	}))

	retrieved, err := s.repo.GetSession(s.ctx, &GetSessionInput{SessionID: created.ID})
	s.Require().NoError(err)
	s.True(retrieved.HostConnected)
	s.Equal(3, retrieved.ViewerCount)
	s.Equal("Friday jam", retrieved.Title)
	s.True(retrieved.IsActive)
}

func (s *RedisRepositoryTestSuite) TestUpdateSession_DeactivateLeavesActiveSet() {
	created := s.createSession("u1", s.testNow)

	inactive := false
	endedAt := s.testNow.Add(time.Minute)
	s.Require().NoError(s.repo.UpdateSession(s.ctx, &UpdateSessionInput{
		SessionID: created.ID,
		IsActive:  &inactive,
		EndedAt:   &endedAt,
	}))

	list, err := s.repo.ListActiveSessions(s.ctx, &ListActiveSessionsInput{})
	s.Require().NoError(err)
	s.Empty(list.Sessions)

	retrieved, err := s.repo.GetSession(s.ctx, &GetSessionInput{SessionID: created.ID})
	s.Require().NoError(err)
	s.False(retrieved.IsActive)
	s.Require().NotNil(retrieved.EndedAt)
	s.True(endedAt.Equal(*retrieved.EndedAt))
}

func (s *RedisRepositoryTestSuite) TestUpdateSession_NotFound() {
	connected := true
	err := s.repo.UpdateSession(s.ctx, &UpdateSessionInput{SessionID: "missing", HostConnected: &connected})
	s.ErrorIs(err, ErrSessionNotFound)
}

func (s *RedisRepositoryTestSuite) TestDeleteSession() {
	created := s.createSession("u1", s.testNow)

	s.Require().NoError(s.repo.DeleteSession(s.ctx, &DeleteSessionInput{SessionID: created.ID}))

	_, err := s.repo.GetSession(s.ctx, &GetSessionInput{SessionID: created.ID})
	s.ErrorIs(err, ErrSessionNotFound)

	list, err := s.repo.ListActiveSessions(s.ctx, &ListActiveSessionsInput{})
	s.Require().NoError(err)
	s.Empty(list.Sessions)

	// Deleting twice reports the missing document
	err = s.repo.DeleteSession(s.ctx, &DeleteSessionInput{SessionID: created.ID})
	s.ErrorIs(err, ErrSessionNotFound)
}

func (s *RedisRepositoryTestSuite) TestListActiveSessions_NewestFirst() {
	older := s.createSession("u1", s.testNow)
	newer := s.createSession("u2", s.testNow.Add(time.Minute))

	list, err := s.repo.ListActiveSessions(s.ctx, &ListActiveSessionsInput{})
	s.Require().NoError(err)
	s.Require().Len(list.Sessions, 2)
	s.Equal(newer.ID, list.Sessions[0].ID)
	s.Equal(older.ID, list.Sessions[1].ID)
}

func (s *RedisRepositoryTestSuite) TestListActiveSessions_SkipsDanglingIndexEntries() {
	created := s.createSession("u1", s.testNow)
	s.mr.Del(sessionKey(created.ID))

	list, err := s.repo.ListActiveSessions(s.ctx, &ListActiveSessionsInput{})
	s.Require().NoError(err)
	s.Empty(list.Sessions)
}

func (s *RedisRepositoryTestSuite) nextSnapshot(sub Subscription, match func(*Snapshot) bool) *Snapshot {
	timeout := time.After(2 * time.Second)
	for {
		select {
		case snapshot, ok := <-sub.Snapshots():
			s.Require().True(ok, "subscription closed")
			if match(snapshot) {
				return snapshot
			}
		case <-timeout:
			s.FailNow("timed out waiting for snapshot")
			return nil
		}
	}
}

func (s *RedisRepositoryTestSuite) TestSubscribeActiveSessions() {
	existing := s.createSession("u1", s.testNow)

	sub, err := s.repo.SubscribeActiveSessions(s.ctx, &SubscribeActiveSessionsInput{})
	s.Require().NoError(err)
	defer sub.Close()

	initial := s.nextSnapshot(sub, func(*Snapshot) bool { return true })
	s.Require().Len(initial.Sessions, 1)
	s.Equal(existing.ID, initial.Sessions[0].ID)

	created := s.createSession("u2", s.testNow.Add(time.Second))

	next := s.nextSnapshot(sub, func(snapshot *Snapshot) bool {
		return len(snapshot.Sessions) == 2
	})
	s.Greater(next.Seq, initial.Seq)
	s.Equal(created.ID, next.Sessions[0].ID)

	s.Require().NoError(s.repo.DeleteSession(s.ctx, &DeleteSessionInput{SessionID: existing.ID}))
	s.nextSnapshot(sub, func(snapshot *Snapshot) bool {
		return len(snapshot.Sessions) == 1 && snapshot.Sessions[0].ID == created.ID
	})
}

func (s *RedisRepositoryTestSuite) TestSubscribeActiveSessions_CloseClosesChannel() {
	sub, err := s.repo.SubscribeActiveSessions(s.ctx, &SubscribeActiveSessionsInput{})
	s.Require().NoError(err)

	s.Require().NoError(sub.Close())
	s.NoError(sub.Close())

	// Drain whatever was buffered; the channel must end closed
	for range sub.Snapshots() {
	}
}
