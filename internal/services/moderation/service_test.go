package moderation

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
	sessionMocks "github.com/KirkDiggler/livesession/internal/repositories/session/mocks"
	"github.com/KirkDiggler/livesession/internal/services/moderation/mocks"
)

type ServiceTestSuite struct {
	suite.Suite
	mockCtrl     *gomock.Controller
	mockRepo     *sessionMocks.MockRepository
	mockSessions *mocks.MockSnapshotSource
	service      *Service
	ctx          context.Context
}

func (s *ServiceTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockRepo = sessionMocks.NewMockRepository(s.mockCtrl)
	s.mockSessions = mocks.NewMockSnapshotSource(s.mockCtrl)
	s.ctx = context.Background()

	service, err := New(&Config{
		Sessions:   s.mockSessions,
		Repository: s.mockRepo,
	})
	s.Require().NoError(err)
	s.service = service
}

func (s *ServiceTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func TestServiceTestSuite(t *testing.T) {
	suite.Run(t, new(ServiceTestSuite))
}

func (s *ServiceTestSuite) expectSnapshot() {
	s.mockSessions.EXPECT().Session("s1").Return(testSession(), true)
}

func (s *ServiceTestSuite) TestNew_Validation() {
	_, err := New(nil)
	s.ErrorIs(err, ErrNilConfig)

	_, err = New(&Config{Repository: s.mockRepo})
	s.ErrorIs(err, ErrNilSessions)

	_, err = New(&Config{Sessions: s.mockSessions})
	s.ErrorIs(err, ErrNilRepository)
}

func (s *ServiceTestSuite) TestKick_Applied() {
	s.expectSnapshot()
	s.mockRepo.EXPECT().
		RemoveParticipant(gomock.Any(), &sessionRepo.RemoveParticipantInput{
			SessionID: "s1",
			UserID:    "cohost",
			ActorID:   "founder",
		}).
		Return(nil)

	output, err := s.service.Kick(s.ctx, &ActionInput{SessionID: "s1", ActorID: "founder", TargetID: "cohost"})

	s.Require().NoError(err)
	s.True(output.Applied)
	s.False(output.Denied)
	s.Equal(ActionKick, output.Action)
}

func (s *ServiceTestSuite) TestKick_DeniedLocallyNeverReachesStore() {
	s.expectSnapshot()

	output, err := s.service.Kick(s.ctx, &ActionInput{SessionID: "s1", ActorID: "late", TargetID: "cohost"})

	s.Require().NoError(err)
	s.False(output.Applied)
	s.True(output.Denied)
	s.Equal(ReasonOutranked, output.Reason)
}

func (s *ServiceTestSuite) TestKick_UnknownSessionDenied() {
	s.mockSessions.EXPECT().Session("gone").Return(nil, false)

	output, err := s.service.Kick(s.ctx, &ActionInput{SessionID: "gone", ActorID: "founder", TargetID: "cohost"})

	s.Require().NoError(err)
	s.True(output.Denied)
	s.Equal(ReasonSessionUnknown, output.Reason)
}

func (s *ServiceTestSuite) TestMute_StoreRejectionIsDenial() {
	s.expectSnapshot()
	s.mockRepo.EXPECT().
		UpdateParticipant(gomock.Any(), gomock.Any()).
		Return(sessionRepo.ErrNotAuthorized)

	output, err := s.service.Mute(s.ctx, &ActionInput{SessionID: "s1", ActorID: "founder", TargetID: "late", Value: true})

	s.Require().NoError(err)
	s.True(output.Denied)
	s.Equal(ReasonStoreRejected, output.Reason)
}

func (s *ServiceTestSuite) TestMute_SetsFlag() {
	s.expectSnapshot()
	s.mockRepo.EXPECT().
		UpdateParticipant(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, input *sessionRepo.UpdateParticipantInput) error {
			s.Require().NotNil(input.IsMuted)
			s.True(*input.IsMuted)
			s.Nil(input.IsBanned)
			return nil
		})

	output, err := s.service.Mute(s.ctx, &ActionInput{SessionID: "s1", ActorID: "founder", TargetID: "late", Value: true})

	s.Require().NoError(err)
	s.True(output.Applied)
}

func (s *ServiceTestSuite) TestBan_SetsFlag() {
	s.expectSnapshot()
	s.mockRepo.EXPECT().
		UpdateParticipant(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, input *sessionRepo.UpdateParticipantInput) error {
			s.Require().NotNil(input.IsBanned)
			s.False(*input.IsBanned)
			s.Nil(input.IsMuted)
			return nil
		})

	output, err := s.service.Ban(s.ctx, &ActionInput{SessionID: "s1", ActorID: "cohost", TargetID: "late", Value: false})

	s.Require().NoError(err)
	s.True(output.Applied)
	s.Equal(ActionBan, output.Action)
}

func (s *ServiceTestSuite) TestBan_TransientStoreError() {
	s.expectSnapshot()
	s.mockRepo.EXPECT().
		UpdateParticipant(gomock.Any(), gomock.Any()).
		Return(errors.New("connection refused"))

	_, err := s.service.Ban(s.ctx, &ActionInput{SessionID: "s1", ActorID: "founder", TargetID: "late", Value: true})
	s.Error(err)
	s.NotErrorIs(err, ErrModerationDenied)
}

func (s *ServiceTestSuite) TestInvalidInput() {
	_, err := s.service.Kick(s.ctx, nil)
	s.ErrorIs(err, ErrInvalidInput)

	_, err = s.service.Mute(s.ctx, &ActionInput{SessionID: "s1", ActorID: "founder"})
	s.ErrorIs(err, ErrInvalidInput)
}
