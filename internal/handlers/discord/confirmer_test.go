package discord

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	uuidMocks "github.com/KirkDiggler/livesession/internal/common/uuid/mocks"
	"github.com/KirkDiggler/livesession/internal/handlers/discord/mocks"
	"github.com/KirkDiggler/livesession/internal/services/lifecycle"
)

type ConfirmerTestSuite struct {
	suite.Suite
	mockCtrl      *gomock.Controller
	mockResponder *mocks.MockResponder
	mockUUID      *uuidMocks.MockUUID
	confirmer     *ButtonConfirmer
	ctx           context.Context
	input         *lifecycle.ConfirmInput
}

func (s *ConfirmerTestSuite) SetupTest() {
	s.mockCtrl = gomock.NewController(s.T())
	s.mockResponder = mocks.NewMockResponder(s.mockCtrl)
	s.mockUUID = uuidMocks.NewMockUUID(s.mockCtrl)
	s.ctx = WithInteraction(context.Background(), commandInteraction("u1"))
	s.input = &lifecycle.ConfirmInput{
		Kind:    lifecycle.ConfirmHostLeave,
		Message: "End the session for everyone?",
	}

	confirmer, err := NewButtonConfirmer(&ConfirmerConfig{
		Responder: s.mockResponder,
		Timeout:   time.Second,
		UUID:      s.mockUUID,
	})
	s.Require().NoError(err)
	s.confirmer = confirmer
}

func (s *ConfirmerTestSuite) TearDownTest() {
	s.mockCtrl.Finish()
}

func TestConfirmerTestSuite(t *testing.T) {
	suite.Run(t, new(ConfirmerTestSuite))
}

func (s *ConfirmerTestSuite) TestNew_Validation() {
	_, err := NewButtonConfirmer(nil)
	s.ErrorIs(err, ErrNilConfig)

	_, err = NewButtonConfirmer(&ConfirmerConfig{})
	s.ErrorIs(err, ErrNilResponder)
}

func (s *ConfirmerTestSuite) TestConfirm_NoInteraction() {
	_, err := s.confirmer.Confirm(context.Background(), s.input)
	s.ErrorIs(err, ErrNoInteraction)
}

func (s *ConfirmerTestSuite) TestConfirm_Yes() {
	s.mockUUID.EXPECT().NewUUID().Return("p1")
	s.mockResponder.EXPECT().
		FollowupMessageCreate(gomock.Any(), true, gomock.Any()).
		DoAndReturn(func(_ *discordgo.Interaction, _ bool, data *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
			s.Equal(s.input.Message, data.Content)
			s.Equal(discordgo.MessageFlagsEphemeral, data.Flags)

			row, ok := data.Components[0].(discordgo.ActionsRow)
			s.Require().True(ok)
			s.Equal("confirm:yes:p1", row.Components[0].(discordgo.Button).CustomID)
			s.Equal("confirm:no:p1", row.Components[1].(discordgo.Button).CustomID)

			s.NoError(s.confirmer.Resolve("p1", "u1", true))
			return &discordgo.Message{ID: "m1"}, nil
		})

	ok, err := s.confirmer.Confirm(s.ctx, s.input)
	s.NoError(err)
	s.True(ok)
	s.Equal(0, s.confirmer.Pending())
}

func (s *ConfirmerTestSuite) TestConfirm_OnlyPromptedUserCanAnswer() {
	s.mockUUID.EXPECT().NewUUID().Return("p1")
	s.mockResponder.EXPECT().
		FollowupMessageCreate(gomock.Any(), true, gomock.Any()).
		DoAndReturn(func(_ *discordgo.Interaction, _ bool, _ *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
			s.ErrorIs(s.confirmer.Resolve("p1", "u2", true), ErrPromptNotYours)
			s.NoError(s.confirmer.Resolve("p1", "u1", false))
			return &discordgo.Message{ID: "m1"}, nil
		})

	ok, err := s.confirmer.Confirm(s.ctx, s.input)
	s.NoError(err)
	s.False(ok)
}

func (s *ConfirmerTestSuite) TestConfirm_TimeoutIsDecline() {
	confirmer, err := NewButtonConfirmer(&ConfirmerConfig{
		Responder: s.mockResponder,
		Timeout:   10 * time.Millisecond,
		UUID:      s.mockUUID,
	})
	s.Require().NoError(err)

	s.mockUUID.EXPECT().NewUUID().Return("p1")
	s.mockResponder.EXPECT().
		FollowupMessageCreate(gomock.Any(), true, gomock.Any()).
		Return(&discordgo.Message{ID: "m1"}, nil)

	ok, err := confirmer.Confirm(s.ctx, s.input)
	s.NoError(err)
	s.False(ok)
	s.ErrorIs(confirmer.Resolve("p1", "u1", true), ErrPromptNotFound)
}

func (s *ConfirmerTestSuite) TestConfirm_ContextDone() {
	ctx, cancel := context.WithCancel(s.ctx)

	s.mockUUID.EXPECT().NewUUID().Return("p1")
	s.mockResponder.EXPECT().
		FollowupMessageCreate(gomock.Any(), true, gomock.Any()).
		DoAndReturn(func(_ *discordgo.Interaction, _ bool, _ *discordgo.WebhookParams, _ ...discordgo.RequestOption) (*discordgo.Message, error) {
			cancel()
			return &discordgo.Message{ID: "m1"}, nil
		})

	ok, err := s.confirmer.Confirm(ctx, s.input)
	s.ErrorIs(err, context.Canceled)
	s.False(ok)
}

func (s *ConfirmerTestSuite) TestConfirm_SendFails() {
	s.mockUUID.EXPECT().NewUUID().Return("p1")
	s.mockResponder.EXPECT().
		FollowupMessageCreate(gomock.Any(), true, gomock.Any()).
		Return(nil, errors.New("unknown webhook"))

	ok, err := s.confirmer.Confirm(s.ctx, s.input)
	s.Error(err)
	s.False(ok)
	s.Equal(0, s.confirmer.Pending())
}

func (s *ConfirmerTestSuite) TestResolve_Unknown() {
	s.ErrorIs(s.confirmer.Resolve("nope", "u1", true), ErrPromptNotFound)
}
