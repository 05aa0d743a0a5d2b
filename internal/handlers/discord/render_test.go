package discord

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/KirkDiggler/livesession/internal/common/oplock"
	"github.com/KirkDiggler/livesession/internal/models"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
	"github.com/KirkDiggler/livesession/internal/services/lifecycle"
	"github.com/KirkDiggler/livesession/internal/services/moderation"
)

func TestParseConfirmID(t *testing.T) {
	tests := []struct {
		customID   string
		wantPrompt string
		wantYes    bool
		wantOK     bool
	}{
		{customID: "confirm:yes:abc", wantPrompt: "abc", wantYes: true, wantOK: true},
		{customID: "confirm:no:abc", wantPrompt: "abc", wantOK: true},
		{customID: "confirm:yes:a:b", wantPrompt: "a:b", wantYes: true, wantOK: true},
		{customID: "confirm:maybe:abc"},
		{customID: "confirm:yes:"},
		{customID: "roll_dice"},
	}

	for _, tt := range tests {
		t.Run(tt.customID, func(t *testing.T) {
			prompt, yes, ok := parseConfirmID(tt.customID)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.wantPrompt, prompt)
			assert.Equal(t, tt.wantYes, yes)
		})
	}

	prompt, yes, ok := parseConfirmID(confirmID("p1", true))
	assert.True(t, ok)
	assert.True(t, yes)
	assert.Equal(t, "p1", prompt)
}

func TestDescribeError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"ended session on join", &lifecycle.StoreWriteError{Op: "join_session", Err: sessionRepo.ErrSessionEnded}, "That session has ended."},
		{"missing session", &lifecycle.StoreWriteError{Op: "join_session", Err: sessionRepo.ErrSessionNotFound}, "That session doesn't exist."},
		{"banned", &lifecycle.StoreWriteError{Op: "join_session", Err: sessionRepo.ErrParticipantBanned}, "You've been banned from that session."},
		{"other store failure", &lifecycle.StoreWriteError{Op: "leave_session", Err: errors.New("i/o timeout")}, "Couldn't save that. Try again in a moment."},
		{"in progress", oplock.ErrOperationInProgress, "Hold on, your last request is still running."},
		{"debounced", fmt.Errorf("join: %w", oplock.ErrDebounceRejected), "Slow down a little and try again."},
		{"cancelled", lifecycle.ErrUserCancelled, "Cancelled. Nothing changed."},
		{"guest", lifecycle.ErrNotAuthenticated, "You need to be signed in to do that."},
		{"not host", lifecycle.ErrNotHost, "Only the host can end this session."},
		{"nothing watched", lifecycle.ErrNoSession, "You're not in a session."},
		{"unknown", errors.New("boom"), "Something went wrong."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, describeError(tt.err))
		})
	}
}

func TestRenderSessionList(t *testing.T) {
	now := time.Date(2025, 4, 19, 12, 0, 0, 0, time.UTC)

	empty := renderSessionList(nil, now)
	assert.Contains(t, empty.Description, "Nobody is live")
	assert.Empty(t, empty.Fields)

	embed := renderSessionList([]*models.Session{
		{ID: "h1_1", Title: "Morning Show", HostID: "h1", ViewerCount: 1234, StartedAt: now.Add(-2 * time.Minute)},
		{ID: "h2_1", Title: "Live Stream", HostID: "h2"},
	}, now)
	assert.Len(t, embed.Fields, 2)
	assert.Equal(t, "Morning Show", embed.Fields[0].Name)
	assert.Contains(t, embed.Fields[0].Value, "1,234 watching")
	assert.Contains(t, embed.Fields[0].Value, "started 2 minutes ago")
	assert.Contains(t, embed.Fields[0].Value, "`h1_1`")
	assert.NotContains(t, embed.Fields[1].Value, "started")

	many := make([]*models.Session, 30)
	for i := range many {
		many[i] = &models.Session{ID: fmt.Sprintf("s%d", i), Title: "t"}
	}
	capped := renderSessionList(many, now)
	assert.Len(t, capped.Fields, maxEmbedFields)
	assert.Equal(t, "and 5 more", capped.Footer.Text)
}

func TestRenderStatus(t *testing.T) {
	now := time.Date(2025, 4, 19, 12, 0, 0, 0, time.UTC)

	idle := renderStatus(models.ClientState{Phase: models.PhaseIdle}, nil, now)
	assert.Equal(t, "You're not in a session.", idle.Description)

	pending := renderStatus(models.ClientState{CurrentlyWatching: "s1"}, nil, now)
	assert.Contains(t, pending.Description, "waiting for the host")

	watching := renderStatus(models.ClientState{CurrentlyWatching: "s1", IsMinimized: true},
		&models.Session{ID: "s1", Title: "Morning Show", HostID: "h1"}, now)
	assert.Contains(t, watching.Description, "Morning Show")
	assert.Equal(t, "minimized", watching.Footer.Text)
}

func TestDescribeModeration(t *testing.T) {
	assert.Equal(t, "Kicked <@u2>.", describeModeration(&moderation.ActionOutput{Action: moderation.ActionKick, Applied: true}, "u2"))
	assert.Equal(t, "Can't ban <@u2>: target joined before you.",
		describeModeration(&moderation.ActionOutput{Action: moderation.ActionBan, Denied: true, Reason: moderation.ReasonOutranked}, "u2"))
}
