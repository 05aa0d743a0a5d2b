package discord

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/dustin/go-humanize"

	"github.com/KirkDiggler/livesession/internal/common/oplock"
	"github.com/KirkDiggler/livesession/internal/models"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
	"github.com/KirkDiggler/livesession/internal/services/lifecycle"
	"github.com/KirkDiggler/livesession/internal/services/moderation"
)

// maxEmbedFields is Discord's limit on fields per embed
const maxEmbedFields = 25

func renderSessionList(sessions []*models.Session, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "🔴 Live now",
		Color: colorLive,
	}

	if len(sessions) == 0 {
		embed.Description = "Nobody is live right now. Start with `/live start`."
		return embed
	}

	shown := sessions
	if len(shown) > maxEmbedFields {
		shown = shown[:maxEmbedFields]
		embed.Footer = &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("and %d more", len(sessions)-maxEmbedFields),
		}
	}

	for _, s := range shown {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  s.Title,
			Value: sessionSummary(s, now),
		})
	}

	return embed
}

func sessionSummary(s *models.Session, now time.Time) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Host <@%s> • %s watching", s.HostID, humanize.Comma(int64(s.ViewerCount)))
	if !s.StartedAt.IsZero() {
		fmt.Fprintf(&sb, " • started %s", humanize.RelTime(s.StartedAt, now, "ago", "from now"))
	}
	fmt.Fprintf(&sb, "\n`%s`", s.ID)
	return sb.String()
}

func renderStatus(state models.ClientState, watched *models.Session, now time.Time) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Your live status",
		Color: colorOK,
	}

	if state.CurrentlyWatching == "" {
		embed.Description = "You're not in a session."
		return embed
	}

	if watched == nil {
		embed.Description = fmt.Sprintf("Joined `%s`, waiting for the host's stream.", state.CurrentlyWatching)
	} else {
		embed.Description = fmt.Sprintf("Watching **%s**\n%s", watched.Title, sessionSummary(watched, now))
	}

	if state.IsMinimized {
		embed.Footer = &discordgo.MessageEmbedFooter{Text: "minimized"}
	}

	return embed
}

func renderAnnouncement(s *models.Session, now time.Time) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "🔴 " + s.Title,
		Description: fmt.Sprintf("<@%s> is live. Join with `/live join session:%s`", s.HostID, s.ID),
		Color:       colorLive,
		Timestamp:   now.Format(time.RFC3339),
	}
}

func describeModeration(out *moderation.ActionOutput, targetID string) string {
	if out.Denied {
		return fmt.Sprintf("Can't %s <@%s>: %s.", out.Action, targetID, out.Reason)
	}

	switch out.Action {
	case moderation.ActionKick:
		return fmt.Sprintf("Kicked <@%s>.", targetID)
	case moderation.ActionMute:
		return fmt.Sprintf("Updated mute for <@%s>.", targetID)
	case moderation.ActionBan:
		return fmt.Sprintf("Updated ban for <@%s>.", targetID)
	default:
		return "Done."
	}
}

// describeError turns a lifecycle failure into something to show the user.
// Store errors are checked first because StoreWriteError unwraps to them.
func describeError(err error) string {
	switch {
	case err == nil:
		return "Done."
	case errors.Is(err, sessionRepo.ErrSessionEnded):
		return "That session has ended."
	case errors.Is(err, sessionRepo.ErrSessionNotFound):
		return "That session doesn't exist."
	case errors.Is(err, sessionRepo.ErrParticipantBanned):
		return "You've been banned from that session."
	case errors.Is(err, lifecycle.ErrNotAuthenticated):
		return "You need to be signed in to do that."
	case errors.Is(err, oplock.ErrOperationInProgress):
		return "Hold on, your last request is still running."
	case errors.Is(err, oplock.ErrDebounceRejected):
		return "Slow down a little and try again."
	case errors.Is(err, lifecycle.ErrUserCancelled):
		return "Cancelled. Nothing changed."
	case errors.Is(err, lifecycle.ErrStoreWriteFailed):
		return "Couldn't save that. Try again in a moment."
	case errors.Is(err, lifecycle.ErrNotHost):
		return "Only the host can end this session."
	case errors.Is(err, lifecycle.ErrNoSession):
		return "You're not in a session."
	case errors.Is(err, lifecycle.ErrHostMismatch), errors.Is(err, lifecycle.ErrInvalidInput):
		return "That request didn't look right."
	default:
		return "Something went wrong."
	}
}
