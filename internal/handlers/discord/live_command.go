package discord

import (
	"context"
	"errors"
	"fmt"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/common/logging"
	"github.com/KirkDiggler/livesession/internal/common/oplock"
	"github.com/KirkDiggler/livesession/internal/coordinator"
	"github.com/KirkDiggler/livesession/internal/models"
	"github.com/KirkDiggler/livesession/internal/services/lifecycle"
	"github.com/KirkDiggler/livesession/internal/services/moderation"
)

// Subcommands of /live
const (
	SubcommandStart    = "start"
	SubcommandJoin     = "join"
	SubcommandLeave    = "leave"
	SubcommandEnd      = "end"
	SubcommandMinimize = "minimize"
	SubcommandList     = "list"
	SubcommandStatus   = "status"
	SubcommandKick     = "kick"
	SubcommandMute     = "mute"
	SubcommandBan      = "ban"
)

// SessionLister is the reconciled session list
type SessionLister interface {
	Sessions() []*models.Session
}

// LiveCommandConfig holds configuration for the /live command
type LiveCommandConfig struct {
	Registry *Registry
	Sessions SessionLister
	Clock    clock.Clock
	Logger   *zap.Logger
}

// LiveCommand handles /live
type LiveCommand struct {
	BaseCommand
	registry *Registry
	sessions SessionLister
	clock    clock.Clock
	log      *zap.Logger
}

// NewLiveCommand creates the /live command
func NewLiveCommand(cfg *LiveCommandConfig) (*LiveCommand, error) {
	if cfg == nil || cfg.Registry == nil || cfg.Sessions == nil {
		return nil, ErrNilConfig
	}

	clk := cfg.Clock
	if clk == nil {
		clk = &clock.DefaultClock{}
	}

	return &LiveCommand{
		BaseCommand: BaseCommand{
			Name:        "live",
			Description: "Start, join, and moderate live sessions",
			Options:     liveOptions(),
		},
		registry: cfg.Registry,
		sessions: cfg.Sessions,
		clock:    clk,
		log:      logging.OrNop(cfg.Logger),
	}, nil
}

func liveOptions() []*discordgo.ApplicationCommandOption {
	userOption := &discordgo.ApplicationCommandOption{
		Type:        discordgo.ApplicationCommandOptionUser,
		Name:        "user",
		Description: "Co-host to moderate",
		Required:    true,
	}
	flagOption := func(description string) *discordgo.ApplicationCommandOption {
		return &discordgo.ApplicationCommandOption{
			Type:        discordgo.ApplicationCommandOptionBoolean,
			Name:        "on",
			Description: description,
		}
	}

	return []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        SubcommandStart,
			Description: "Start a live session",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "title",
					Description: "Session title",
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        SubcommandJoin,
			Description: "Join a live session",
			Options: []*discordgo.ApplicationCommandOption{
				{
					Type:        discordgo.ApplicationCommandOptionString,
					Name:        "session",
					Description: "Session ID from /live list",
					Required:    true,
				},
				{
					Type:        discordgo.ApplicationCommandOptionBoolean,
					Name:        "cohost",
					Description: "Join as a co-host",
				},
			},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        SubcommandLeave,
			Description: "Leave your session",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        SubcommandEnd,
			Description: "End the session you host",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        SubcommandMinimize,
			Description: "Minimize or restore your session",
			Options:     []*discordgo.ApplicationCommandOption{flagOption("Minimize (default) or restore")},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        SubcommandList,
			Description: "List live sessions",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        SubcommandStatus,
			Description: "Show your live status",
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        SubcommandKick,
			Description: "Remove a co-host who joined after you",
			Options:     []*discordgo.ApplicationCommandOption{userOption},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        SubcommandMute,
			Description: "Mute or unmute a co-host who joined after you",
			Options:     []*discordgo.ApplicationCommandOption{userOption, flagOption("Mute (default) or unmute")},
		},
		{
			Type:        discordgo.ApplicationCommandOptionSubCommand,
			Name:        SubcommandBan,
			Description: "Ban or unban a co-host who joined after you",
			Options:     []*discordgo.ApplicationCommandOption{userOption, flagOption("Ban (default) or unban")},
		},
	}
}

// Handle processes /live
func (c *LiveCommand) Handle(ctx context.Context, r Responder, i *discordgo.InteractionCreate) error {
	user := interactionUser(i)
	if user == nil {
		return RespondWithError(r, i, "Couldn't tell who you are.")
	}

	options := i.ApplicationCommandData().Options
	if len(options) == 0 {
		return RespondWithError(r, i, "Pick a subcommand.")
	}
	sub := options[0]
	args := optionMap(sub.Options)

	coord, err := c.registry.For(user.ID)
	if err != nil {
		c.log.Error("failed to get coordinator", zap.String("user_id", user.ID), zap.Error(err))
		return RespondWithError(r, i, describeError(err))
	}

	ctx = WithInteraction(ctx, i)

	switch sub.Name {
	case SubcommandList:
		return RespondWithEmbed(r, i, renderSessionList(c.sessions.Sessions(), c.clock.Now()))
	case SubcommandStatus:
		return c.handleStatus(ctx, r, i, coord)
	case SubcommandMinimize:
		return c.handleMinimize(r, i, coord, boolArg(args, "on", true))
	case SubcommandStart:
		return c.deferred(r, i, func() string {
			return c.handleStart(ctx, i, coord, stringArg(args, "title"))
		})
	case SubcommandJoin:
		return c.deferred(r, i, func() string {
			return c.handleJoin(ctx, coord, stringArg(args, "session"), boolArg(args, "cohost", false))
		})
	case SubcommandLeave:
		return c.deferred(r, i, func() string {
			return c.handleLeave(ctx, coord)
		})
	case SubcommandEnd:
		return c.deferred(r, i, func() string {
			return c.handleEnd(ctx, coord)
		})
	case SubcommandKick, SubcommandMute, SubcommandBan:
		target := args["user"]
		if target == nil {
			return RespondWithError(r, i, "Pick a user.")
		}
		return c.handleModeration(ctx, r, i, coord, moderation.Action(sub.Name), target.UserValue(nil).ID, boolArg(args, "on", true))
	default:
		return fmt.Errorf("%w: %s", ErrUnknownSubcommand, sub.Name)
	}
}

// deferred acknowledges the interaction, runs fn, and edits the answer in.
// Confirmation prompts are followups, which need the acknowledgement first.
func (c *LiveCommand) deferred(r Responder, i *discordgo.InteractionCreate, fn func() string) error {
	if err := DeferEphemeral(r, i); err != nil {
		return fmt.Errorf("failed to defer response: %w", err)
	}
	return EditResponse(r, i, fn())
}

func (c *LiveCommand) handleStart(ctx context.Context, i *discordgo.InteractionCreate, coord *coordinator.Coordinator, title string) string {
	user := interactionUser(i)
	out, err := coord.Lifecycle().CreateSession(ctx, &lifecycle.CreateSessionInput{
		Title:      title,
		HostID:     user.ID,
		HostName:   displayName(i),
		HostAvatar: user.AvatarURL(""),
	})
	if err != nil {
		c.logFailure("start", user.ID, err)
		return describeError(err)
	}

	if out.Existed {
		return fmt.Sprintf("You're already live in `%s`.", out.SessionID)
	}
	return fmt.Sprintf("Session `%s` created. It shows up in `/live list` once your stream connects.", out.SessionID)
}

func (c *LiveCommand) handleJoin(ctx context.Context, coord *coordinator.Coordinator, sessionID string, asHost bool) string {
	out, err := coord.Lifecycle().JoinSession(ctx, &lifecycle.JoinSessionInput{
		SessionID: sessionID,
		AsHost:    asHost,
	})
	if err != nil {
		c.logFailure("join", sessionID, err)
		return describeError(err)
	}

	if out.AlreadyWatching {
		return "You're already in that session."
	}
	if asHost {
		return fmt.Sprintf("Joined `%s` as co-host #%d.", out.SessionID, out.JoinOrder)
	}
	return fmt.Sprintf("Joined `%s`.", out.SessionID)
}

func (c *LiveCommand) handleLeave(ctx context.Context, coord *coordinator.Coordinator) string {
	if err := coord.Lifecycle().LeaveSessionWithConfirmation(ctx, &lifecycle.LeaveSessionInput{}); err != nil {
		c.logFailure("leave", "", err)
		return describeError(err)
	}
	return "You left the session."
}

func (c *LiveCommand) handleEnd(ctx context.Context, coord *coordinator.Coordinator) string {
	if err := coord.Lifecycle().EndSession(ctx, &lifecycle.EndSessionInput{}); err != nil {
		c.logFailure("end", "", err)
		return describeError(err)
	}
	return "Session ended."
}

func (c *LiveCommand) handleStatus(ctx context.Context, r Responder, i *discordgo.InteractionCreate, coord *coordinator.Coordinator) error {
	refresh, err := coord.Lifecycle().RefreshWatching(ctx)
	switch {
	case errors.Is(err, oplock.ErrOperationInProgress):
		// report what we have; the running operation settles it
	case err != nil:
		c.log.Warn("failed to refresh watched session", zap.Error(err))
	case refresh.Reset:
		c.log.Info("watched session is gone", zap.String("session_id", refresh.SessionID))
	}

	watched, _ := coord.WatchedSession()
	return RespondWithEmbed(r, i, renderStatus(coord.Lifecycle().State(), watched, c.clock.Now()))
}

func (c *LiveCommand) handleMinimize(r Responder, i *discordgo.InteractionCreate, coord *coordinator.Coordinator, minimized bool) error {
	sessionID := coord.Lifecycle().State().CurrentlyWatching
	if sessionID == "" {
		return RespondWithEphemeralMessage(r, i, describeError(lifecycle.ErrNoSession))
	}

	coord.Lifecycle().SetMinimized(sessionID, minimized)
	if minimized {
		return RespondWithEphemeralMessage(r, i, "Minimized.")
	}
	return RespondWithEphemeralMessage(r, i, "Restored.")
}

func (c *LiveCommand) handleModeration(ctx context.Context, r Responder, i *discordgo.InteractionCreate, coord *coordinator.Coordinator, action moderation.Action, targetID string, value bool) error {
	watched, ok := coord.WatchedSession()
	if !ok {
		return RespondWithEphemeralMessage(r, i, "You need to be in a live session to moderate.")
	}

	input := &moderation.ActionInput{
		SessionID: watched.ID,
		ActorID:   interactionUser(i).ID,
		TargetID:  targetID,
		Value:     value,
	}

	var out *moderation.ActionOutput
	var err error
	switch action {
	case moderation.ActionKick:
		out, err = coord.Moderation().Kick(ctx, input)
	case moderation.ActionMute:
		out, err = coord.Moderation().Mute(ctx, input)
	default:
		out, err = coord.Moderation().Ban(ctx, input)
	}
	if err != nil {
		c.log.Error("moderation failed",
			zap.String("action", string(action)),
			zap.String("session_id", watched.ID),
			zap.Error(err))
		return RespondWithError(r, i, "Couldn't apply that. Try again in a moment.")
	}

	return RespondWithEphemeralMessage(r, i, describeModeration(out, targetID))
}

func (c *LiveCommand) logFailure(op, ref string, err error) {
	// expected outcomes the user caused
	if errors.Is(err, lifecycle.ErrUserCancelled) ||
		errors.Is(err, oplock.ErrOperationInProgress) ||
		errors.Is(err, oplock.ErrDebounceRejected) {
		c.log.Debug("live command rejected", zap.String("op", op), zap.String("ref", ref), zap.Error(err))
		return
	}
	c.log.Warn("live command failed", zap.String("op", op), zap.String("ref", ref), zap.Error(err))
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func stringArg(args map[string]*discordgo.ApplicationCommandInteractionDataOption, name string) string {
	if opt, ok := args[name]; ok {
		return opt.StringValue()
	}
	return ""
}

func boolArg(args map[string]*discordgo.ApplicationCommandInteractionDataOption, name string, def bool) bool {
	if opt, ok := args[name]; ok {
		return opt.BoolValue()
	}
	return def
}
