package discord

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/clock"
	"github.com/KirkDiggler/livesession/internal/common/logging"
	"github.com/KirkDiggler/livesession/internal/models"
	sessionRepo "github.com/KirkDiggler/livesession/internal/repositories/session"
	"github.com/KirkDiggler/livesession/internal/services/reconciler"
)

// DefaultCommandTimeout bounds one interaction, confirmation included
const DefaultCommandTimeout = 2 * time.Minute

// Bot represents the Discord bot instance
type Bot struct {
	session *discordgo.Session

	// commands is read by interaction handlers while registration runs
	commandsMu sync.RWMutex
	commands   map[string]CommandHandler
	commandIDs map[string]string // Maps command name to command ID

	confirmer  *ButtonConfirmer
	registry   *Registry
	reconciler *reconciler.Reconciler
	config     *Config
	clock      clock.Clock
	log        *zap.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds the configuration for the bot
type Config struct {
	// Discord bot token
	Token string

	// Application ID for the bot
	ApplicationID string

	// Optional guild ID for development (server-specific commands)
	GuildID string

	// Optional channel that gets a message when a session goes live
	AnnounceChannelID string

	Repository sessionRepo.Repository

	// Reconciler is shared by every user's coordinator; its owner starts it
	Reconciler *reconciler.Reconciler

	DebounceInterval time.Duration
	ConfirmTimeout   time.Duration
	CommandTimeout   time.Duration

	Clock  clock.Clock
	Logger *zap.Logger
}

// New creates a new Discord bot
func New(cfg *Config) (*Bot, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if cfg.Token == "" {
		return nil, ErrEmptyToken
	}

	if cfg.Repository == nil {
		return nil, ErrNilRepository
	}

	if cfg.Reconciler == nil {
		return nil, ErrNilReconciler
	}

	log := logging.OrNop(cfg.Logger)
	clk := cfg.Clock
	if clk == nil {
		clk = &clock.DefaultClock{}
	}

	// Create a new Discord session
	session, err := discordgo.New("Bot " + cfg.Token)
	if err != nil {
		return nil, fmt.Errorf("failed to create Discord session: %w", err)
	}

	confirmer, err := NewButtonConfirmer(&ConfirmerConfig{
		Responder: session,
		Timeout:   cfg.ConfirmTimeout,
		Logger:    log.Named("confirmer"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create confirmer: %w", err)
	}

	registry, err := NewRegistry(&RegistryConfig{
		Repository:       cfg.Repository,
		Reconciler:       cfg.Reconciler,
		Authenticator:    InteractionAuthenticator{},
		Confirmer:        confirmer,
		DebounceInterval: cfg.DebounceInterval,
		Clock:            clk,
		Logger:           log.Named("coordinator"),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create coordinator registry: %w", err)
	}

	bot := &Bot{
		session:    session,
		commands:   make(map[string]CommandHandler),
		commandIDs: make(map[string]string),
		confirmer:  confirmer,
		registry:   registry,
		reconciler: cfg.Reconciler,
		config:     cfg,
		clock:      clk,
		log:        log,
	}

	// Register the interaction handler
	session.AddHandler(bot.handleInteraction)

	return bot, nil
}

// Start opens the Discord connection, registers commands, and starts the
// announcement loop when a channel is configured
func (b *Bot) Start(ctx context.Context) error {
	// Open the websocket connection to Discord
	if err := b.session.Open(); err != nil {
		return fmt.Errorf("failed to open Discord connection: %w", err)
	}

	liveCmd, err := NewLiveCommand(&LiveCommandConfig{
		Registry: b.registry,
		Sessions: b.reconciler,
		Clock:    b.clock,
		Logger:   b.log.Named("live"),
	})
	if err != nil {
		return fmt.Errorf("failed to create live command: %w", err)
	}

	if err := b.RegisterCommand(liveCmd); err != nil {
		return fmt.Errorf("failed to register live command: %w", err)
	}

	if b.config.AnnounceChannelID != "" {
		ctx, cancel := context.WithCancel(ctx)
		b.cancel = cancel
		b.wg.Add(1)
		go func() {
			defer b.wg.Done()
			b.announce(ctx, b.session, b.reconciler.Updates())
		}()
	}

	b.log.Info("bot is running")
	return nil
}

// Stop removes the registered commands and closes the Discord connection
func (b *Bot) Stop() error {
	if b.cancel != nil {
		b.cancel()
	}
	b.wg.Wait()

	appID := b.appID()
	b.commandsMu.RLock()
	commandIDs := make(map[string]string, len(b.commandIDs))
	for name, id := range b.commandIDs {
		commandIDs[name] = id
	}
	b.commandsMu.RUnlock()

	for cmdName, cmdID := range commandIDs {
		if err := b.session.ApplicationCommandDelete(appID, b.config.GuildID, cmdID); err != nil {
			b.log.Warn("failed to delete command",
				zap.String("command", cmdName),
				zap.String("command_id", cmdID),
				zap.Error(err))
		} else {
			b.log.Info("deleted command", zap.String("command", cmdName), zap.String("command_id", cmdID))
		}
	}

	return b.session.Close()
}

// RegisterCommand registers a command with Discord. Commands are registered
// for GuildID when it is set, otherwise globally.
func (b *Bot) RegisterCommand(cmd CommandHandler) error {
	createdCmd, err := b.session.ApplicationCommandCreate(b.appID(), b.config.GuildID, cmd.GetCommand())
	if err != nil {
		return fmt.Errorf("failed to create command %s: %w", cmd.GetName(), err)
	}

	b.addCommand(cmd, createdCmd.ID)
	b.log.Info("registered command",
		zap.String("command", cmd.GetName()),
		zap.String("command_id", createdCmd.ID),
		zap.String("guild_id", b.config.GuildID))

	return nil
}

// addCommand stores the command handler and its ID
func (b *Bot) addCommand(cmd CommandHandler, commandID string) {
	b.commandsMu.Lock()
	defer b.commandsMu.Unlock()
	b.commands[cmd.GetName()] = cmd
	b.commandIDs[cmd.GetName()] = commandID
}

func (b *Bot) command(name string) (CommandHandler, bool) {
	b.commandsMu.RLock()
	defer b.commandsMu.RUnlock()
	h, ok := b.commands[name]
	return h, ok
}

func (b *Bot) appID() string {
	if b.config.ApplicationID != "" {
		return b.config.ApplicationID
	}
	// Fall back to session user ID if application ID is not provided
	return b.session.State.User.ID
}

// handleInteraction handles Discord interactions. discordgo runs every
// handler call in its own goroutine, so a command blocked on a confirmation
// does not hold up the button click that answers it.
func (b *Bot) handleInteraction(s *discordgo.Session, i *discordgo.InteractionCreate) {
	timeout := b.config.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	switch i.Type {
	case discordgo.InteractionApplicationCommand:
		name := i.ApplicationCommandData().Name
		if h, ok := b.command(name); ok {
			if err := h.Handle(ctx, s, i); err != nil {
				b.log.Error("error handling command", zap.String("command", name), zap.Error(err))
			}
		}
	case discordgo.InteractionMessageComponent:
		if err := b.handleComponent(s, i); err != nil {
			b.log.Error("error handling component interaction", zap.Error(err))
		}
	}
}

// handleComponent answers confirmation buttons and strips them from the prompt
func (b *Bot) handleComponent(r Responder, i *discordgo.InteractionCreate) error {
	customID := i.MessageComponentData().CustomID
	promptID, yes, ok := parseConfirmID(customID)
	if !ok {
		b.log.Debug("ignoring component", zap.String("custom_id", customID))
		return nil
	}

	user := interactionUser(i)
	if user == nil {
		return ErrNoUser
	}

	content := "Cancelled."
	if yes {
		content = "Confirmed."
	}

	err := b.confirmer.Resolve(promptID, user.ID, yes)
	switch {
	case errors.Is(err, ErrPromptNotFound):
		content = "That question has expired."
	case errors.Is(err, ErrPromptNotYours):
		return RespondWithEphemeralMessage(r, i, "That question isn't for you.")
	case err != nil:
		return err
	}

	return r.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseUpdateMessage,
		Data: &discordgo.InteractionResponseData{
			Content:    content,
			Components: []discordgo.MessageComponent{},
		},
	})
}

// announce posts newly visible sessions to the announce channel. Updates
// coalesce, so an addition that is superseded before it is read is skipped.
func (b *Bot) announce(ctx context.Context, r Responder, updates <-chan *reconciler.Update) {
	for {
		select {
		case <-ctx.Done():
			return
		case update, ok := <-updates:
			if !ok {
				return
			}
			if update.Delta == nil {
				continue
			}
			for _, s := range addedSessions(update) {
				if _, err := r.ChannelMessageSendEmbed(b.config.AnnounceChannelID, renderAnnouncement(s, b.clock.Now())); err != nil {
					b.log.Warn("failed to announce session", zap.String("session_id", s.ID), zap.Error(err))
				}
			}
		}
	}
}

func addedSessions(update *reconciler.Update) []*models.Session {
	added := make(map[string]bool, len(update.Delta.Added))
	for _, id := range update.Delta.Added {
		added[id] = true
	}

	out := make([]*models.Session, 0, len(added))
	for _, s := range update.Sessions {
		if added[s.ID] {
			out = append(out, s)
		}
	}
	return out
}
