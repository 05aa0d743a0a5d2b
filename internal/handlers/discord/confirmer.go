package discord

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/KirkDiggler/livesession/internal/common/logging"
	"github.com/KirkDiggler/livesession/internal/common/uuid"
	"github.com/KirkDiggler/livesession/internal/services/lifecycle"
)

// DefaultConfirmTimeout is how long a prompt waits before counting as a decline
const DefaultConfirmTimeout = time.Minute

const confirmPrefix = "confirm"

// ConfirmerConfig holds configuration for the button confirmer
type ConfirmerConfig struct {
	Responder Responder

	// Timeout; zero uses DefaultConfirmTimeout
	Timeout time.Duration

	UUID   uuid.UUID
	Logger *zap.Logger
}

type prompt struct {
	userID string
	answer chan bool
}

// ButtonConfirmer asks confirmation questions as ephemeral followups with
// Yes/No buttons on the interaction in ctx, and blocks until the same user
// clicks one, the prompt times out, or ctx is done. Discord stops accepting
// followups on an interaction token after 15 minutes, so the wait cannot be
// open-ended; a prompt left unanswered past Timeout counts as a decline.
type ButtonConfirmer struct {
	responder Responder
	timeout   time.Duration
	uuid      uuid.UUID
	log       *zap.Logger

	mu      sync.Mutex
	pending map[string]*prompt
}

// NewButtonConfirmer creates a button confirmer
func NewButtonConfirmer(cfg *ConfirmerConfig) (*ButtonConfirmer, error) {
	if cfg == nil {
		return nil, ErrNilConfig
	}

	if cfg.Responder == nil {
		return nil, ErrNilResponder
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = DefaultConfirmTimeout
	}

	ids := cfg.UUID
	if ids == nil {
		ids = uuid.New()
	}

	return &ButtonConfirmer{
		responder: cfg.Responder,
		timeout:   timeout,
		uuid:      ids,
		log:       logging.OrNop(cfg.Logger),
		pending:   make(map[string]*prompt),
	}, nil
}

// Confirm implements lifecycle.Confirmer. A timeout is a decline.
func (c *ButtonConfirmer) Confirm(ctx context.Context, input *lifecycle.ConfirmInput) (bool, error) {
	i, ok := interactionFrom(ctx)
	if !ok {
		return false, ErrNoInteraction
	}

	user := interactionUser(i)
	if user == nil {
		return false, ErrNoUser
	}

	promptID := c.uuid.NewUUID()
	p := &prompt{userID: user.ID, answer: make(chan bool, 1)}

	c.mu.Lock()
	c.pending[promptID] = p
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, promptID)
		c.mu.Unlock()
	}()

	_, err := c.responder.FollowupMessageCreate(i.Interaction, true, &discordgo.WebhookParams{
		Content:    input.Message,
		Flags:      discordgo.MessageFlagsEphemeral,
		Components: confirmComponents(promptID),
	})
	if err != nil {
		return false, fmt.Errorf("failed to send confirmation prompt: %w", err)
	}

	timer := time.NewTimer(c.timeout)
	defer timer.Stop()

	select {
	case yes := <-p.answer:
		return yes, nil
	case <-timer.C:
		c.log.Debug("confirmation timed out",
			zap.String("kind", string(input.Kind)),
			zap.String("user_id", user.ID))
		return false, nil
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

// Resolve answers a pending prompt. Only the user the prompt was shown to
// can answer it.
func (c *ButtonConfirmer) Resolve(promptID, userID string, yes bool) error {
	c.mu.Lock()
	p, ok := c.pending[promptID]
	if ok && p.userID == userID {
		delete(c.pending, promptID)
	}
	c.mu.Unlock()

	if !ok {
		return ErrPromptNotFound
	}
	if p.userID != userID {
		return ErrPromptNotYours
	}

	p.answer <- yes
	return nil
}

// Pending returns the number of unanswered prompts
func (c *ButtonConfirmer) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

func confirmComponents(promptID string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Yes",
					Style:    discordgo.DangerButton,
					CustomID: confirmID(promptID, true),
				},
				discordgo.Button{
					Label:    "No",
					Style:    discordgo.SecondaryButton,
					CustomID: confirmID(promptID, false),
				},
			},
		},
	}
}

func confirmID(promptID string, yes bool) string {
	answer := "no"
	if yes {
		answer = "yes"
	}
	return confirmPrefix + ":" + answer + ":" + promptID
}

// parseConfirmID splits a confirm button custom ID
func parseConfirmID(customID string) (promptID string, yes bool, ok bool) {
	parts := strings.SplitN(customID, ":", 3)
	if len(parts) != 3 || parts[0] != confirmPrefix || parts[2] == "" {
		return "", false, false
	}

	switch parts[1] {
	case "yes":
		return parts[2], true, true
	case "no":
		return parts[2], false, true
	default:
		return "", false, false
	}
}
