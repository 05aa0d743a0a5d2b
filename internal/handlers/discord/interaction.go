package discord

import (
	"context"

	"github.com/bwmarrin/discordgo"

	"github.com/KirkDiggler/livesession/internal/models"
)

type interactionKey struct{}

// WithInteraction attaches the interaction being handled to ctx. The
// authenticator and confirmer answer for whoever sent it.
func WithInteraction(ctx context.Context, i *discordgo.InteractionCreate) context.Context {
	return context.WithValue(ctx, interactionKey{}, i)
}

func interactionFrom(ctx context.Context) (*discordgo.InteractionCreate, bool) {
	i, ok := ctx.Value(interactionKey{}).(*discordgo.InteractionCreate)
	return i, ok && i != nil && i.Interaction != nil
}

// interactionUser returns the user behind an interaction; guild interactions
// carry it on the member
func interactionUser(i *discordgo.InteractionCreate) *discordgo.User {
	if i == nil || i.Interaction == nil {
		return nil
	}
	if i.Member != nil && i.Member.User != nil {
		return i.Member.User
	}
	return i.User
}

func displayName(i *discordgo.InteractionCreate) string {
	if i.Member != nil && i.Member.Nick != "" {
		return i.Member.Nick
	}
	user := interactionUser(i)
	if user == nil {
		return ""
	}
	if user.GlobalName != "" {
		return user.GlobalName
	}
	return user.Username
}

// InteractionAuthenticator reports the sender of the interaction in ctx as
// the current user. Bot accounts are treated as guests.
type InteractionAuthenticator struct{}

// CurrentUser implements lifecycle.Authenticator
func (InteractionAuthenticator) CurrentUser(ctx context.Context) (*models.Identity, error) {
	i, ok := interactionFrom(ctx)
	if !ok {
		return nil, ErrNoInteraction
	}

	user := interactionUser(i)
	if user == nil {
		return nil, ErrNoUser
	}

	return &models.Identity{
		UID:         user.ID,
		DisplayName: displayName(i),
		AvatarRef:   user.AvatarURL(""),
		IsGuest:     user.Bot,
	}, nil
}
