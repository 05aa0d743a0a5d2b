package discord

// DiscordError is a custom error type for Discord surface errors
type DiscordError string

// Error implements the error interface
func (e DiscordError) Error() string {
	return string(e)
}

// Define errors
const (
	ErrNilConfig         DiscordError = "config cannot be nil"
	ErrEmptyToken        DiscordError = "token cannot be empty"
	ErrNilRepository     DiscordError = "session repository cannot be nil"
	ErrNilReconciler     DiscordError = "reconciler cannot be nil"
	ErrNilResponder      DiscordError = "responder cannot be nil"
	ErrNoInteraction     DiscordError = "no interaction in context"
	ErrNoUser            DiscordError = "interaction has no user"
	ErrPromptNotFound    DiscordError = "confirmation prompt not found"
	ErrPromptNotYours    DiscordError = "confirmation prompt belongs to another user"
	ErrUnknownSubcommand DiscordError = "unknown subcommand"
)
