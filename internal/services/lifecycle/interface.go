package lifecycle

import (
	"context"

	"github.com/KirkDiggler/livesession/internal/models"
)

// Authenticator supplies the identity of the client's user
//
//go:generate mockgen -package=mocks -destination=mocks/mock_authenticator.go github.com/KirkDiggler/livesession/internal/services/lifecycle Authenticator
type Authenticator interface {
	// CurrentUser returns the caller. Guests and missing users are reported
	// through the identity, not as errors.
	CurrentUser(ctx context.Context) (*models.Identity, error)
}

// Confirmer asks the user a yes/no question and waits for the answer
//
//go:generate mockgen -package=mocks -destination=mocks/mock_confirmer.go github.com/KirkDiggler/livesession/internal/services/lifecycle Confirmer
type Confirmer interface {
	// Confirm blocks until the user decides or ctx is done
	Confirm(ctx context.Context, input *ConfirmInput) (bool, error)
}
