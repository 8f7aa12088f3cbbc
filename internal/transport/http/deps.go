package http

import (
	"context"

	"github.com/campus-identity/internal/application/account"
	"github.com/campus-identity/internal/application/reset"
	"github.com/campus-identity/internal/application/session"
	"github.com/campus-identity/internal/domain"
	"github.com/campus-identity/internal/transport/http/middleware"
)

// DirectoryReader is the read side of the login directory.
type DirectoryReader interface {
	Resolve(ctx context.Context, loginID string) (*domain.DirectoryEntry, error)
}

// Deps holds the services and collaborators the router serves.
type Deps struct {
	Reset reset.Service
	// ResetTokens enables the two-step verify-code/set-password endpoints.
	// Leave it nil to keep them disabled.
	ResetTokens reset.TokenService
	Accounts    account.Service
	Sessions    session.Service
	Directory   DirectoryReader
	JWTProvider middleware.TokenVerifier
	// RateLimiter guards the public credential endpoints. The caller closes it
	// on shutdown.
	RateLimiter *middleware.RateLimiter
}
