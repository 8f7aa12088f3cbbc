package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/campus-identity/internal/domain"
	"golang.org/x/crypto/bcrypt"
)

var errInvalidCredentials = fmt.Errorf("invalid credentials: %w", domain.ErrUnauthorized)

type LoginRequest struct {
	LoginID  string `json:"loginId" validate:"required"`
	Password string `json:"password" validate:"required"`
}

type LoginResult struct {
	Bearer  string `json:"bearer"`
	Role    string `json:"role"`
	LoginID string `json:"loginId"`
	Name    string `json:"name"`
	Home    string `json:"home"`
}

type Service interface {
	// Login accepts either a login ID or an email address as LoginID.
	Login(ctx context.Context, req LoginRequest) (*LoginResult, error)
	Me(ctx context.Context, userID string) (*domain.User, error)
}

type userStore interface {
	Get(ctx context.Context, userID string) (*domain.User, error)
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
}

type directory interface {
	Resolve(ctx context.Context, loginID string) (*domain.DirectoryEntry, error)
}

type jwtSigner interface {
	Sign(userID, loginID, role string) (string, error)
}

type service struct {
	users       userStore
	directory   directory
	jwtProvider jwtSigner
}

type ServiceDeps struct {
	UserRepo      userStore
	DirectoryRepo directory
	JWTProvider   jwtSigner
}

func NewService(deps ServiceDeps) Service {
	return &service{
		users:       deps.UserRepo,
		directory:   deps.DirectoryRepo,
		jwtProvider: deps.JWTProvider,
	}
}

func (s *service) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	ident := strings.TrimSpace(req.LoginID)
	if ident == "" || req.Password == "" {
		return nil, fmt.Errorf("loginId and password required: %w", domain.ErrBadRequest)
	}

	u, err := s.lookup(ctx, ident)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errInvalidCredentials
		}
		return nil, err
	}
	if u.PasswordHash == "" {
		return nil, errInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(req.Password)); err != nil {
		return nil, errInvalidCredentials
	}

	bearer, err := s.jwtProvider.Sign(u.UserID, u.LoginID, u.Role)
	if err != nil {
		return nil, fmt.Errorf("sign bearer: %w", err)
	}
	slog.Info("login", "user_id", u.UserID, "role", u.Role)
	return &LoginResult{
		Bearer:  bearer,
		Role:    u.Role,
		LoginID: u.LoginID,
		Name:    u.Name,
		Home:    domain.HomePath(u.Role),
	}, nil
}

func (s *service) Me(ctx context.Context, userID string) (*domain.User, error) {
	return s.users.Get(ctx, userID)
}

// lookup resolves an email through the users index and anything else
// through the login directory.
func (s *service) lookup(ctx context.Context, ident string) (*domain.User, error) {
	if strings.Contains(ident, "@") {
		return s.users.GetByEmail(ctx, strings.ToLower(ident))
	}
	entry, err := s.directory.Resolve(ctx, ident)
	if err != nil {
		return nil, err
	}
	return s.users.Get(ctx, entry.UserID)
}
