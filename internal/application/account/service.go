package account

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/campus-identity/internal/domain"
	"github.com/campus-identity/internal/pkg/id"
	"golang.org/x/crypto/bcrypt"
)

const (
	minPasswordLength = 8
	maxPasswordLength = 72
)

type SignupRequest struct {
	IDToken         string `json:"idToken" validate:"required"`
	Name            string `json:"name" validate:"required,max=120"`
	Role            string `json:"role" validate:"required,oneof=STUDENT FACULTY"`
	Phone           string `json:"phone" validate:"required"`
	Password        string `json:"password" validate:"required,min=8,max=72"`
	ConfirmPassword string `json:"confirmPassword" validate:"required,eqfield=Password"`
}

type SignupResult struct {
	UserID  string `json:"userId"`
	Email   string `json:"email"`
	LoginID string `json:"loginId"`
	Role    string `json:"role"`
}

// GooglePayload is the verified identity behind a Google ID token.
type GooglePayload struct {
	Sub           string
	Email         string
	EmailVerified bool
	Name          string
}

type Service interface {
	Signup(ctx context.Context, req SignupRequest) (*SignupResult, error)
	// SetPassword replaces the password of an existing account.
	SetPassword(ctx context.Context, userID, newPassword string) error
}

type userStore interface {
	Create(ctx context.Context, u *domain.User) error
	GetByEmail(ctx context.Context, email string) (*domain.User, error)
	UpdatePassword(ctx context.Context, userID, passwordHash string) (*domain.User, error)
}

type directoryStore interface {
	Claim(ctx context.Context, e *domain.DirectoryEntry) error
	Release(ctx context.Context, loginID string) error
}

type googleVerifier interface {
	Verify(ctx context.Context, token string) (*GooglePayload, error)
}

type smsSender interface {
	SendSMS(ctx context.Context, to, message string) error
}

type service struct {
	users       userStore
	directory   directoryStore
	google      googleVerifier
	sms         smsSender
	emailDomain string
	admins      map[string]bool
	appName     string
	bcryptCost  int
}

type ServiceDeps struct {
	UserRepo       userStore
	DirectoryRepo  directoryStore
	GoogleVerifier googleVerifier
	SMSSender      smsSender // optional
	EmailDomain    string
	AdminEmails    []string
	AppName        string
	BcryptCost     int // defaults to bcrypt.DefaultCost
}

func NewService(deps ServiceDeps) Service {
	admins := make(map[string]bool, len(deps.AdminEmails))
	for _, e := range deps.AdminEmails {
		admins[strings.ToLower(strings.TrimSpace(e))] = true
	}
	cost := deps.BcryptCost
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &service{
		users:       deps.UserRepo,
		directory:   deps.DirectoryRepo,
		google:      deps.GoogleVerifier,
		sms:         deps.SMSSender,
		emailDomain: strings.ToLower(deps.EmailDomain),
		admins:      admins,
		appName:     deps.AppName,
		bcryptCost:  cost,
	}
}

func (s *service) Signup(ctx context.Context, req SignupRequest) (*SignupResult, error) {
	if err := checkSignup(req); err != nil {
		return nil, err
	}

	p, err := s.google.Verify(ctx, req.IDToken)
	if err != nil {
		return nil, err
	}
	if !p.EmailVerified || p.Email == "" {
		return nil, fmt.Errorf("google account email is not verified: %w", domain.ErrUnauthorized)
	}
	email := strings.ToLower(strings.TrimSpace(p.Email))
	if s.emailDomain != "" && !strings.HasSuffix(email, "@"+s.emailDomain) {
		return nil, fmt.Errorf("only @%s accounts may sign up: %w", s.emailDomain, domain.ErrForbidden)
	}
	if s.admins[email] {
		return nil, fmt.Errorf("admin accounts cannot self-register: %w", domain.ErrForbidden)
	}

	loginID, err := DeriveLoginID(req.Role, email, req.Phone)
	if err != nil {
		return nil, err
	}

	if _, err := s.users.GetByEmail(ctx, email); err == nil {
		return nil, fmt.Errorf("email already registered: %w", domain.ErrConflict)
	} else if !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.bcryptCost)
	if err != nil {
		return nil, err
	}

	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = p.Name
	}
	now := time.Now().UTC()
	u := &domain.User{
		UserID:       id.New(),
		Name:         name,
		Email:        email,
		LoginID:      loginID,
		Role:         req.Role,
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: string(hash),
		GoogleSub:    p.Sub,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := s.directory.Claim(ctx, &domain.DirectoryEntry{
		LoginID: loginID,
		UserID:  u.UserID,
		Email:   email,
		Name:    name,
	}); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, fmt.Errorf("login id %s is already in use: %w", loginID, domain.ErrConflict)
		}
		return nil, err
	}
	if err := s.users.Create(ctx, u); err != nil {
		if rErr := s.directory.Release(ctx, loginID); rErr != nil {
			slog.Error("could not release login id after failed signup", "login_id", loginID, "err", rErr)
		}
		return nil, err
	}

	slog.Info("account created", "user_id", u.UserID, "login_id", loginID, "role", u.Role)
	return &SignupResult{UserID: u.UserID, Email: email, LoginID: loginID, Role: u.Role}, nil
}

func (s *service) SetPassword(ctx context.Context, userID, newPassword string) error {
	if len(newPassword) < minPasswordLength || len(newPassword) > maxPasswordLength {
		return fmt.Errorf("password must be %d to %d characters: %w", minPasswordLength, maxPasswordLength, domain.ErrBadRequest)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), s.bcryptCost)
	if err != nil {
		return err
	}
	u, err := s.users.UpdatePassword(ctx, userID, string(hash))
	if err != nil {
		return err
	}

	if s.sms != nil && u.Phone != "" {
		msg := fmt.Sprintf("Your %s password was just changed. If this wasn't you, contact the administrator.", s.appName)
		if err := s.sms.SendSMS(ctx, u.Phone, msg); err != nil {
			slog.Warn("password change sms failed", "user_id", userID, "err", err)
		}
	}
	return nil
}

func checkSignup(req SignupRequest) error {
	switch {
	case strings.TrimSpace(req.IDToken) == "":
		return fmt.Errorf("idToken required: %w", domain.ErrBadRequest)
	case req.Role != domain.RoleStudent && req.Role != domain.RoleFaculty:
		return fmt.Errorf("role must be STUDENT or FACULTY: %w", domain.ErrBadRequest)
	case len(req.Password) < minPasswordLength || len(req.Password) > maxPasswordLength:
		return fmt.Errorf("password must be %d to %d characters: %w", minPasswordLength, maxPasswordLength, domain.ErrBadRequest)
	case req.Password != req.ConfirmPassword:
		return fmt.Errorf("passwords do not match: %w", domain.ErrBadRequest)
	}
	return nil
}

// DeriveLoginID computes the login ID a new account signs in with. Students
// use their numeric register number, the local part of their college email.
// Faculty get "F" followed by the last four digits of their phone number.
func DeriveLoginID(role, email, phone string) (string, error) {
	switch role {
	case domain.RoleStudent:
		local := email
		if at := strings.IndexByte(email, '@'); at >= 0 {
			local = email[:at]
		}
		if local == "" || !allDigits(local) {
			return "", fmt.Errorf("student email must start with a numeric register number: %w", domain.ErrBadRequest)
		}
		return local, nil
	case domain.RoleFaculty:
		var digits strings.Builder
		for _, r := range phone {
			if r >= '0' && r <= '9' {
				digits.WriteRune(r)
			}
		}
		d := digits.String()
		if len(d) < 4 {
			return "", fmt.Errorf("phone number needs at least 4 digits: %w", domain.ErrBadRequest)
		}
		return "F" + d[len(d)-4:], nil
	default:
		return "", fmt.Errorf("unknown role %q: %w", role, domain.ErrBadRequest)
	}
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
