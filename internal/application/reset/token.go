package reset

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/campus-identity/internal/domain"
	"github.com/campus-identity/internal/pkg/id"
)

// This file holds the two-step variant of the flow: the code is exchanged for
// a short-lived signed capability, and the capability is later exchanged for
// the password change. It shares attempt accounting with Service but nothing else.

var errBadToken = fmt.Errorf("invalid or expired reset token: %w", domain.ErrUnauthorized)

// TokenSigner issues and checks reset capabilities.
type TokenSigner interface {
	Sign(userID, tokenID string, ttl time.Duration) (string, error)
	Parse(token string) (userID, tokenID string, expiresAt time.Time, err error)
}

// RedemptionStore remembers spent capabilities until they would have expired anyway.
type RedemptionStore interface {
	// Redeem records tokenID as spent. A second call for the same ID fails with domain.ErrConflict.
	Redeem(ctx context.Context, tokenID, userID string, until time.Time) error
	Release(ctx context.Context, tokenID string) error
}

type VerifyCodeRequest struct {
	SessionRef string `json:"sessionRef"`
	Code       string `json:"code"`
}

type CodeResult struct {
	ResetToken string `json:"resetToken"`
	ExpiresIn  int    `json:"expiresIn"`
}

type SetPasswordRequest struct {
	ResetToken  string `json:"resetToken"`
	NewPassword string `json:"newPassword"`
}

type TokenService interface {
	VerifyCode(ctx context.Context, req VerifyCodeRequest) (*CodeResult, error)
	SetPassword(ctx context.Context, req SetPasswordRequest) error
}

type TokenServiceDeps struct {
	Sessions    SessionStore
	Redemptions RedemptionStore
	Credentials CredentialStore
	Signer      TokenSigner
	Config      Config
	Now         func() time.Time
}

type tokenService struct {
	gate
	redemptions RedemptionStore
	credentials CredentialStore
	signer      TokenSigner
}

func NewTokenService(d TokenServiceDeps) TokenService {
	return &tokenService{
		gate:        newGate(d.Sessions, d.Config, d.Now),
		redemptions: d.Redemptions,
		credentials: d.Credentials,
		signer:      d.Signer,
	}
}

func (s *tokenService) VerifyCode(ctx context.Context, req VerifyCodeRequest) (*CodeResult, error) {
	ref := strings.TrimSpace(req.SessionRef)
	code := strings.TrimSpace(req.Code)
	if ref == "" || code == "" {
		return nil, fmt.Errorf("sessionRef and code required: %w", domain.ErrBadRequest)
	}
	if !validCode(code, s.cfg.CodeLength) {
		return nil, fmt.Errorf("code must be %d digits: %w", s.cfg.CodeLength, domain.ErrBadRequest)
	}

	if _, err := s.check(ctx, ref, code); err != nil {
		return nil, err
	}
	taken, err := s.take(ctx, ref)
	if err != nil {
		return nil, err
	}

	tokenID, err := id.NewRef()
	if err != nil {
		s.restore(ctx, taken)
		return nil, err
	}
	token, err := s.signer.Sign(taken.UserID, tokenID, s.cfg.TokenTTL)
	if err != nil {
		s.restore(ctx, taken)
		return nil, fmt.Errorf("sign reset token: %w", err)
	}

	slog.Info("reset code exchanged for token", "session_ref", ref, "user_id", taken.UserID, "token_id", tokenID)
	return &CodeResult{ResetToken: token, ExpiresIn: int(s.cfg.TokenTTL / time.Second)}, nil
}

func (s *tokenService) SetPassword(ctx context.Context, req SetPasswordRequest) error {
	token := strings.TrimSpace(req.ResetToken)
	if token == "" || req.NewPassword == "" {
		return fmt.Errorf("resetToken and newPassword required: %w", domain.ErrBadRequest)
	}
	if err := checkPassword(req.NewPassword); err != nil {
		return err
	}

	userID, tokenID, expiresAt, err := s.signer.Parse(token)
	if err != nil {
		return errBadToken
	}
	if !expiresAt.After(s.now()) {
		return errBadToken
	}

	if err := s.redemptions.Redeem(ctx, tokenID, userID, expiresAt); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			slog.Warn("reset token replayed", "token_id", tokenID, "user_id", userID)
			return errBadToken
		}
		return fmt.Errorf("redeem reset token: %w", err)
	}

	if err := s.credentials.SetPassword(ctx, userID, req.NewPassword); err != nil {
		slog.Error("password update failed", "token_id", tokenID, "user_id", userID, "err", err)
		rctx, cancel := detached(ctx)
		defer cancel()
		if rErr := s.redemptions.Release(rctx, tokenID); rErr != nil {
			slog.Error("could not release reset token", "token_id", tokenID, "err", rErr)
		}
		return fmt.Errorf("set password: %v: %w", err, domain.ErrMutationFailed)
	}

	slog.Info("password reset completed", "token_id", tokenID, "user_id", userID)
	return nil
}
