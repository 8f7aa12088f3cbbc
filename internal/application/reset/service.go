package reset

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/campus-identity/internal/domain"
	"github.com/campus-identity/internal/pkg/id"
)

// cleanupTimeout bounds the store writes that must outlive the request.
const cleanupTimeout = 5 * time.Second

// Password policy applied to every new password. The upper bound is bcrypt's input limit.
const (
	MinPasswordLength = 8
	MaxPasswordLength = 72
)

// errSessionGone is returned for unknown and already-consumed sessions alike.
var errSessionGone = fmt.Errorf("reset session expired or never existed: %w", domain.ErrNotFound)

// SessionStore persists reset sessions. Implementations must make
// IncrementAttempts and Take atomic per session ref.
type SessionStore interface {
	// Create inserts s, failing with domain.ErrConflict if the ref already exists.
	Create(ctx context.Context, s *domain.ResetSession) error
	Get(ctx context.Context, ref string) (*domain.ResetSession, error)
	// IncrementAttempts reserves one attempt and returns the new count. It
	// fails with domain.ErrLockedOut, leaving the count alone, once the count
	// has reached max.
	IncrementAttempts(ctx context.Context, ref string, max int) (int, error)
	// Take deletes the session and returns it. Exactly one concurrent caller succeeds;
	// the others get domain.ErrNotFound.
	Take(ctx context.Context, ref string) (*domain.ResetSession, error)
	Delete(ctx context.Context, ref string) error
}

// Directory resolves a login ID to the account it belongs to.
type Directory interface {
	Resolve(ctx context.Context, loginID string) (*domain.DirectoryEntry, error)
}

// CredentialStore owns the password of an account.
type CredentialStore interface {
	SetPassword(ctx context.Context, userID, newPassword string) error
}

// Notifier delivers the reset code.
type Notifier interface {
	Send(ctx context.Context, to, subject, body string) error
}

// Config is the complete set of settings for the reset protocol.
type Config struct {
	TTL              time.Duration
	MaxAttempts      int
	CodeLength       int
	Hasher           Hasher
	AppName          string // signs the outgoing mail
	EmailDomain      string // used for decoy addresses
	RetentionGrace   time.Duration
	EnumerationDelay time.Duration
	TokenTTL         time.Duration
}

func (c Config) withDefaults() Config {
	if c.TTL <= 0 {
		c.TTL = 10 * time.Minute
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 5
	}
	if c.CodeLength <= 0 || c.CodeLength > 12 {
		c.CodeLength = 6
	}
	if c.TokenTTL <= 0 {
		c.TokenTTL = 15 * time.Minute
	}
	if c.AppName == "" {
		c.AppName = "Campus Portal"
	}
	if c.Hasher == nil {
		panic("reset: Config.Hasher is required")
	}
	return c
}

type InitiateRequest struct {
	LoginID string `json:"loginId"`
}

type InitiateResult struct {
	SessionRef  string `json:"sessionRef"`
	MaskedEmail string `json:"maskedEmail"`
	TTLSeconds  int    `json:"ttlSeconds"`
}

type VerifyRequest struct {
	SessionRef  string `json:"sessionRef"`
	Code        string `json:"code"`
	NewPassword string `json:"newPassword"`
}

// Service is the forgotten-password flow: one call sends a code, one call
// redeems it together with the new password.
type Service interface {
	Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error)
	Verify(ctx context.Context, req VerifyRequest) error
}

type ServiceDeps struct {
	Sessions    SessionStore
	Directory   Directory
	Credentials CredentialStore
	Notifier    Notifier
	Config      Config
	Now         func() time.Time // defaults to time.Now
}

type service struct {
	gate
	directory   Directory
	credentials CredentialStore
	notifier    Notifier
}

func NewService(d ServiceDeps) Service {
	return &service{
		gate:        newGate(d.Sessions, d.Config, d.Now),
		directory:   d.Directory,
		credentials: d.Credentials,
		notifier:    d.Notifier,
	}
}

func (s *service) Initiate(ctx context.Context, req InitiateRequest) (*InitiateResult, error) {
	loginID := strings.TrimSpace(req.LoginID)
	if loginID == "" {
		return nil, fmt.Errorf("loginId required: %w", domain.ErrBadRequest)
	}

	entry, err := s.directory.Resolve(ctx, loginID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, fmt.Errorf("resolve login id: %w", err)
	}
	if err != nil || entry.Email == "" {
		return s.decoy(ctx, loginID)
	}

	code, err := generateCode(s.cfg.CodeLength)
	if err != nil {
		return nil, err
	}
	ref, err := id.NewRef()
	if err != nil {
		return nil, err
	}
	hash, err := s.cfg.Hasher.Hash(ref, code)
	if err != nil {
		return nil, fmt.Errorf("hash reset code: %w", err)
	}

	now := s.now().UTC()
	sess := &domain.ResetSession{
		SessionRef: ref,
		UserID:     entry.UserID,
		Email:      entry.Email,
		CodeHash:   hash,
		Attempts:   0,
		CreatedAt:  now,
		ExpiresAt:  now.Add(s.cfg.TTL),
		PurgeAt:    now.Add(s.cfg.TTL + s.cfg.RetentionGrace).Unix(),
	}
	if err := s.sessions.Create(ctx, sess); err != nil {
		return nil, fmt.Errorf("create reset session: %w", err)
	}
	slog.Info("reset session created", "session_ref", ref, "user_id", entry.UserID)

	subject, body := s.message(entry.Name, code)
	if err := s.notifier.Send(ctx, entry.Email, subject, body); err != nil {
		// The session stays in place and expires on its own.
		slog.Warn("reset code delivery failed", "session_ref", ref, "user_id", entry.UserID, "err", err)
		return nil, fmt.Errorf("send reset code: %v: %w", err, domain.ErrDeliveryFailed)
	}

	return &InitiateResult{
		SessionRef:  ref,
		MaskedEmail: MaskEmail(entry.Email),
		TTLSeconds:  s.ttlSeconds(),
	}, nil
}

func (s *service) Verify(ctx context.Context, req VerifyRequest) error {
	ref := strings.TrimSpace(req.SessionRef)
	code := strings.TrimSpace(req.Code)
	if ref == "" || code == "" || req.NewPassword == "" {
		return fmt.Errorf("sessionRef, code and newPassword required: %w", domain.ErrBadRequest)
	}
	if err := checkPassword(req.NewPassword); err != nil {
		return err
	}
	if !validCode(code, s.cfg.CodeLength) {
		return fmt.Errorf("code must be %d digits: %w", s.cfg.CodeLength, domain.ErrBadRequest)
	}

	if _, err := s.check(ctx, ref, code); err != nil {
		return err
	}

	taken, err := s.take(ctx, ref)
	if err != nil {
		return err
	}
	if err := s.credentials.SetPassword(ctx, taken.UserID, req.NewPassword); err != nil {
		slog.Error("password update failed", "session_ref", ref, "user_id", taken.UserID, "err", err)
		s.restore(ctx, taken)
		return fmt.Errorf("set password: %v: %w", err, domain.ErrMutationFailed)
	}

	slog.Info("password reset completed", "session_ref", ref, "user_id", taken.UserID)
	return nil
}

// decoy answers a request for an unknown login ID with the same shape as a
// real one. Nothing is stored and nothing is sent.
func (s *service) decoy(ctx context.Context, loginID string) (*InitiateResult, error) {
	slog.Info("reset requested for unknown login id", "login_id", loginID)
	if err := sleepJitter(ctx, s.cfg.EnumerationDelay); err != nil {
		return nil, err
	}
	ref, err := id.NewRef()
	if err != nil {
		return nil, err
	}
	addr := strings.ToLower(loginID)
	if !strings.Contains(addr, "@") && s.cfg.EmailDomain != "" {
		addr += "@" + s.cfg.EmailDomain
	}
	return &InitiateResult{
		SessionRef:  ref,
		MaskedEmail: MaskEmail(addr),
		TTLSeconds:  s.ttlSeconds(),
	}, nil
}

func (s *service) message(name, code string) (subject, body string) {
	greeting := "Hello"
	if name != "" {
		greeting += " " + name
	}
	subject = s.cfg.AppName + " Password Reset Code"
	body = fmt.Sprintf("%s,\n\nYour code for resetting the %s password is: %s\n\n"+
		"This code will expire in %d minutes. If you did not request this, you can ignore this email.\n\n%s\n",
		greeting, s.cfg.AppName, code, int(s.cfg.TTL/time.Minute), s.cfg.AppName)
	return subject, body
}

func (s *service) ttlSeconds() int {
	return int(s.cfg.TTL / time.Second)
}

// gate holds the code-checking half of the protocol shared by both flows.
type gate struct {
	sessions SessionStore
	cfg      Config
	now      func() time.Time
}

func newGate(sessions SessionStore, cfg Config, now func() time.Time) gate {
	if now == nil {
		now = time.Now
	}
	return gate{sessions: sessions, cfg: cfg.withDefaults(), now: now}
}

// check loads the session, reserves one attempt and only then compares the
// code, so at most MaxAttempts comparisons ever run against one session.
// Expired and locked-out sessions are deleted.
func (g *gate) check(ctx context.Context, ref, code string) (*domain.ResetSession, error) {
	sess, err := g.sessions.Get(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errSessionGone
		}
		return nil, fmt.Errorf("load reset session: %w", err)
	}

	if sess.Expired(g.now()) {
		g.discard(ctx, ref)
		return nil, fmt.Errorf("reset session expired: %w", domain.ErrExpired)
	}

	attempts, err := g.sessions.IncrementAttempts(ctx, ref, g.cfg.MaxAttempts)
	switch {
	case errors.Is(err, domain.ErrLockedOut):
		g.discard(ctx, ref)
		return nil, fmt.Errorf("too many attempts: %w", domain.ErrLockedOut)
	case errors.Is(err, domain.ErrNotFound):
		return nil, errSessionGone
	case err != nil:
		return nil, fmt.Errorf("reserve attempt: %w", err)
	}

	ok, err := g.cfg.Hasher.Verify(ref, code, sess.CodeHash)
	if err != nil {
		return nil, fmt.Errorf("compare reset code: %w", err)
	}
	if ok {
		return sess, nil
	}

	if attempts >= g.cfg.MaxAttempts {
		g.discard(ctx, ref)
		slog.Warn("reset session locked out", "session_ref", ref, "user_id", sess.UserID)
		return nil, fmt.Errorf("too many attempts: %w", domain.ErrLockedOut)
	}
	return nil, fmt.Errorf("incorrect code: %w", domain.ErrInvalidCode)
}

// take claims the session for the single caller allowed to redeem it.
func (g *gate) take(ctx context.Context, ref string) (*domain.ResetSession, error) {
	sess, err := g.sessions.Take(ctx, ref)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, errSessionGone
		}
		return nil, fmt.Errorf("consume reset session: %w", err)
	}
	return sess, nil
}

// restore puts back a taken session after the step that needed it failed.
// The attempt reserved by the matching call is handed back. The write runs
// detached from ctx so a cancelled request cannot lose the session.
func (g *gate) restore(ctx context.Context, sess *domain.ResetSession) {
	back := *sess
	if back.Attempts > 0 {
		back.Attempts--
	}
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := g.sessions.Create(ctx, &back); err != nil {
		slog.Error("could not restore reset session", "session_ref", sess.SessionRef, "err", err)
	}
}

func (g *gate) discard(ctx context.Context, ref string) {
	ctx, cancel := detached(ctx)
	defer cancel()
	if err := g.sessions.Delete(ctx, ref); err != nil {
		slog.Warn("failed to delete reset session", "session_ref", ref, "err", err)
	}
}

// detached keeps ctx's values but not its cancellation.
func detached(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
}

func checkPassword(pw string) error {
	if len(pw) < MinPasswordLength {
		return fmt.Errorf("password must be at least %d characters: %w", MinPasswordLength, domain.ErrBadRequest)
	}
	if len(pw) > MaxPasswordLength {
		return fmt.Errorf("password must be at most %d bytes: %w", MaxPasswordLength, domain.ErrBadRequest)
	}
	return nil
}

// sleepJitter waits a random duration in [max/2, max] unless ctx ends first.
func sleepJitter(ctx context.Context, max time.Duration) error {
	if max <= 0 {
		return nil
	}
	half := int64(max / 2)
	n, err := rand.Int(rand.Reader, big.NewInt(half+1))
	if err != nil {
		return err
	}
	timer := time.NewTimer(time.Duration(half + n.Int64()))
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
