package domain

import "time"

// ResetSession tracks one in-flight password reset attempt.
// PK: session_ref. The OTP itself is never stored, only its keyed hash.
// PurgeAt is the storage TTL; it trails ExpiresAt so an expired session is
// still observable (and reported as expired) until it is purged.
type ResetSession struct {
	SessionRef string    `dynamodbav:"session_ref"`
	UserID     string    `dynamodbav:"user_id"`
	Email      string    `dynamodbav:"email"`
	CodeHash   string    `dynamodbav:"code_hash"`
	Attempts   int       `dynamodbav:"attempts"`
	CreatedAt  time.Time `dynamodbav:"created_at"`
	ExpiresAt  time.Time `dynamodbav:"expires_at"`
	PurgeAt    int64     `dynamodbav:"purge_at"` // TTL (Unix seconds)
}

// Expired reports whether now is strictly past the session's expiry.
func (s *ResetSession) Expired(now time.Time) bool {
	return now.After(s.ExpiresAt)
}

// Redemption marks a reset capability token as spent.
// PK: token_id.
type Redemption struct {
	TokenID string `dynamodbav:"token_id"`
	UserID  string `dynamodbav:"user_id"`
	PurgeAt int64  `dynamodbav:"purge_at"` // TTL (Unix seconds)
}
