package reset

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"
)

// Hasher turns a reset code into the digest stored with its session. The
// session ref is bound into the digest so a hash is only valid for its own session.
type Hasher interface {
	Hash(ref, code string) (string, error)
	Verify(ref, code, hash string) (bool, error)
}

type hmacHasher struct {
	secret []byte
}

// NewHMACHasher keys an HMAC-SHA256 digest with a server-side secret.
func NewHMACHasher(secret string) (Hasher, error) {
	if len(secret) < 16 {
		return nil, errors.New("otp hash secret must be at least 16 bytes")
	}
	return &hmacHasher{secret: []byte(secret)}, nil
}

func (h *hmacHasher) Hash(ref, code string) (string, error) {
	return hex.EncodeToString(h.sum(ref, code)), nil
}

func (h *hmacHasher) Verify(ref, code, hash string) (bool, error) {
	stored, err := hex.DecodeString(hash)
	if err != nil {
		return false, fmt.Errorf("decode code hash: %w", err)
	}
	return hmac.Equal(h.sum(ref, code), stored), nil
}

func (h *hmacHasher) sum(ref, code string) []byte {
	mac := hmac.New(sha256.New, h.secret)
	mac.Write([]byte(ref))
	mac.Write([]byte{':'})
	mac.Write([]byte(code))
	return mac.Sum(nil)
}

type bcryptHasher struct {
	cost int
}

// NewBcryptHasher stores codes as bcrypt digests. Slower than HMAC but needs no shared secret.
func NewBcryptHasher(cost int) Hasher {
	if cost < bcrypt.MinCost {
		cost = bcrypt.DefaultCost
	}
	return &bcryptHasher{cost: cost}
}

func (h *bcryptHasher) Hash(ref, code string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(ref+":"+code), h.cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (h *bcryptHasher) Verify(ref, code, hash string) (bool, error) {
	err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(ref+":"+code))
	if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// generateCode returns a uniformly random numeric code of exactly n digits.
func generateCode(n int) (string, error) {
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(n)), nil)
	v, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("generate reset code: %w", err)
	}
	return fmt.Sprintf("%0*d", n, v.Int64()), nil
}

func validCode(code string, n int) bool {
	if len(code) != n {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
