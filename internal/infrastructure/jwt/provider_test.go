package jwtinfra

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/campus-identity/internal/config"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeKeys(t *testing.T) *config.Config {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	pubDER, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	require.NoError(t, err)

	dir := t.TempDir()
	priv := filepath.Join(dir, "private_key.pem")
	pub := filepath.Join(dir, "public_key.pem")
	require.NoError(t, os.WriteFile(priv, pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)}), 0o600))
	require.NoError(t, os.WriteFile(pub, pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: pubDER}), 0o600))

	return &config.Config{JWTPrivateKeyPath: priv, JWTPublicKeyPath: pub, JWTExpiry: time.Hour}
}

func TestProvider_SignVerify(t *testing.T) {
	p, err := NewProvider(writeKeys(t))
	require.NoError(t, err)

	tok, err := p.Sign("u1", "123456", "STUDENT")
	require.NoError(t, err)

	claims, err := p.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, "u1", claims.UserID)
	assert.Equal(t, "123456", claims.LoginID)
	assert.Equal(t, "STUDENT", claims.Role)
	assert.Equal(t, time.Hour, p.Expiry())
}

func TestProvider_RejectsTampered(t *testing.T) {
	p, err := NewProvider(writeKeys(t))
	require.NoError(t, err)
	tok, err := p.Sign("u1", "123456", "STUDENT")
	require.NoError(t, err)

	parts := strings.Split(tok, ".")
	parts[2] = strings.Repeat("A", len(parts[2]))
	_, err = p.Verify(strings.Join(parts, "."))
	assert.Error(t, err)
}

func TestProvider_RejectsHMACToken(t *testing.T) {
	p, err := NewProvider(writeKeys(t))
	require.NoError(t, err)

	hs, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{UserID: "u1", Role: "ADMIN"}).SignedString([]byte("secret"))
	require.NoError(t, err)
	_, err = p.Verify(hs)
	assert.Error(t, err)
}

func TestNewProvider_MissingKey(t *testing.T) {
	_, err := NewProvider(&config.Config{JWTPrivateKeyPath: "/nonexistent.pem"})
	assert.ErrorContains(t, err, "read private key")
}
