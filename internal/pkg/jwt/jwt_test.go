package jwt

import (
	"encoding/base64"
	"strings"
	"testing"
	"time"

	gojwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := LoadAndBuild(Config{Secret: testSecret, Issuer: "test", TTL: 7 * 24 * time.Hour})
	require.NoError(t, err)
	return m
}

func TestGenerateAndVerify(t *testing.T) {
	m := newTestManager(t)

	token, jti, expiresAt, err := m.Generator.Generate("01HUSER", "a@b.com", "USER")
	require.NoError(t, err)
	assert.NotEmpty(t, jti)
	assert.WithinDuration(t, time.Now().Add(7*24*time.Hour), expiresAt, time.Minute)

	claims, ok := m.Verifier.VerifyToken(token)
	require.True(t, ok)
	assert.Equal(t, "01HUSER", claims.UserID)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, "USER", claims.Role)
	assert.Equal(t, jti, claims.ID)
	assert.False(t, claims.IsAdmin())
}

func TestVerifyTokenFailsClosed(t *testing.T) {
	m := newTestManager(t)
	token, _, _, err := m.Generator.Generate("01HUSER", "a@b.com", "ADMIN")
	require.NoError(t, err)

	other, err := LoadAndBuild(Config{Secret: strings.Repeat("x", 32), Issuer: "test"})
	require.NoError(t, err)

	expiredGen := NewGenerator([]byte(testSecret), "test", time.Hour)
	expiredGen.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, _, _, err := expiredGen.Generate("01HUSER", "a@b.com", "USER")
	require.NoError(t, err)

	wrongIssuer, _, _, err := NewGenerator([]byte(testSecret), "someone-else", time.Hour).Generate("01HUSER", "a@b.com", "USER")
	require.NoError(t, err)

	unsigned, err := gojwt.NewWithClaims(gojwt.SigningMethodNone, &Claims{UserID: "01HUSER"}).
		SignedString(gojwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	parts := strings.Split(token, ".")
	forged := base64.RawURLEncoding.EncodeToString([]byte(`{"userId":"01HEVIL","role":"ADMIN","jti":"x","iss":"test","exp":4102444800}`))
	tampered := parts[0] + "." + forged + "." + parts[2]

	tests := []struct {
		name     string
		verifier *Verifier
		token    string
	}{
		{"empty", m.Verifier, ""},
		{"garbage", m.Verifier, "not-a-token"},
		{"tampered", m.Verifier, tampered},
		{"wrong secret", other.Verifier, token},
		{"expired", m.Verifier, expired},
		{"wrong issuer", m.Verifier, wrongIssuer},
		{"alg none", m.Verifier, unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, ok := tt.verifier.VerifyToken(tt.token)
			assert.False(t, ok)
			assert.Nil(t, claims)
		})
	}
}

func TestLoadAndBuildRejectsShortSecret(t *testing.T) {
	_, err := LoadAndBuild(Config{Secret: "short"})
	assert.Error(t, err)
}
