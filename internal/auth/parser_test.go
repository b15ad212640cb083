package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sign(t *testing.T, secret string, method jwt.SigningMethod, exp time.Time) string {
	t.Helper()
	claims := Claims{
		UserID: "u-1",
		Role:   "operator",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(exp),
		},
	}
	token, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func TestParser(t *testing.T) {
	p := NewParser("secret")

	claims, err := p.Parse(sign(t, "secret", jwt.SigningMethodHS256, time.Now().Add(time.Hour)))
	require.NoError(t, err)
	assert.Equal(t, "u-1", claims.UserID)
	assert.Equal(t, "operator", claims.Role)

	testCases := []struct {
		name  string
		token string
	}{
		{name: "wrong secret", token: sign(t, "other", jwt.SigningMethodHS256, time.Now().Add(time.Hour))},
		{name: "expired", token: sign(t, "secret", jwt.SigningMethodHS256, time.Now().Add(-time.Hour))},
		{name: "wrong method", token: sign(t, "secret", jwt.SigningMethodHS512, time.Now().Add(time.Hour))},
		{name: "garbage", token: "not-a-token"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := p.Parse(tc.token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrInvalidToken))
		})
	}
}
