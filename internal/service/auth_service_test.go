package service

import (
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/dispatch-api/internal/models"
	appErrors "github.com/noah-isme/dispatch-api/pkg/errors"
)

func signTestToken(t *testing.T, secret string, claims *models.JWTClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func validClaims(role models.UserRole) *models.JWTClaims {
	now := time.Now()
	return &models.JWTClaims{
		UserID: "user-1",
		Role:   role,
		Email:  "user@example.com",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    "accounts",
			Audience:  jwt.ClaimStrings{"dispatch"},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour)),
		},
	}
}

func TestAuthServiceValidateToken(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "accounts", Audience: []string{"dispatch"}})

	claims, err := svc.ValidateToken(signTestToken(t, "secret", validClaims(models.RoleWorker)))
	require.NoError(t, err)
	assert.Equal(t, "user-1", claims.UserID)
	assert.Equal(t, models.RoleWorker, claims.Actor().Role)
}

func TestAuthServiceRejectsBadTokens(t *testing.T) {
	svc := NewAuthService(nil, AuthConfig{AccessTokenSecret: "secret", Issuer: "accounts", Audience: []string{"dispatch"}})

	expired := validClaims(models.RoleCustomer)
	expired.ExpiresAt = jwt.NewNumericDate(time.Now().Add(-time.Minute))

	wrongIssuer := validClaims(models.RoleCustomer)
	wrongIssuer.Issuer = "someone-else"

	unknownRole := validClaims(models.UserRole("DISPATCHER"))

	cases := map[string]string{
		"wrong secret": signTestToken(t, "other", validClaims(models.RoleAdmin)),
		"expired":      signTestToken(t, "secret", expired),
		"wrong issuer": signTestToken(t, "secret", wrongIssuer),
		"unknown role": signTestToken(t, "secret", unknownRole),
		"garbage":      "not-a-token",
	}
	for name, token := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ValidateToken(token)
			require.Error(t, err)
			assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
		})
	}
}
