package auth_test

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"poplift/internal/auth"
)

const (
	testSecret = "test-secret"
	testUser   = "7c9e6679-7425-40de-944b-e07fc1f90ae7"
)

func TestJWTVerifier(t *testing.T) {
	v := auth.NewJWTVerifier(testSecret, "authenticated")
	ctx := context.Background()

	t.Run("valid token", func(t *testing.T) {
		token, err := auth.SignToken(testSecret, "authenticated", testUser, "owner@example.com", time.Hour)
		require.NoError(t, err)

		p, err := v.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, testUser, p.UserID)
		assert.Equal(t, "owner@example.com", p.Email)
		assert.Equal(t, "authenticated", p.Role)
	})

	t.Run("subject is lower-cased", func(t *testing.T) {
		token, err := auth.SignToken(testSecret, "authenticated", "7C9E6679-7425-40DE-944B-E07FC1F90AE7", "", time.Hour)
		require.NoError(t, err)

		p, err := v.Verify(ctx, token)
		require.NoError(t, err)
		assert.Equal(t, testUser, p.UserID)
	})

	tests := []struct {
		name  string
		token func(t *testing.T) string
	}{
		{"empty", func(t *testing.T) string { return "" }},
		{"garbage", func(t *testing.T) string { return "not.a.jwt" }},
		{"wrong secret", func(t *testing.T) string {
			tok, err := auth.SignToken("other-secret", "authenticated", testUser, "", time.Hour)
			require.NoError(t, err)
			return tok
		}},
		{"wrong audience", func(t *testing.T) string {
			tok, err := auth.SignToken(testSecret, "anon", testUser, "", time.Hour)
			require.NoError(t, err)
			return tok
		}},
		{"expired", func(t *testing.T) string {
			tok, err := auth.SignToken(testSecret, "authenticated", testUser, "", -time.Hour)
			require.NoError(t, err)
			return tok
		}},
		{"subject not a uuid", func(t *testing.T) string {
			tok, err := auth.SignToken(testSecret, "authenticated", "service_role", "", time.Hour)
			require.NoError(t, err)
			return tok
		}},
		{"no expiry", func(t *testing.T) string {
			tok, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
				Subject:  testUser,
				Audience: jwt.ClaimStrings{"authenticated"},
			}).SignedString([]byte(testSecret))
			require.NoError(t, err)
			return tok
		}},
		{"none algorithm", func(t *testing.T) string {
			tok, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
				Subject:   testUser,
				Audience:  jwt.ClaimStrings{"authenticated"},
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
			}).SignedString(jwt.UnsafeAllowNoneSignatureType)
			require.NoError(t, err)
			return tok
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := v.Verify(ctx, tt.token(t))
			assert.Error(t, err)
		})
	}
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		header string
		want   string
	}{
		{"Bearer abc.def.ghi", "abc.def.ghi"},
		{"bearer abc", "abc"},
		{"  Bearer   abc  ", "abc"},
		{"Basic dXNlcjpwYXNz", ""},
		{"Bearer", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			assert.Equal(t, tt.want, auth.ExtractBearer(tt.header))
		})
	}
}
