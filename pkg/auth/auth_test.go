package auth_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/dukex/autoflow/pkg/auth"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type members map[string]bool

func (m members) IsTenantMember(_ context.Context, userID, tenantID string) (bool, error) {
	if userID == "broken" {
		return false, errors.New("store down")
	}

	return m[userID+"/"+tenantID], nil
}

func newAuthorizer() *auth.Authorizer {
	return auth.NewAuthorizer(slog.Default(), "service-key", "jwt-secret", members{"user-1/tenant-1": true})
}

func TestBearerToken(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "abc", auth.BearerToken("Bearer abc"))
	assert.Equal(t, "abc", auth.BearerToken("bearer  abc "))
	assert.Empty(t, auth.BearerToken("Basic abc"))
	assert.Empty(t, auth.BearerToken(""))
}

func TestAuthorizeService(t *testing.T) {
	t.Parallel()

	a := newAuthorizer()

	require.NoError(t, a.AuthorizeService("Bearer service-key"))

	err := a.AuthorizeService("Bearer wrong")
	require.Error(t, err)
	assert.True(t, auth.IsUnauthorized(err))

	err = a.AuthorizeService("")
	assert.True(t, auth.IsUnauthorized(err))

	empty := auth.NewAuthorizer(slog.Default(), "", "", nil)
	assert.True(t, auth.IsUnauthorized(empty.AuthorizeService("Bearer ")))
}

func TestRequireMember(t *testing.T) {
	t.Parallel()

	a := newAuthorizer()
	ctx := context.Background()

	token, err := a.IssueToken("user-1", time.Hour)
	require.NoError(t, err)

	userID, err := a.AuthenticateUser("Bearer " + token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", userID)

	require.NoError(t, a.RequireMember(ctx, userID, "tenant-1"))

	err = a.RequireMember(ctx, userID, "tenant-2")
	require.Error(t, err)
	assert.True(t, auth.IsForbidden(err))

	err = a.RequireMember(ctx, "broken", "tenant-1")
	require.Error(t, err)
	assert.False(t, auth.IsForbidden(err))
	assert.False(t, auth.IsUnauthorized(err))

	unconfigured := auth.NewAuthorizer(slog.Default(), "service-key", "jwt-secret", nil)
	assert.True(t, auth.IsForbidden(unconfigured.RequireMember(ctx, userID, "tenant-1")))
}

func TestAuthenticateUser_RejectsBadTokens(t *testing.T) {
	t.Parallel()

	a := newAuthorizer()

	expired, err := a.IssueToken("user-1", -time.Minute)
	require.NoError(t, err)

	other := auth.NewAuthorizer(slog.Default(), "", "other-secret", nil)
	foreign, err := other.IssueToken("user-1", time.Hour)
	require.NoError(t, err)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{
		Issuer:    "autoflow",
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{name: "missing", header: ""},
		{name: "garbage", header: "Bearer not-a-jwt"},
		{name: "expired", header: "Bearer " + expired},
		{name: "wrong secret", header: "Bearer " + foreign},
		{name: "alg none", header: "Bearer " + unsigned},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := a.AuthenticateUser(tt.header)
			require.Error(t, err)
			assert.True(t, auth.IsUnauthorized(err))
		})
	}
}
