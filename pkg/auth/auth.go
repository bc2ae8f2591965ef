// Package auth authorizes callers of the invocation endpoint: the scheduler with a shared
// service key, and users previewing a flow with an HS256 JWT.
package auth

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "autoflow"

// MembershipChecker answers whether a user belongs to a tenant.
type MembershipChecker interface {
	IsTenantMember(ctx context.Context, userID, tenantID string) (bool, error)
}

// Claims are the claims carried by user tokens. The subject is the user id.
type Claims struct {
	jwt.RegisteredClaims
}

type Authorizer struct {
	logger     *slog.Logger
	serviceKey []byte
	secret     []byte
	members    MembershipChecker
}

// NewAuthorizer builds an authorizer. An empty serviceKey rejects every batch call and
// an empty jwtSecret rejects every user token.
func NewAuthorizer(logger *slog.Logger, serviceKey, jwtSecret string, members MembershipChecker) *Authorizer {
	return &Authorizer{
		logger:     logger.With("module", "auth"),
		serviceKey: []byte(serviceKey),
		secret:     []byte(jwtSecret),
		members:    members,
	}
}

// BearerToken extracts the token from an Authorization header value.
func BearerToken(header string) string {
	scheme, token, found := strings.Cut(strings.TrimSpace(header), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}

	return strings.TrimSpace(token)
}

// AuthorizeService checks the Authorization header carries the service key.
func (a *Authorizer) AuthorizeService(header string) error {
	token := BearerToken(header)
	if token == "" {
		return unauthorized("missing bearer token")
	}

	if len(a.serviceKey) == 0 || subtle.ConstantTimeCompare([]byte(token), a.serviceKey) != 1 {
		return unauthorized("invalid service key")
	}

	return nil
}

// AuthenticateUser validates a user token and returns its subject.
func (a *Authorizer) AuthenticateUser(header string) (string, error) {
	raw := BearerToken(header)
	if raw == "" {
		return "", unauthorized("missing bearer token")
	}

	if len(a.secret) == 0 {
		return "", unauthorized("user tokens are not accepted")
	}

	claims := &Claims{}

	token, err := jwt.ParseWithClaims(raw, claims, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}

		return a.secret, nil
	}, jwt.WithIssuer(issuer), jwt.WithExpirationRequired())
	if err != nil {
		return "", &AuthorizationError{Reason: err.Error(), Err: ErrUnauthorized}
	}

	if !token.Valid || claims.Subject == "" {
		return "", unauthorized("token has no subject")
	}

	return claims.Subject, nil
}

// RequireMember returns ErrForbidden unless userID belongs to tenantID.
func (a *Authorizer) RequireMember(ctx context.Context, userID, tenantID string) error {
	if a.members == nil {
		return forbidden("membership is not configured")
	}

	member, err := a.members.IsTenantMember(ctx, userID, tenantID)
	if err != nil {
		return fmt.Errorf("failed to check tenant membership: %w", err)
	}

	if !member {
		a.logger.InfoContext(ctx, "user is not a tenant member", "user_id", userID, "tenant_id", tenantID)

		return forbidden("user is not a member of the tenant")
	}

	return nil
}

// IssueToken signs a user token valid for ttl.
func (a *Authorizer) IssueToken(userID string, ttl time.Duration) (string, error) {
	if len(a.secret) == 0 {
		return "", errors.New("jwt secret is not configured")
	}

	now := time.Now()
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
}
