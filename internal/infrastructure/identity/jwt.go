package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/garyjia/procure-approval/internal/application/port"
	"github.com/garyjia/procure-approval/internal/domain/authz"
)

// Claims carries the portal identity. Role codes are the portal's own.
type Claims struct {
	Role   string `json:"role"`
	Master bool   `json:"master,omitempty"`
	jwt.RegisteredClaims
}

// JWTResolver issues and resolves HS256 session tokens
type JWTResolver struct {
	signingKey []byte
	issuer     string
	audience   string
	now        func() time.Time
}

// NewJWTResolver creates a resolver for tokens signed with signingKey
func NewJWTResolver(signingKey, issuer, audience string) *JWTResolver {
	return &JWTResolver{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
		now:        time.Now,
	}
}

// Issue signs a token for the identity
func (s *JWTResolver) Issue(id authz.Identity, expiresIn time.Duration) (string, error) {
	if id.UserID == "" {
		return "", fmt.Errorf("user id is required")
	}
	now := s.now()
	claims := Claims{
		Role:   id.Role.String(),
		Master: id.IsMaster,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			ID:        uuid.NewString(),
		},
	}
	if s.audience != "" {
		claims.Audience = []string{s.audience}
	}

	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.signingKey)
}

// Resolve validates the token and maps its claims to an identity
func (s *JWTResolver) Resolve(ctx context.Context, token string) (authz.Identity, error) {
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
		jwt.WithExpirationRequired(),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}
	if s.audience != "" {
		opts = append(opts, jwt.WithAudience(s.audience))
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.signingKey, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return authz.Identity{}, fmt.Errorf("%w: token has expired", port.ErrUnauthenticated)
		}
		return authz.Identity{}, fmt.Errorf("%w: invalid token", port.ErrUnauthenticated)
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Subject == "" {
		return authz.Identity{}, fmt.Errorf("%w: invalid token claims", port.ErrUnauthenticated)
	}

	role, err := authz.ParseRole(claims.Role)
	if err != nil {
		return authz.Identity{}, fmt.Errorf("%w: %v", port.ErrUnauthenticated, err)
	}

	return authz.Identity{UserID: claims.Subject, Role: role, IsMaster: claims.Master}, nil
}

var _ port.IdentityResolver = (*JWTResolver)(nil)
