package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"aercd/internal/util"
	"aercd/pkg/domain"
)

const defaultJWTIssuer = "aercd-site"

// JWTSessionStore carries the serialized user inside an HS256 token.
// Logout revokes the token id until it would have expired.
type JWTSessionStore struct {
	secret  []byte
	ttl     time.Duration
	issuer  string
	revoker TokenRevoker
}

type sessionClaims struct {
	Name       string          `json:"name"`
	Email      string          `json:"email"`
	Role       domain.UserRole `json:"role"`
	Department string          `json:"department,omitempty"`
	jwt.RegisteredClaims
}

// NewJWTSessionStore builds a stateless session store. A nil revoker falls
// back to an in-memory one.
func NewJWTSessionStore(secret string, ttl time.Duration, revoker TokenRevoker) (*JWTSessionStore, error) {
	if len(strings.TrimSpace(secret)) < 16 {
		return nil, errors.New("jwt session secret must be at least 16 characters")
	}
	if ttl <= 0 {
		return nil, errors.New("jwt session ttl must be positive")
	}
	if revoker == nil {
		revoker = NewMemoryTokenRevoker()
	}
	return &JWTSessionStore{
		secret:  []byte(secret),
		ttl:     ttl,
		issuer:  defaultJWTIssuer,
		revoker: revoker,
	}, nil
}

// NewSession signs a token for the user.
func (s *JWTSessionStore) NewSession(_ context.Context, user domain.User) (string, error) {
	now := time.Now().UTC()
	claims := sessionClaims{
		Name:       user.Name,
		Email:      user.Email,
		Role:       user.Role,
		Department: user.Department,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			Issuer:    s.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			ID:        util.NewID(),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// GetUser validates the token and returns the embedded user. Invalid, expired
// or revoked tokens resolve to no user.
func (s *JWTSessionStore) GetUser(ctx context.Context, token string) (domain.User, bool, error) {
	claims, err := s.parse(token)
	if err != nil {
		return domain.User{}, false, nil
	}
	revoked, err := s.revoker.IsRevoked(ctx, claims.ID)
	if err != nil {
		return domain.User{}, false, fmt.Errorf("check revocation: %w", err)
	}
	if revoked {
		return domain.User{}, false, nil
	}
	return domain.User{
		ID:         claims.Subject,
		Name:       claims.Name,
		Email:      claims.Email,
		Role:       claims.Role,
		Department: claims.Department,
	}, true, nil
}

// DeleteSession revokes the token id; tokens that no longer validate are ignored.
func (s *JWTSessionStore) DeleteSession(ctx context.Context, token string) error {
	claims, err := s.parse(token)
	if err != nil {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	return s.revoker.Revoke(ctx, claims.ID, ttl)
}

func (s *JWTSessionStore) parse(token string) (*sessionClaims, error) {
	claims := &sessionClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return s.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(s.issuer),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, err
	}
	if claims.ID == "" || claims.Subject == "" {
		return nil, errors.New("token missing id or subject")
	}
	return claims, nil
}
