package store

import (
	"errors"
	"fmt"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"hausdesk/internal/util"
)

const (
	jwtIssuer   = "hausdesk-auth"
	jwtAudience = "hausdesk-api"
)

var jwtLeeway = 30 * time.Second

// JWTSessionStore issues and validates HS256 session tokens. Sign-out works
// through the revoker since JWTs cannot be deleted server-side.
type JWTSessionStore struct {
	secret  []byte
	ttl     time.Duration
	revoker TokenRevoker
}

// NewJWTSessionStore builds an HS256 session store.
func NewJWTSessionStore(secret string, ttl time.Duration, revoker TokenRevoker) (*JWTSessionStore, error) {
	if secret == "" {
		return nil, errors.New("jwt secret required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if revoker == nil {
		revoker = NewMemoryTokenRevoker()
	}
	return &JWTSessionStore{secret: []byte(secret), ttl: ttl, revoker: revoker}, nil
}

// NewSession issues a signed token for the account.
func (s *JWTSessionStore) NewSession(accountID string) (string, error) {
	now := time.Now().UTC()
	claims := jwt.RegisteredClaims{
		Subject:   accountID,
		Issuer:    jwtIssuer,
		Audience:  jwt.ClaimStrings{jwtAudience},
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		ID:        util.NewID(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("sign session token: %w", err)
	}
	return signed, nil
}

// GetAccountIDByToken resolves a token to the account it was issued for.
// Expired, malformed, or revoked tokens resolve to (_, false, nil).
func (s *JWTSessionStore) GetAccountIDByToken(token string) (string, bool, error) {
	claims, ok := s.parse(token)
	if !ok {
		return "", false, nil
	}
	revoked, err := s.revoker.IsRevoked(token)
	if err != nil {
		return "", false, err
	}
	if revoked {
		return "", false, nil
	}
	return claims.Subject, true, nil
}

// DeleteSession revokes the token for the remainder of its lifetime.
func (s *JWTSessionStore) DeleteSession(token string) error {
	claims, ok := s.parse(token)
	if !ok {
		return nil
	}
	ttl := time.Until(claims.ExpiresAt.Time)
	return s.revoker.Revoke(token, ttl)
}

func (s *JWTSessionStore) parse(token string) (*jwt.RegisteredClaims, bool) {
	claims := &jwt.RegisteredClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return s.secret, nil
		},
		jwt.WithIssuer(jwtIssuer),
		jwt.WithAudience(jwtAudience),
		jwt.WithLeeway(jwtLeeway),
		jwt.WithExpirationRequired(),
	)
	if err != nil || !parsed.Valid {
		return nil, false
	}
	return claims, true
}
