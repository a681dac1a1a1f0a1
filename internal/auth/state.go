package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v4"
	"github.com/google/uuid"
)

// StateCookieName holds the signed OAuth state between redirect and callback.
const StateCookieName = "hermes_oauth_state"

const defaultStateTTL = 10 * time.Minute

type stateClaims struct {
	jwt.RegisteredClaims
	Provider string `json:"provider"`
}

// StateSigner issues and checks the OAuth state parameter. The state is an
// HS256 JWT bound to a provider, so a callback for one provider cannot
// reuse a state issued for another.
type StateSigner struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewStateSigner returns a signer using secret. ttl <= 0 selects ten minutes.
func NewStateSigner(secret string, ttl time.Duration) (*StateSigner, error) {
	if secret == "" {
		return nil, errors.New("state secret is empty")
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &StateSigner{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// TTL is how long an issued state stays valid.
func (s *StateSigner) TTL() time.Duration {
	return s.ttl
}

// Issue returns a fresh signed state for provider.
func (s *StateSigner) Issue(provider string) (string, error) {
	now := s.now()
	claims := stateClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
		Provider: provider,
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Verify checks that state is unexpired, signed by this signer and issued
// for provider.
func (s *StateSigner) Verify(state, provider string) error {
	keyFunc := func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrInvalidKey
		}
		return s.secret, nil
	}
	parser := jwt.NewParser(jwt.WithoutClaimsValidation())
	token, err := parser.ParseWithClaims(state, &stateClaims{}, keyFunc)
	if err != nil {
		return fmt.Errorf("invalid state: %w", err)
	}
	if !token.Valid {
		return errors.New("invalid state")
	}
	claims, ok := token.Claims.(*stateClaims)
	if !ok {
		return errors.New("invalid state claims")
	}
	if claims.ExpiresAt == nil || !claims.ExpiresAt.After(s.now()) {
		return errors.New("state expired")
	}
	if claims.Provider != provider {
		return fmt.Errorf("state issued for %q", claims.Provider)
	}
	return nil
}
