// Package auth issues and validates the HS256 access tokens that gate the
// websocket and HTTP surfaces.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultTokenTTL = 12 * time.Hour

var (
	// ErrTokenInvalid covers every validation failure so callers cannot
	// distinguish forged from expired tokens.
	ErrTokenInvalid = errors.New("auth: token invalid")

	errMissingSigningSecret = errors.New("auth: signing secret must be provided")
	errMissingUserID        = errors.New("auth: user id must be provided")
)

// Identity is the authenticated principal carried by a token.
type Identity struct {
	UserID      string
	DisplayName string
}

type accessClaims struct {
	DisplayName string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// TokenServiceConfig configures the token service.
type TokenServiceConfig struct {
	SigningSecret []byte
	Issuer        string
	Audience      string
	TokenTTL      time.Duration
	Clock         func() time.Time
}

// TokenService signs and verifies access tokens.
type TokenService struct {
	config TokenServiceConfig
	clock  func() time.Time
}

// NewTokenService constructs a TokenService with sane defaults.
func NewTokenService(cfg TokenServiceConfig) *TokenService {
	ttl := cfg.TokenTTL
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}
	return &TokenService{
		config: TokenServiceConfig{
			SigningSecret: cfg.SigningSecret,
			Issuer:        cfg.Issuer,
			Audience:      cfg.Audience,
			TokenTTL:      ttl,
			Clock:         clock,
		},
		clock: clock,
	}
}

// Issue produces a signed token and its expiry in seconds for the identity.
func (s *TokenService) Issue(identity Identity) (string, int64, error) {
	if len(s.config.SigningSecret) == 0 {
		return "", 0, errMissingSigningSecret
	}
	if identity.UserID == "" {
		return "", 0, errMissingUserID
	}

	now := s.clock().UTC()
	expiresAt := now.Add(s.config.TokenTTL).UTC()

	claims := accessClaims{
		DisplayName: identity.DisplayName,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.UserID,
			Issuer:    s.config.Issuer,
			Audience:  []string{s.config.Audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.config.SigningSecret)
	if err != nil {
		return "", 0, err
	}
	return signed, int64(expiresAt.Sub(now).Seconds()), nil
}

// Validate checks the token and returns the identity it carries.
func (s *TokenService) Validate(tokenString string) (Identity, error) {
	if len(s.config.SigningSecret) == 0 {
		return Identity{}, errMissingSigningSecret
	}

	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(
		tokenString,
		claims,
		func(token *jwt.Token) (interface{}, error) {
			if token.Method.Alg() != jwt.SigningMethodHS256.Alg() {
				return nil, fmt.Errorf("unexpected signing algorithm: %s", token.Method.Alg())
			}
			return s.config.SigningSecret, nil
		},
		jwt.WithAudience(s.config.Audience),
		jwt.WithIssuer(s.config.Issuer),
		jwt.WithTimeFunc(s.clock),
	)
	if err != nil {
		return Identity{}, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}
	if claims.Subject == "" {
		return Identity{}, fmt.Errorf("%w: missing subject", ErrTokenInvalid)
	}
	return Identity{UserID: claims.Subject, DisplayName: claims.DisplayName}, nil
}
