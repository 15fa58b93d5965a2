package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	ErrInvalidToken        = errors.New("invalid token")
	ErrExpiredToken        = errors.New("token has expired")
	ErrInvalidScope        = errors.New("invalid token scope")
	ErrTokenSigningFailed  = errors.New("failed to sign token")
	ErrInvalidSecretLength = errors.New("token secret must be at least 32 characters")
)

// MinSecretLength is the shortest accepted HMAC secret.
const MinSecretLength = 32

// Config holds token issuing configuration.
type Config struct {
	// Secret is the HMAC signing key. Must be at least 32 characters.
	Secret string

	// Issuer is the token issuer claim. Default: "resolvd"
	Issuer string

	// TokenDuration is the lifetime of issued tokens. Default: 24 hours.
	TokenDuration time.Duration
}

// Service issues and validates RPC tokens.
type Service struct {
	config Config
}

// Token is an issued token and its expiry.
type Token struct {
	Token     string    `json:"token" yaml:"token"`
	TokenType string    `json:"token_type" yaml:"token_type"`
	Subject   string    `json:"subject" yaml:"subject"`
	Scope     Scope     `json:"scope" yaml:"scope"`
	ExpiresAt time.Time `json:"expires_at" yaml:"expires_at"`
}

// NewService creates a token service.
func NewService(config Config) (*Service, error) {
	if len(config.Secret) < MinSecretLength {
		return nil, ErrInvalidSecretLength
	}
	if config.Issuer == "" {
		config.Issuer = "resolvd"
	}
	if config.TokenDuration == 0 {
		config.TokenDuration = 24 * time.Hour
	}
	return &Service{config: config}, nil
}

// Issue signs a token for subject with the given scope. A zero ttl uses the
// configured duration.
func (s *Service) Issue(subject string, scope Scope, ttl time.Duration) (*Token, error) {
	if !scope.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidScope, scope)
	}
	if ttl <= 0 {
		ttl = s.config.TokenDuration
	}

	now := time.Now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Scope: scope,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return nil, ErrTokenSigningFailed
	}

	return &Token{
		Token:     signed,
		TokenType: "Bearer",
		Subject:   subject,
		Scope:     scope,
		ExpiresAt: expiresAt,
	}, nil
}

// Validate checks the signature, issuer, expiry and scope of a token.
func (s *Service) Validate(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.config.Issuer))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}
	if !claims.Scope.Valid() {
		return nil, ErrInvalidScope
	}
	return claims, nil
}

// TokenDuration returns the configured token lifetime.
func (s *Service) TokenDuration() time.Duration {
	return s.config.TokenDuration
}
