package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/vovakirdan/stompdebug/internal/utils"
)

// ErrNoSecret is returned when issuing tokens without a signing secret.
var ErrNoSecret = errors.New("jwt secret is not configured")

// Claims identify the console user to the broker.
type Claims struct {
	FullName string `json:"full_name,omitempty"`
	jwt.RegisteredClaims
}

// JWTConfig holds JWT configuration.
type JWTConfig struct {
	Secret   []byte
	Issuer   string
	Audience string
	TTL      time.Duration
}

// Issuer mints bearer tokens that accompany the STOMP handshake.
type Issuer struct {
	cfg *JWTConfig
	now func() time.Time
}

// NewIssuer builds an issuer for cfg.
func NewIssuer(cfg *JWTConfig) *Issuer {
	return &Issuer{cfg: cfg, now: time.Now}
}

// Issue returns a signed token whose subject is userID.
func (i *Issuer) Issue(userID, fullName string) (string, error) {
	return GenerateToken(i.cfg, userID, fullName, i.now())
}

// GenerateToken creates a signed HS256 token for the given user.
func GenerateToken(cfg *JWTConfig, userID, fullName string, now time.Time) (string, error) {
	if len(cfg.Secret) == 0 {
		return "", ErrNoSecret
	}

	claims := Claims{
		FullName: fullName,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        utils.NewID(),
			Subject:   userID,
			Issuer:    cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(cfg.TTL)),
		},
	}
	if cfg.Audience != "" {
		claims.Audience = jwt.ClaimStrings{cfg.Audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(cfg.Secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken parses and validates a token issued with cfg.
func ValidateToken(cfg *JWTConfig, tokenString string) (*Claims, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if cfg.Issuer != "" {
		opts = append(opts, jwt.WithIssuer(cfg.Issuer))
	}
	if cfg.Audience != "" {
		opts = append(opts, jwt.WithAudience(cfg.Audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(*jwt.Token) (interface{}, error) {
		return cfg.Secret, nil
	}, opts...)
	if err != nil {
		return nil, fmt.Errorf("parse token: %w", err)
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token claims")
	}
	return claims, nil
}
