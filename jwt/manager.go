package jwt

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// ErrTokenInvalid is returned for any verification failure: bad signature,
// unknown or revoked key, expired claims, malformed header.
var ErrTokenInvalid = errors.New("invalid access token")

// KeySource resolves signing and verification keys. The keyring manager
// implements it; tokens referencing a revoked or retired key must fail here.
type KeySource interface {
	SignerKey(ctx context.Context) (keyID string, private ed25519.PrivateKey, err error)
	VerifierKey(ctx context.Context, keyID string) (ed25519.PublicKey, error)
}

// Config tunes access-token issuance and verification.
type Config struct {
	AccessTTL    time.Duration
	Issuer       string
	Audience     string
	Leeway       time.Duration
	RequireIAT   bool
	MaxFutureIAT time.Duration
}

// Manager signs and verifies short-lived access tokens. Every token carries
// the signing key's id in its header; verification resolves that id through
// the [KeySource] and fails closed when the key is absent, retired, or
// revoked.
type Manager struct {
	config Config
	keys   KeySource
}

// AccessClaims is the claim set minted for access tokens.
type AccessClaims struct {
	PrincipalID  string   `json:"pid"`
	Roles        []string `json:"roles,omitempty"`
	CollegeID    string   `json:"col,omitempty"`
	DepartmentID string   `json:"dept,omitempty"`
	jwt.RegisteredClaims
}

// NewManager validates the configuration and creates a token [Manager].
func NewManager(cfg Config, keys KeySource) (*Manager, error) {
	if cfg.AccessTTL <= 0 {
		return nil, errors.New("invalid TTL configuration")
	}
	if cfg.Leeway < 0 || cfg.Leeway > 2*time.Minute {
		return nil, errors.New("invalid leeway configuration")
	}
	if cfg.MaxFutureIAT == 0 {
		cfg.MaxFutureIAT = 10 * time.Minute
	}
	if cfg.MaxFutureIAT < 0 || cfg.MaxFutureIAT > 24*time.Hour {
		return nil, errors.New("invalid MaxFutureIAT configuration")
	}
	if keys == nil {
		return nil, errors.New("key source is required")
	}

	return &Manager{config: cfg, keys: keys}, nil
}

// SignAccess mints a signed access token for the claims, using the current
// signing key and stamping its id into the kid header.
func (m *Manager) SignAccess(ctx context.Context, claims AccessClaims) (string, error) {
	now := time.Now()
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(m.config.AccessTTL))
	claims.IssuedAt = jwt.NewNumericDate(now)
	if m.config.Issuer != "" {
		claims.Issuer = m.config.Issuer
	}
	if m.config.Audience != "" {
		claims.Audience = jwt.ClaimStrings{m.config.Audience}
	}

	keyID, private, err := m.keys.SignerKey(ctx)
	if err != nil {
		return "", err
	}

	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = keyID

	return token.SignedString(private)
}

// ParseAccess verifies a token and returns its claims. The kid header is
// mandatory and is resolved through the key source; any resolution failure
// is a verification failure.
func (m *Manager) ParseAccess(ctx context.Context, tokenStr string) (*AccessClaims, error) {
	options := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}),
	}
	if m.config.Leeway > 0 {
		options = append(options, jwt.WithLeeway(m.config.Leeway))
	}
	if m.config.RequireIAT {
		options = append(options, jwt.WithIssuedAt())
	}
	if m.config.Issuer != "" {
		options = append(options, jwt.WithIssuer(m.config.Issuer))
	}
	if m.config.Audience != "" {
		options = append(options, jwt.WithAudience(m.config.Audience))
	}

	parser := jwt.NewParser(options...)
	token, err := parser.ParseWithClaims(tokenStr, &AccessClaims{}, func(t *jwt.Token) (interface{}, error) {
		if t.Method.Alg() != jwt.SigningMethodEdDSA.Alg() {
			return nil, fmt.Errorf("unexpected signing algorithm: %s", t.Method.Alg())
		}

		kid, _ := t.Header["kid"].(string)
		if strings.TrimSpace(kid) == "" {
			return nil, errors.New("missing kid")
		}

		public, err := m.keys.VerifierKey(ctx, kid)
		if err != nil {
			return nil, err
		}
		return public, nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrTokenInvalid, err)
	}

	claims, ok := token.Claims.(*AccessClaims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}
	if claims.IssuedAt != nil && m.config.MaxFutureIAT > 0 {
		maxAllowed := time.Now().Add(m.config.MaxFutureIAT)
		if claims.IssuedAt.Time.After(maxAllowed) {
			return nil, fmt.Errorf("%w: iat too far in the future", ErrTokenInvalid)
		}
	}

	return claims, nil
}
