package auth

import (
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mirror-control/mcc/internal/config"
)

// ErrInvalidToken is returned for every token that fails verification.
var ErrInvalidToken = errors.New("invalid token")

// Verifier checks signed JWTs. HS256 uses a shared secret, RS256 a PEM
// encoded public key.
type Verifier struct {
	algorithm string
	secret    []byte
	publicKey *rsa.PublicKey
}

// NewVerifier builds a verifier from the auth configuration.
func NewVerifier(cfg config.AuthConfig) (*Verifier, error) {
	v := &Verifier{algorithm: cfg.Algorithm}

	switch cfg.Algorithm {
	case "HS256":
		if cfg.Secret == "" {
			return nil, fmt.Errorf("HS256 requires a secret")
		}
		v.secret = []byte(cfg.Secret)
	case "RS256":
		key, err := parsePublicKey(cfg.PublicKeyPEM)
		if err != nil {
			return nil, fmt.Errorf("failed to load public key from PEM: %w", err)
		}
		v.publicKey = key
	default:
		return nil, fmt.Errorf("unsupported algorithm: %s", cfg.Algorithm)
	}
	return v, nil
}

// VerifyToken checks the signature, expiry and claims of tokenString.
func (v *Verifier) VerifyToken(tokenString string) (*Claims, error) {
	if strings.TrimSpace(tokenString) == "" {
		return nil, fmt.Errorf("%w: empty token", ErrInvalidToken)
	}

	mapClaims := jwt.MapClaims{}
	_, err := jwt.ParseWithClaims(tokenString, mapClaims, v.key,
		jwt.WithValidMethods([]string{v.algorithm}),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	return claimsFromMap(mapClaims)
}

func (v *Verifier) key(*jwt.Token) (interface{}, error) {
	if v.publicKey != nil {
		return v.publicKey, nil
	}
	return v.secret, nil
}

func claimsFromMap(claims jwt.MapClaims) (*Claims, error) {
	sub, err := claims.GetSubject()
	if err != nil || sub == "" {
		return nil, fmt.Errorf("%w: missing or invalid 'sub' claim", ErrInvalidToken)
	}
	roles, err := stringSlice(claims, "roles")
	if err != nil {
		return nil, err
	}
	scopes, err := stringSlice(claims, "scopes")
	if err != nil {
		return nil, err
	}
	if !allKnown(roles, knownRoles) {
		return nil, fmt.Errorf("%w: invalid roles %v", ErrInvalidToken, roles)
	}
	if !allKnown(scopes, knownScopes) {
		return nil, fmt.Errorf("%w: invalid scopes %v", ErrInvalidToken, scopes)
	}
	return &Claims{Subject: sub, Roles: roles, Scopes: scopes}, nil
}

func stringSlice(claims jwt.MapClaims, key string) ([]string, error) {
	raw, ok := claims[key].([]interface{})
	if !ok {
		return nil, fmt.Errorf("%w: missing or invalid '%s' claim", ErrInvalidToken, key)
	}
	out := make([]string, len(raw))
	for i, item := range raw {
		s, ok := item.(string)
		if !ok {
			return nil, fmt.Errorf("%w: '%s' claim holds a non-string", ErrInvalidToken, key)
		}
		out[i] = s
	}
	return out, nil
}

var (
	knownRoles  = map[string]bool{RoleViewer: true, RoleOperator: true}
	knownScopes = map[string]bool{ScopeRead: true, ScopeControl: true, ScopeTelemetry: true}
)

// allKnown reports whether values is non-empty and every value is known.
func allKnown(values []string, known map[string]bool) bool {
	for _, v := range values {
		if !known[v] {
			return false
		}
	}
	return len(values) > 0
}

func parsePublicKey(pemData string) (*rsa.PublicKey, error) {
	block, _ := pem.Decode([]byte(pemData))
	if block == nil {
		return nil, fmt.Errorf("failed to decode PEM block")
	}
	pub, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse public key: %w", err)
	}
	rsaPub, ok := pub.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("not an RSA public key")
	}
	return rsaPub, nil
}
