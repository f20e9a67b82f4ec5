package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mirror-control/mcc/internal/config"
)

const testSecret = "test-secret-key"

func hsVerifier(t *testing.T) *Verifier {
	t.Helper()
	v, err := NewVerifier(config.AuthConfig{Algorithm: "HS256", Secret: testSecret})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}
	return v
}

func validClaims() jwt.MapClaims {
	return jwt.MapClaims{
		"sub":    "operator-7",
		"roles":  []string{RoleOperator},
		"scopes": []string{ScopeRead, ScopeControl},
		"exp":    time.Now().Add(time.Hour).Unix(),
	}
}

func signHS(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testSecret))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	return s
}

func generateRSAKey(t *testing.T) (*rsa.PrivateKey, string) {
	t.Helper()
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	der, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		t.Fatalf("marshal public key: %v", err)
	}
	return key, string(pem.EncodeToMemory(&pem.Block{Type: "PUBLIC KEY", Bytes: der}))
}

func TestNewVerifier(t *testing.T) {
	_, pubPEM := generateRSAKey(t)

	tests := []struct {
		name    string
		cfg     config.AuthConfig
		wantErr bool
	}{
		{"HS256 with secret", config.AuthConfig{Algorithm: "HS256", Secret: "s"}, false},
		{"HS256 without secret", config.AuthConfig{Algorithm: "HS256"}, true},
		{"RS256 with PEM", config.AuthConfig{Algorithm: "RS256", PublicKeyPEM: pubPEM}, false},
		{"RS256 with garbage PEM", config.AuthConfig{Algorithm: "RS256", PublicKeyPEM: "not a key"}, true},
		{"unsupported algorithm", config.AuthConfig{Algorithm: "ES256"}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, err := NewVerifier(tt.cfg)
			if (err != nil) != tt.wantErr {
				t.Fatalf("NewVerifier() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && v == nil {
				t.Error("NewVerifier() returned nil verifier")
			}
		})
	}
}

func TestVerifyHS256Token(t *testing.T) {
	v := hsVerifier(t)

	claims, err := v.VerifyToken(signHS(t, validClaims()))
	if err != nil {
		t.Fatalf("VerifyToken() error = %v", err)
	}
	if claims.Subject != "operator-7" {
		t.Errorf("Subject = %q", claims.Subject)
	}
	if !HasScopes(claims, ScopeRead, ScopeControl) || HasScopes(claims, ScopeTelemetry) {
		t.Errorf("Scopes = %v", claims.Scopes)
	}
}

func TestVerifyRS256Token(t *testing.T) {
	key, pubPEM := generateRSAKey(t)
	v, err := NewVerifier(config.AuthConfig{Algorithm: "RS256", PublicKeyPEM: pubPEM})
	if err != nil {
		t.Fatalf("NewVerifier() error = %v", err)
	}

	token, err := jwt.NewWithClaims(jwt.SigningMethodRS256, validClaims()).SignedString(key)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	if _, err := v.VerifyToken(token); err != nil {
		t.Errorf("VerifyToken() error = %v", err)
	}

	// An HS256 token must not pass an RS256 verifier.
	if _, err := v.VerifyToken(signHS(t, validClaims())); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("algorithm confusion accepted: %v", err)
	}
}

func TestVerifyTokenRejects(t *testing.T) {
	v := hsVerifier(t)

	mutate := func(f func(jwt.MapClaims)) string {
		c := validClaims()
		f(c)
		return signHS(t, c)
	}
	wrongKey, _ := jwt.NewWithClaims(jwt.SigningMethodHS256, validClaims()).SignedString([]byte("other"))

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"garbage", "not.a.jwt"},
		{"wrong key", wrongKey},
		{"expired", mutate(func(c jwt.MapClaims) { c["exp"] = time.Now().Add(-time.Minute).Unix() })},
		{"no expiry", mutate(func(c jwt.MapClaims) { delete(c, "exp") })},
		{"no subject", mutate(func(c jwt.MapClaims) { delete(c, "sub") })},
		{"no roles", mutate(func(c jwt.MapClaims) { delete(c, "roles") })},
		{"unknown role", mutate(func(c jwt.MapClaims) { c["roles"] = []string{"admin"} })},
		{"empty scopes", mutate(func(c jwt.MapClaims) { c["scopes"] = []string{} })},
		{"unknown scope", mutate(func(c jwt.MapClaims) { c["scopes"] = []string{"mirror:admin"} })},
		{"non-string scope", mutate(func(c jwt.MapClaims) { c["scopes"] = []interface{}{"read", 3} })},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := v.VerifyToken(tt.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("VerifyToken() error = %v, want ErrInvalidToken", err)
			}
		})
	}
}
