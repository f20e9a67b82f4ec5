package auth

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/mirror-control/mcc/internal/audit"
)

// echoUser reports the audit user and subject seen by the handler.
func echoUser(w http.ResponseWriter, r *http.Request) {
	sub := ""
	if c := GetClaimsFromRequest(r); c != nil {
		sub = c.Subject
	}
	_ = json.NewEncoder(w).Encode(map[string]string{
		"user":    audit.UserFromContext(r.Context()),
		"subject": sub,
	})
}

func TestRequireAuth(t *testing.T) {
	v := hsVerifier(t)
	m := NewMiddleware(v)
	handler := m.RequireAuth(echoUser)

	viewer := validClaims()
	viewer["sub"] = "viewer-1"
	viewer["roles"] = []string{RoleViewer}

	tests := []struct {
		name       string
		path       string
		header     string
		wantStatus int
		wantUser   string
	}{
		{"health is open", "/api/v1/health", "", http.StatusOK, "system"},
		{"missing header", "/api/v1/mirror", "", http.StatusUnauthorized, ""},
		{"not bearer", "/api/v1/mirror", "Basic abc", http.StatusUnauthorized, ""},
		{"empty bearer", "/api/v1/mirror", "Bearer ", http.StatusUnauthorized, ""},
		{"bad token", "/api/v1/mirror", "Bearer nope", http.StatusUnauthorized, ""},
		{"valid token", "/api/v1/mirror", "Bearer " + signHS(t, viewer), http.StatusOK, "viewer-1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", tt.path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			handler(w, req)

			if w.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d", w.Code, tt.wantStatus)
			}
			var body map[string]string
			_ = json.Unmarshal(w.Body.Bytes(), &body)
			if tt.wantStatus == http.StatusUnauthorized {
				if body["result"] != "error" || body["code"] != "UNAUTHORIZED" || body["correlationId"] == "" {
					t.Errorf("error envelope = %v", body)
				}
				return
			}
			if body["user"] != tt.wantUser {
				t.Errorf("audit user = %q, want %q", body["user"], tt.wantUser)
			}
		})
	}
}

func TestRequireAuthDisabled(t *testing.T) {
	m := NewMiddleware(nil)
	w := httptest.NewRecorder()
	m.RequireAuth(echoUser)(w, httptest.NewRequest("POST", "/api/v1/mirror/open", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 with auth disabled", w.Code)
	}
	var body map[string]string
	_ = json.Unmarshal(w.Body.Bytes(), &body)
	if body["subject"] != "bench" || body["user"] != "bench" {
		t.Errorf("body = %v", body)
	}
}

func TestRequireScope(t *testing.T) {
	m := NewMiddleware(hsVerifier(t))
	handler := m.RequireAuth(m.RequireScope(ScopeControl)(echoUser))

	tests := []struct {
		name       string
		scopes     []string
		wantStatus int
	}{
		{"operator", []string{ScopeRead, ScopeControl}, http.StatusOK},
		{"viewer", []string{ScopeRead, ScopeTelemetry}, http.StatusForbidden},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := validClaims()
			c["scopes"] = tt.scopes
			req := httptest.NewRequest("POST", "/api/v1/mirror/command", nil)
			req.Header.Set("Authorization", "Bearer "+signHS(t, c))
			w := httptest.NewRecorder()
			handler(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	// Without RequireAuth there are no claims.
	w := httptest.NewRecorder()
	m.RequireScope(ScopeRead)(echoUser)(w, httptest.NewRequest("GET", "/api/v1/mirror", nil))
	if w.Code != http.StatusUnauthorized {
		t.Errorf("status without claims = %d, want 401", w.Code)
	}
}

func TestHasScopes(t *testing.T) {
	c := &Claims{Scopes: []string{ScopeRead, ScopeTelemetry}}
	tests := []struct {
		scopes []string
		want   bool
	}{
		{nil, true},
		{[]string{ScopeRead}, true},
		{[]string{ScopeRead, ScopeTelemetry}, true},
		{[]string{ScopeControl}, false},
		{[]string{ScopeRead, ScopeControl}, false},
	}
	for _, tt := range tests {
		if got := HasScopes(c, tt.scopes...); got != tt.want {
			t.Errorf("HasScopes(%v) = %v, want %v", tt.scopes, got, tt.want)
		}
	}
	if HasScopes(nil, ScopeRead) {
		t.Error("nil claims granted a scope")
	}
}
