package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestMiddlewareValidToken(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	token, _ := mgr.GenerateAccessToken("user-42")

	var captured string
	handler := Middleware(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		captured = UserIDFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	for _, scheme := range []string{"Bearer", "bearer"} {
		captured = ""
		req := httptest.NewRequest(http.MethodGet, "/rooms", nil)
		req.Header.Set("Authorization", scheme+" "+token)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if rec.Code != http.StatusOK {
			t.Errorf("%s: expected 200, got %d", scheme, rec.Code)
		}
		if captured != "user-42" {
			t.Errorf("%s: expected user-42, got %q", scheme, captured)
		}
	}
}

func TestMiddlewareRejects(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	refresh, _ := mgr.GenerateRefreshToken("user-1")
	access, _ := mgr.GenerateAccessToken("user-1")
	handler := Middleware(mgr)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler should not be called")
	}))

	tests := []struct {
		name    string
		header  string
		target  string
		message string
	}{
		{"missing header", "", "/rooms", "missing authorization token"},
		{"query token not accepted", "", "/rooms?token=" + access, "missing authorization token"},
		{"no bearer prefix", "Token abc123", "/rooms", "invalid or expired token"},
		{"bearer only", "Bearer", "/rooms", "invalid or expired token"},
		{"empty value", "Bearer ", "/rooms", "invalid or expired token"},
		{"garbage token", "Bearer invalid.jwt.token", "/rooms", "invalid or expired token"},
		{"refresh token", "Bearer " + refresh, "/rooms", "refresh token cannot be used here"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)
			if rec.Code != http.StatusUnauthorized {
				t.Errorf("expected 401, got %d", rec.Code)
			}
			if !strings.Contains(rec.Body.String(), tt.message) {
				t.Errorf("expected %q in %s", tt.message, rec.Body.String())
			}
		})
	}
}

func TestAuthenticateQueryToken(t *testing.T) {
	mgr := NewJWTManager("test-secret")
	token, _ := mgr.GenerateAccessToken("user-5")

	req := httptest.NewRequest(http.MethodGet, "/ws?token="+token, nil)
	userID, err := Authenticate(mgr, req, true)
	if err != nil || userID != "user-5" {
		t.Errorf("expected user-5, got %q (%v)", userID, err)
	}

	req = httptest.NewRequest(http.MethodGet, "/ws", nil)
	if _, err := Authenticate(mgr, req, true); !errors.Is(err, ErrMissingToken) {
		t.Errorf("expected ErrMissingToken, got %v", err)
	}
}

func TestUserIDFromContext(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	if id := UserIDFromContext(req.Context()); id != "" {
		t.Errorf("expected empty user ID without auth, got %s", id)
	}
	if id := UserIDFromContext(WithUserID(req.Context(), "user-3")); id != "user-3" {
		t.Errorf("expected user-3, got %s", id)
	}
}
