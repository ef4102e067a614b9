package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"loyalty-api/internal/models"
)

func TestTokenRoundTrip(t *testing.T) {
	m := NewManager("test-secret", time.Hour)
	user := models.User{ID: "user-1", Role: models.RoleAdmin}

	token, err := m.IssueToken(user)
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	claims, err := m.VerifyToken(token)
	if err != nil {
		t.Fatalf("Failed to verify token: %v", err)
	}
	if claims.Subject != "user-1" {
		t.Errorf("Expected subject user-1, got %s", claims.Subject)
	}
	if claims.Role != models.RoleAdmin {
		t.Errorf("Expected role admin, got %s", claims.Role)
	}
}

func TestVerifyToken_WrongSecret(t *testing.T) {
	issuer := NewManager("secret-a", time.Hour)
	verifier := NewManager("secret-b", time.Hour)

	token, err := issuer.IssueToken(models.User{ID: "user-1", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	if _, err := verifier.VerifyToken(token); err == nil {
		t.Error("Expected verification to fail with a different secret")
	}
}

func TestVerifyToken_Expired(t *testing.T) {
	m := NewManager("test-secret", -time.Minute)

	token, err := m.IssueToken(models.User{ID: "user-1", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	if _, err := m.VerifyToken(token); err == nil {
		t.Error("Expected verification of an expired token to fail")
	}
}

func TestMiddleware(t *testing.T) {
	m := NewManager("test-secret", time.Hour)

	var gotUserID, gotRole string
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUserID = UserIDFromContext(r.Context())
		gotRole = RoleFromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := m.Middleware(next)

	// No token
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	if rr.Code != http.StatusUnauthorized {
		t.Errorf("Expected status 401 without token, got %d", rr.Code)
	}

	// Valid token
	token, err := m.IssueToken(models.User{ID: "user-1", Role: models.RoleUser})
	if err != nil {
		t.Fatalf("Failed to issue token: %v", err)
	}

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected status 200 with valid token, got %d", rr.Code)
	}
	if gotUserID != "user-1" || gotRole != models.RoleUser {
		t.Errorf("Expected identity user-1/user in context, got %s/%s", gotUserID, gotRole)
	}
}

func TestRequireAdmin(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	handler := RequireAdmin(next)

	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(ContextWithUser(req.Context(), "user-1", models.RoleUser))
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Errorf("Expected status 403 for user role, got %d", rr.Code)
	}

	req = httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(ContextWithUser(req.Context(), "admin-1", models.RoleAdmin))
	rr = httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Errorf("Expected status 200 for admin role, got %d", rr.Code)
	}
}
