package auth

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/zhouzirui/z-tavern/chatengine/internal/config"
)

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc, err := NewService(config.AuthConfig{Secret: "test-secret", TokenTTL: time.Hour, Issuer: "test"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return svc
}

func TestIssueAndValidate(t *testing.T) {
	svc := newTestService(t)

	issued, err := svc.Issue("u1")
	if err != nil {
		t.Fatalf("issue failed: %v", err)
	}
	claims, err := svc.Validate(issued.Token)
	if err != nil {
		t.Fatalf("validate failed: %v", err)
	}
	if claims.UserID != "u1" {
		t.Fatalf("expected u1, got %q", claims.UserID)
	}
}

func TestValidateExpired(t *testing.T) {
	svc := newTestService(t)
	issued, _ := svc.Issue("u1")

	svc.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if _, err := svc.Validate(issued.Token); !errors.Is(err, ErrExpiredToken) {
		t.Fatalf("expected ErrExpiredToken, got %v", err)
	}
}

func TestValidateRejectsForeignSecret(t *testing.T) {
	other, _ := NewService(config.AuthConfig{Secret: "other"})
	issued, _ := other.Issue("u1")

	if _, err := newTestService(t).Validate(issued.Token); !errors.Is(err, ErrInvalidToken) {
		t.Fatalf("expected ErrInvalidToken, got %v", err)
	}
}

func TestIssueRequiresUser(t *testing.T) {
	if _, err := newTestService(t).Issue("  "); !errors.Is(err, ErrMissingUser) {
		t.Fatalf("expected ErrMissingUser, got %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	svc := newTestService(t)
	var seen string
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	issued, _ := svc.Issue("u7")
	req = httptest.NewRequest(http.MethodPost, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rec.Code)
	}
	if seen != "u7" {
		t.Fatalf("expected user id in context, got %q", seen)
	}
}

func TestOptionalMiddleware(t *testing.T) {
	svc := newTestService(t)
	var seen string
	var calls int
	handler := svc.Optional(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		seen, _ = UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusNoContent || seen != "" {
		t.Fatalf("expected anonymous pass-through, got %d user=%q", rec.Code, seen)
	}

	issued, _ := svc.Issue("u9")
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issued.Token)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent || seen != "u9" {
		t.Fatalf("expected member identified, got %d user=%q", rec.Code, seen)
	}

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized || calls != 2 {
		t.Fatalf("expected 401 for an invalid token, got %d after %d calls", rec.Code, calls)
	}
}
