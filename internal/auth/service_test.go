package auth_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/btcguess/guess-engine/internal/auth"
	"github.com/btcguess/guess-engine/internal/store"
)

func newService() (*auth.Service, *store.MemoryStore) {
	ms := store.NewMemoryStore()
	return auth.NewService(ms, "access-secret", "refresh-secret"), ms
}

func TestRegisterLogin(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	u, tokens, err := svc.Register(ctx, "ada@example.com", "Ada", "hunter2hunter2")
	if err != nil {
		t.Fatalf("register failed: %v", err)
	}
	if u.ID == "" || u.PasswordHash == "" {
		t.Error("expected populated user")
	}
	if u.PasswordHash == "hunter2hunter2" {
		t.Error("password must not be stored in plaintext")
	}
	if tokens.AccessToken == "" || tokens.RefreshToken == "" {
		t.Error("expected a token pair")
	}

	claims, err := svc.ParseAccess(tokens.AccessToken)
	if err != nil {
		t.Fatalf("parse access failed: %v", err)
	}
	if claims.UserID != u.ID || claims.Email != u.Email {
		t.Errorf("claims mismatch: %+v", claims)
	}

	// Login with the right password.
	u2, _, err := svc.Login(ctx, "ada@example.com", "hunter2hunter2")
	if err != nil {
		t.Fatalf("login failed: %v", err)
	}
	if u2.ID != u.ID {
		t.Error("login returned a different user")
	}

	// Wrong password and unknown email both map to the same error.
	if _, _, err := svc.Login(ctx, "ada@example.com", "wrong"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, _, err := svc.Login(ctx, "nobody@example.com", "hunter2hunter2"); !errors.Is(err, auth.ErrInvalidCredentials) {
		t.Errorf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestRegister_DuplicateEmail(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	if _, _, err := svc.Register(ctx, "ada@example.com", "Ada", "hunter2hunter2"); err != nil {
		t.Fatal(err)
	}
	_, _, err := svc.Register(ctx, "ada@example.com", "Imposter", "hunter2hunter2")
	if !errors.Is(err, store.ErrEmailExists) {
		t.Errorf("expected ErrEmailExists, got %v", err)
	}
}

func TestRefresh_Rotation(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, tokens, err := svc.Register(ctx, "ada@example.com", "Ada", "hunter2hunter2")
	if err != nil {
		t.Fatal(err)
	}

	rotated, err := svc.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh failed: %v", err)
	}
	if rotated.RefreshToken == tokens.RefreshToken {
		t.Error("refresh must issue a new refresh token")
	}

	// The old refresh token is dead after rotation.
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for rotated-out token, got %v", err)
	}

	// The new one still works.
	if _, err := svc.Refresh(ctx, rotated.RefreshToken); err != nil {
		t.Errorf("refresh with current token failed: %v", err)
	}
}

func TestRefresh_RejectsAccessToken(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	_, tokens, err := svc.Register(ctx, "ada@example.com", "Ada", "hunter2hunter2")
	if err != nil {
		t.Fatal(err)
	}

	// Signed with the wrong secret for this endpoint.
	if _, err := svc.Refresh(ctx, tokens.AccessToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}

	if _, err := svc.Refresh(ctx, "not-a-jwt"); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestLogout_RevokesRefresh(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	u, tokens, err := svc.Register(ctx, "ada@example.com", "Ada", "hunter2hunter2")
	if err != nil {
		t.Fatal(err)
	}

	if err := svc.Logout(ctx, u.ID); err != nil {
		t.Fatalf("logout failed: %v", err)
	}

	if _, err := svc.Refresh(ctx, tokens.RefreshToken); !errors.Is(err, auth.ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken after logout, got %v", err)
	}

	// The access token stays valid until it expires; only refresh dies.
	if _, err := svc.ParseAccess(tokens.AccessToken); err != nil {
		t.Errorf("access token should still parse: %v", err)
	}
}

func TestMiddleware(t *testing.T) {
	svc, _ := newService()
	ctx := context.Background()

	u, tokens, err := svc.Register(ctx, "ada@example.com", "Ada", "hunter2hunter2")
	if err != nil {
		t.Fatal(err)
	}

	var seenUserID string
	handler := svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seenUserID = auth.UserID(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	cases := []struct {
		name   string
		header string
		status int
	}{
		{"valid token", "Bearer " + tokens.AccessToken, http.StatusNoContent},
		{"no header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer garbage", http.StatusUnauthorized},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			seenUserID = ""
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			if rec.Code != tc.status {
				t.Errorf("expected %d, got %d", tc.status, rec.Code)
			}
			if tc.status == http.StatusNoContent && seenUserID != u.ID {
				t.Errorf("expected user id %s in context, got %q", u.ID, seenUserID)
			}
		})
	}
}
