package auth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	firebaseauth "firebase.google.com/go/v4/auth"

	"github.com/deskhub/api/internal/platform/requestctx"
)

type stubTokenVerifier struct {
	token    *firebaseauth.Token
	err      error
	received string
}

func (s *stubTokenVerifier) VerifyIDToken(_ context.Context, idToken string) (*firebaseauth.Token, error) {
	s.received = idToken
	if s.err != nil {
		return nil, s.err
	}
	return s.token, nil
}

func decodeError(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	return body
}

func TestRequireFirebaseAuth_AllowsValidToken(t *testing.T) {
	verifier := &stubTokenVerifier{
		token: &firebaseauth.Token{
			UID: "uid-123",
			Claims: map[string]any{
				"role":   []any{"host", "Admin", "host"},
				"locale": "it-IT",
				"email":  "host@example.com",
			},
		},
	}

	authn := NewAuthenticator(verifier)

	called := false
	handler := authn.RequireFirebaseAuth(RoleHost)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
		identity, ok := IdentityFromContext(r.Context())
		if !ok {
			t.Fatalf("expected identity in context")
		}
		if identity.UID != "uid-123" || identity.Email != "host@example.com" || identity.Locale != "it-IT" {
			t.Fatalf("unexpected identity %+v", identity)
		}
		if actor, ok := requestctx.ActorFrom(r.Context()); !ok || actor.UID != "uid-123" || actor.Service {
			t.Fatalf("unexpected actor %+v", actor)
		}
		if len(identity.Roles) != 2 || !identity.HasRole(RoleAdmin) {
			t.Fatalf("expected deduplicated roles, got %v", identity.Roles)
		}
		if identity.Token() == nil {
			t.Fatalf("expected token to be retained")
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/me", nil)
	req.Header.Set("Authorization", "Bearer token-abc")
	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)

	if !called {
		t.Fatalf("expected handler to be called")
	}
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", rr.Code)
	}
	if verifier.received != "token-abc" {
		t.Fatalf("expected verifier to receive token, got %q", verifier.received)
	}
}

func TestRequireFirebaseAuth_MissingHeader(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{})
	rr := httptest.NewRecorder()
	authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body["error"] != "unauthenticated" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRequireFirebaseAuth_ExpiredToken(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: ErrTokenExpired})

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer expired")
	rr := httptest.NewRecorder()
	authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body["error"] != "token_expired" {
		t.Fatalf("expected token_expired, got %v", body)
	}
}

func TestRequireFirebaseAuth_RevokedToken(t *testing.T) {
	authn := NewAuthenticator(&stubTokenVerifier{err: fmt.Errorf("%w: user disabled", ErrTokenRevoked)})

	req := httptest.NewRequest(http.MethodPost, "/me/slot-locks/refresh", nil)
	req.Header.Set("Authorization", "Bearer revoked")
	rr := httptest.NewRecorder()
	authn.RequireFirebaseAuth()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if body := decodeError(t, rr); body["error"] != "token_revoked" {
		t.Fatalf("expected token_revoked, got %v", body)
	}
}

func TestRequireFirebaseAuth_FallbackRoleAndForbidden(t *testing.T) {
	verifier := &stubTokenVerifier{token: &firebaseauth.Token{UID: "uid-9", Claims: map[string]any{}}}
	authn := NewAuthenticator(verifier)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer t")

	rr := httptest.NewRecorder()
	authn.RequireFirebaseAuth(RoleCoworker)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		identity, _ := IdentityFromContext(r.Context())
		if !identity.HasRole(RoleCoworker) {
			t.Fatalf("expected fallback coworker role, got %v", identity.Roles)
		}
		w.WriteHeader(http.StatusOK)
	})).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	authn.RequireFirebaseAuth(RoleAdmin)(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatalf("handler should not be called")
	})).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
}

func TestRolesFromClaims_MapForm(t *testing.T) {
	roles := rolesFromClaims(map[string]any{"role": map[string]any{"host": true, "admin": false}}, "role")
	if len(roles) != 1 || roles[0] != RoleHost {
		t.Fatalf("expected [host], got %v", roles)
	}
}
