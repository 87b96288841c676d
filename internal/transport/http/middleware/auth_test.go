package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/social-platform-authguard/internal/infra/security"
)

func newAdminTestEngine(t *testing.T, tokens *security.TokenManager, seenActor *string) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(RequestID())
	r.Use(EnrichContext())
	r.GET("/admin", RequireAdmin(tokens, "admin"), func(c *gin.Context) {
		*seenActor = FromContext(c.Request.Context()).ActorID
		c.Status(http.StatusOK)
	})

	return r
}

func newTestTokenManager(t *testing.T) *security.TokenManager {
	t.Helper()

	tokens, err := security.NewTokenManager("middleware-test-secret", "authguard-test", time.Minute)
	if err != nil {
		t.Fatalf("NewTokenManager returned error: %v", err)
	}

	return tokens
}

func TestRequireAdminMissingHeader(t *testing.T) {
	var actor string
	r := newAdminTestEngine(t, newTestTokenManager(t), &actor)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestRequireAdminMalformedHeader(t *testing.T) {
	var actor string
	r := newAdminTestEngine(t, newTestTokenManager(t), &actor)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Token abc")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestRequireAdminInvalidToken(t *testing.T) {
	var actor string
	r := newAdminTestEngine(t, newTestTokenManager(t), &actor)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	r.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected status 401, got %d", w.Code)
	}
}

func TestRequireAdminRejectsWrongRole(t *testing.T) {
	tokens := newTestTokenManager(t)
	var actor string
	r := newAdminTestEngine(t, tokens, &actor)

	token, err := tokens.Issue("user-7", "member")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusForbidden {
		t.Fatalf("expected status 403, got %d", w.Code)
	}
	if actor != "" {
		t.Fatalf("expected no actor recorded, got %q", actor)
	}
}

func TestRequireAdminBindsActor(t *testing.T) {
	tokens := newTestTokenManager(t)
	var actor string
	r := newAdminTestEngine(t, tokens, &actor)

	token, err := tokens.Issue("admin-3", "admin")
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", w.Code)
	}
	if actor != "admin-3" {
		t.Fatalf("expected actor admin-3 in request context, got %q", actor)
	}
}

func TestRequireAdminUnconfigured(t *testing.T) {
	var actor string
	r := newAdminTestEngine(t, nil, &actor)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/admin", nil)
	r.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", w.Code)
	}
}
