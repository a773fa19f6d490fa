package middleware

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/pos-auth-gateway/internal/core/domain"
	"github.com/arklim/pos-auth-gateway/internal/usecase"
)

type fakeAuthenticator struct {
	account *domain.Account
	token   *domain.SessionToken
	err     error
	seen    string
}

func (f *fakeAuthenticator) Authenticate(_ context.Context, tokenValue string) (*domain.Account, *domain.SessionToken, error) {
	f.seen = tokenValue
	if f.err != nil {
		return nil, nil, f.err
	}
	account := *f.account
	token := *f.token
	return &account, &token, nil
}

func newAuthRouter(auth Authenticator, extra ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(EnrichContext())
	chain := append([]gin.HandlerFunc{RequireAuth(auth)}, extra...)
	chain = append(chain, func(c *gin.Context) {
		account, _ := GetAuthenticatedAccount(c)
		token, _ := GetSessionToken(c)
		c.JSON(http.StatusOK, gin.H{"account_id": account.ID, "token": token.Value})
	})
	router.GET("/me", chain...)
	return router
}

func TestRequireAuthStoresAccountAndToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := &fakeAuthenticator{
		account: &domain.Account{ID: "acc-1", Role: "staff"},
		token:   &domain.SessionToken{ID: "tok-1", ExpiresAt: time.Now().Add(time.Hour)},
	}
	router := newAuthRouter(auth)

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "bearer  opaque-value ")
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if auth.seen != "opaque-value" {
		t.Fatalf("expected trimmed token, got %q", auth.seen)
	}

	var body map[string]string
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["account_id"] != "acc-1" || body["token"] != "opaque-value" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestRequireAuthRejections(t *testing.T) {
	gin.SetMode(gin.TestMode)

	cases := []struct {
		name   string
		header string
		err    error
		status int
		code   string
	}{
		{name: "missing header", status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "wrong scheme", header: "Basic abc", status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "empty token", header: "Bearer ", status: http.StatusUnauthorized, code: "unauthenticated"},
		{name: "expired", header: "Bearer t", err: usecase.ErrTokenExpired, status: http.StatusUnauthorized, code: "token_expired"},
		{name: "unknown", header: "Bearer t", err: usecase.ErrTokenNotFound, status: http.StatusUnauthorized, code: "token_not_found"},
		{name: "store down", header: "Bearer t", err: fmt.Errorf("load token: %w", usecase.ErrStoreUnavailable), status: http.StatusServiceUnavailable, code: "store_unavailable"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			router := newAuthRouter(&fakeAuthenticator{err: tc.err})

			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tc.header != "" {
				req.Header.Set("Authorization", tc.header)
			}
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rr.Code)
			}
			var body ErrorResponse
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Code != tc.code {
				t.Fatalf("expected code %q, got %q", tc.code, body.Code)
			}
			if body.TraceID == "" {
				t.Fatalf("expected trace id in error body")
			}
		})
	}
}

func TestRequireRole(t *testing.T) {
	gin.SetMode(gin.TestMode)

	auth := &fakeAuthenticator{
		account: &domain.Account{ID: "acc-1", Role: "staff"},
		token:   &domain.SessionToken{ID: "tok-1"},
	}

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer t")
	rr := httptest.NewRecorder()
	newAuthRouter(auth, RequireRole("admin")).ServeHTTP(rr, req)
	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for staff, got %d", rr.Code)
	}

	auth.account.Role = "Admin"
	rr = httptest.NewRecorder()
	newAuthRouter(auth, RequireRole("admin")).ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200 for admin, got %d", rr.Code)
	}
}
