package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
)

func signToken(t *testing.T, key []byte, claims Claims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		t.Fatalf("sign token: %v", err)
	}
	return signed
}

func TestJWTMiddleware_ValidToken(t *testing.T) {
	key := []byte("test-signing-key")
	signed := signToken(t, key, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "op-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
		Name:  "Desk Clerk",
		Roles: []string{"cashier"},
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/charges", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if got := OperatorIDFromContext(ctx); got != "op-42" {
			t.Errorf("expected operator op-42, got %q", got)
		}
		if got := OperatorNameFromContext(ctx); got != "Desk Clerk" {
			t.Errorf("expected name Desk Clerk, got %q", got)
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 1 || roles[0] != "cashier" {
			t.Errorf("expected roles [cashier], got %v", roles)
		}
		return c.NoContent(http.StatusOK)
	}

	mw := JWTMiddleware(JWTConfig{SigningKey: key})
	if err := mw(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestJWTMiddleware_MissingHeader(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/charges", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := JWTMiddleware(JWTConfig{SigningKey: []byte("k")})
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_WrongKey(t *testing.T) {
	signed := signToken(t, []byte("other-key"), Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "op-42",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	})

	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/charges", nil)
	req.Header.Set("Authorization", "Bearer "+signed)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	mw := JWTMiddleware(JWTConfig{SigningKey: []byte("test-signing-key")})
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", httpErr.Code)
	}
}

func TestJWTMiddleware_SkipsHealth(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetPath("/health")

	mw := JWTMiddleware(JWTConfig{SigningKey: []byte("k")})
	err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

	if err != nil {
		t.Fatalf("expected health check to bypass auth, got %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestDevAuthMiddleware_StampsOperator(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/registrations", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		ctx := c.Request().Context()
		if OperatorIDFromContext(ctx) == "" {
			t.Error("expected a default operator id")
		}
		roles := RolesFromContext(ctx)
		if len(roles) != 1 || roles[0] != "admin" {
			t.Errorf("expected admin role, got %v", roles)
		}
		return c.NoContent(http.StatusOK)
	}

	if err := DevAuthMiddleware()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestRequireRole(t *testing.T) {
	cases := []struct {
		name     string
		held     []string
		required []string
		allowed  bool
	}{
		{"exact match", []string{"cashier"}, []string{"cashier"}, true},
		{"admin always passes", []string{"admin"}, []string{"pharmacist"}, true},
		{"any of several", []string{"nurse"}, []string{"doctor", "nurse"}, true},
		{"missing role", []string{"cashier"}, []string{"pharmacist"}, false},
		{"no roles", nil, []string{"cashier"}, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/api/v1/charges", nil)
			ctx := req.Context()
			if tc.held != nil {
				ctx = context.WithValue(ctx, RolesKey, tc.held)
			}
			req = req.WithContext(ctx)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			mw := RequireRole(tc.required...)
			err := mw(func(c echo.Context) error { return c.NoContent(http.StatusOK) })(c)

			if tc.allowed && err != nil {
				t.Fatalf("expected request through, got %v", err)
			}
			if !tc.allowed {
				httpErr, ok := err.(*echo.HTTPError)
				if !ok {
					t.Fatalf("expected echo.HTTPError, got %T", err)
				}
				if httpErr.Code != http.StatusForbidden {
					t.Errorf("expected 403, got %d", httpErr.Code)
				}
			}
		})
	}
}
