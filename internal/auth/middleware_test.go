package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const secret = "test-secret"

func signToken(t *testing.T, claims jwt.RegisteredClaims, method jwt.SigningMethod) string {
	t.Helper()
	signed, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}

func newRouter(mw gin.HandlerFunc) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", mw, func(c *gin.Context) {
		id, _ := GetUserID(c.Request.Context())
		c.String(http.StatusOK, id)
	})
	return r
}

func call(r *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func TestMiddlewareAcceptsValidToken(t *testing.T) {
	r := newRouter(JWTMiddleware(secret, ""))
	token := signToken(t, jwt.RegisteredClaims{
		Subject:   "user-1",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, jwt.SigningMethodHS256)

	resp := call(r, "Bearer "+token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	if resp.Body.String() != "user-1" {
		t.Fatalf("expected subject user-1, got %q", resp.Body.String())
	}
}

func TestMiddlewareRejections(t *testing.T) {
	valid := jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}
	expired := jwt.RegisteredClaims{Subject: "user-1", ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour))}
	anonymous := jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour))}

	cases := []struct {
		name   string
		mw     gin.HandlerFunc
		header string
	}{
		{"missing header", JWTMiddleware(secret, ""), ""},
		{"wrong scheme", JWTMiddleware(secret, ""), "Basic abc"},
		{"empty token", JWTMiddleware(secret, ""), "Bearer   "},
		{"expired", JWTMiddleware(secret, ""), "Bearer " + signToken(t, expired, jwt.SigningMethodHS256)},
		{"no subject", JWTMiddleware(secret, ""), "Bearer " + signToken(t, anonymous, jwt.SigningMethodHS256)},
		{"wrong audience", JWTMiddleware(secret, "shotcmp"), "Bearer " + signToken(t, valid, jwt.SigningMethodHS256)},
		{"no secret", JWTMiddleware("", ""), "Bearer " + signToken(t, valid, jwt.SigningMethodHS256)},
		{"wrong key", JWTMiddleware("other", ""), "Bearer " + signToken(t, valid, jwt.SigningMethodHS512)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := call(newRouter(tc.mw), tc.header)
			if resp.Code != http.StatusUnauthorized {
				t.Fatalf("expected 401, got %d", resp.Code)
			}
		})
	}
}

func TestMiddlewareAudience(t *testing.T) {
	r := newRouter(Middleware(Config{Secret: secret, Audience: "shotcmp"}))
	token := signToken(t, jwt.RegisteredClaims{
		Subject:   "user-2",
		Audience:  jwt.ClaimStrings{"shotcmp"},
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}, jwt.SigningMethodHS384)

	resp := call(r, "bearer "+token)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
}
