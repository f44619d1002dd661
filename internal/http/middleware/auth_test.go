package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const secret = "0123456789abcdef0123"

func sign(t *testing.T, key string, u User, exp time.Time) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		User:             u,
		RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(exp)},
	})
	s, err := tok.SignedString([]byte(key))
	require.NoError(t, err)
	return s
}

func newRouter(a *Authenticator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/me", a.RequireUser(), func(c *gin.Context) {
		c.JSON(http.StatusOK, CurrentUser(c))
	})
	r.POST("/admin", a.RequireUser(), a.RequireAdmin(), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})
	return r
}

func TestRequireUser(t *testing.T) {
	a := NewAuthenticator(secret, "")
	r := newRouter(a)
	future := time.Now().Add(time.Hour)
	valid := sign(t, secret, User{ID: "u1", Email: "u1@example.com"}, future)

	tests := []struct {
		name     string
		prepare  func(req *http.Request)
		wantCode int
		wantBody string
	}{
		{name: "bearer", prepare: func(req *http.Request) { req.Header.Set("Authorization", "Bearer "+valid) }, wantCode: http.StatusOK, wantBody: `"id":"u1"`},
		{name: "raw_authorization", prepare: func(req *http.Request) { req.Header.Set("Authorization", valid) }, wantCode: http.StatusOK},
		{name: "x_access_token", prepare: func(req *http.Request) { req.Header.Set("x-access-token", valid) }, wantCode: http.StatusOK},
		{name: "query", prepare: func(req *http.Request) { req.URL.RawQuery = "token=" + valid }, wantCode: http.StatusOK},
		{name: "missing", prepare: func(*http.Request) {}, wantCode: http.StatusUnauthorized, wantBody: `"code":"unauthorized"`},
		{
			name: "expired",
			prepare: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+sign(t, secret, User{ID: "u1"}, time.Now().Add(-time.Minute)))
			},
			wantCode: http.StatusUnauthorized, wantBody: `"code":"token_expired"`,
		},
		{
			name: "wrong_key",
			prepare: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+sign(t, "another-secret-entirely", User{ID: "u1"}, future))
			},
			wantCode: http.StatusForbidden, wantBody: `"code":"invalid_token"`,
		},
		{name: "garbage", prepare: func(req *http.Request) { req.Header.Set("Authorization", "Bearer abc.def") }, wantCode: http.StatusForbidden},
		{
			name: "no_user_id",
			prepare: func(req *http.Request) {
				req.Header.Set("Authorization", "Bearer "+sign(t, secret, User{Email: "x@example.com"}, future))
			},
			wantCode: http.StatusForbidden,
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/me", nil)
			tc.prepare(req)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tc.wantCode, w.Code)
			if tc.wantBody != "" {
				require.Contains(t, w.Body.String(), tc.wantBody)
			}
		})
	}
}

func TestRequireAdmin(t *testing.T) {
	a := NewAuthenticator(secret, "Ops@Example.com")
	r := newRouter(a)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name     string
		user     User
		wantCode int
	}{
		{name: "role_admin", user: User{ID: "a1", Role: "admin"}, wantCode: http.StatusNoContent},
		{name: "admin_email", user: User{ID: "a2", Email: "ops@example.com"}, wantCode: http.StatusNoContent},
		{name: "plain_user", user: User{ID: "u1", Email: "u1@example.com", Role: "user"}, wantCode: http.StatusForbidden},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			req.Header.Set("Authorization", "Bearer "+sign(t, secret, tc.user, future))
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			require.Equal(t, tc.wantCode, w.Code)
		})
	}
}

func TestIsAdmin_NoAdminEmailConfigured(t *testing.T) {
	a := NewAuthenticator(secret, "")
	require.False(t, a.IsAdmin(&User{ID: "u1", Email: ""}))
	require.False(t, a.IsAdmin(nil))
}
