package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const userKey = "auth.user"

// User is the identity carried by an access token.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// Claims is the token payload. Tokens are issued elsewhere.
type Claims struct {
	User
	jwt.RegisteredClaims
}

var (
	ErrNoToken      = errors.New("no token provided")
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("invalid token")
)

// Authenticator verifies HS256 access tokens and decides admin rights.
type Authenticator struct {
	secret     []byte
	adminEmail string
}

func NewAuthenticator(secret, adminEmail string) *Authenticator {
	return &Authenticator{secret: []byte(secret), adminEmail: strings.ToLower(adminEmail)}
}

// TokenFromRequest looks at Authorization (with or without the Bearer
// scheme), x-access-token, then the token query parameter.
func TokenFromRequest(r *http.Request) string {
	if h := strings.TrimSpace(r.Header.Get("Authorization")); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return h
	}
	if h := strings.TrimSpace(r.Header.Get("x-access-token")); h != "" {
		return h
	}
	return r.URL.Query().Get("token")
}

// Parse validates raw and returns its user.
func (a *Authenticator) Parse(raw string) (*User, error) {
	if raw == "" {
		return nil, ErrNoToken
	}
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims, func(*jwt.Token) (any, error) {
		return a.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil:
		return nil, ErrTokenInvalid
	}
	if claims.User.ID == "" {
		claims.User.ID = claims.RegisteredClaims.Subject
	}
	if claims.User.ID == "" {
		return nil, ErrTokenInvalid
	}
	return &claims.User, nil
}

// IsAdmin reports whether u may manage auctions.
func (a *Authenticator) IsAdmin(u *User) bool {
	if u == nil {
		return false
	}
	if u.Role == "admin" {
		return true
	}
	return a.adminEmail != "" && strings.ToLower(u.Email) == a.adminEmail
}

// RequireUser rejects requests without a valid token.
func (a *Authenticator) RequireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := a.Parse(TokenFromRequest(c.Request))
		if err != nil {
			abortAuth(c, err)
			return
		}
		c.Set(userKey, u)
		c.Next()
	}
}

// RequireAdmin runs after RequireUser.
func (a *Authenticator) RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !a.IsAdmin(CurrentUser(c)) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "admin access required", "code": "forbidden"})
			return
		}
		c.Next()
	}
}

// CurrentUser returns the authenticated user or nil.
func CurrentUser(c *gin.Context) *User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	u, _ := v.(*User)
	return u
}

func abortAuth(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrTokenExpired):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "token_expired"})
	case errors.Is(err, ErrNoToken):
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error(), "code": "unauthorized"})
	default:
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": err.Error(), "code": "invalid_token"})
	}
}
