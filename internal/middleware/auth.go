package middleware

import (
	"context"
	"net/http"
	"strings"

	"geounity/internal/authz"
	"geounity/internal/model"
	"geounity/internal/pkg"

	"github.com/gin-gonic/gin"
)

const ContextUserKey = "user"

// Authenticator resolves a bearer access token to its user.
type Authenticator interface {
	Authenticate(ctx context.Context, accessToken string) (*model.User, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// OptionalAuth attaches the user when a valid token is sent and otherwise
// lets the request through anonymously.
func OptionalAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token, ok := bearerToken(c); ok {
			if user, err := a.Authenticate(c.Request.Context(), token); err == nil {
				c.Set(ContextUserKey, user)
			}
		}
		c.Next()
	}
}

// RequireAuth rejects requests without a live session. A user already
// attached by OptionalAuth is reused.
func RequireAuth(a Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if CurrentUser(c) != nil {
			c.Next()
			return
		}
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "missing or malformed authorization header"})
			return
		}
		user, err := a.Authenticate(c.Request.Context(), token)
		if err != nil {
			status := pkg.HTTPStatus(err)
			msg := err.Error()
			if status == http.StatusInternalServerError {
				msg = "authentication unavailable"
			}
			c.AbortWithStatusJSON(status, gin.H{"msg": msg})
			return
		}
		c.Set(ContextUserKey, user)
		c.Next()
	}
}

// CurrentUser is nil for anonymous requests.
func CurrentUser(c *gin.Context) *model.User {
	if v, ok := c.Get(ContextUserKey); ok {
		if u, ok := v.(*model.User); ok {
			return u
		}
	}
	return nil
}

// RequirePermission runs after RequireAuth and checks the user's role.
func RequirePermission(enf *authz.Enforcer, obj, act string) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"msg": "authentication required"})
			return
		}
		if !enf.Allowed(user, obj, act) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"msg": "permission denied"})
			return
		}
		c.Next()
	}
}
