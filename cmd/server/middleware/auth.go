package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/tkarren/castbucket/pkg/types"
)

// TokenValidator checks a capability token and returns the identity label it
// is bound to. Implemented by the auth service.
type TokenValidator interface {
	Validate(ctx context.Context, token string) (string, error)
}

const (
	identityKey = "identity"
	tokenKey    = "token"
)

// AuthMiddleware validates the capability token on every request and attaches
// the owning identity to the request context. Requests without a valid token
// never reach the upload core.
func AuthMiddleware(validator TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := extractToken(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusForbidden, types.APIResponse{
				Success: false,
				Error:   "missing capability token",
			})
			return
		}

		identity, err := validator.Validate(c.Request.Context(), token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusForbidden, types.APIResponse{
				Success: false,
				Error:   "invalid or expired token",
			})
			return
		}

		c.Set(identityKey, identity)
		c.Set(tokenKey, token)
		c.Next()
	}
}

// extractToken pulls the capability token from the Authorization header or,
// for clients that cannot set headers, the token query parameter.
func extractToken(c *gin.Context) string {
	if authHeader := c.GetHeader("Authorization"); strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return c.Query("token")
}

// IdentityFromContext returns the validated identity and raw token attached
// by AuthMiddleware.
func IdentityFromContext(c *gin.Context) (identity, token string, ok bool) {
	id, exists := c.Get(identityKey)
	if !exists {
		return "", "", false
	}
	tok, exists := c.Get(tokenKey)
	if !exists {
		return "", "", false
	}

	identity, idOK := id.(string)
	token, tokOK := tok.(string)
	return identity, token, idOK && tokOK
}
