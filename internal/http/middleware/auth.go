// README: Bearer-token authentication middleware.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"carpool/internal/infra"
	"carpool/internal/types"
)

const (
	ctxCallerUID    = "caller_uid"
	ctxCallerClaims = "caller_claims"
)

// Auth verifies the Authorization bearer token and stores the caller id on the
// context. Requests without a valid token are rejected with 401.
func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		raw = strings.TrimSpace(raw)
		if !ok || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Authentication required"})
			return
		}
		token, err := verifier.VerifyToken(c.Request.Context(), raw)
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "Invalid or expired token"})
			return
		}
		c.Set(ctxCallerUID, types.ID(token.UID))
		c.Set(ctxCallerClaims, token.Claims)
		c.Next()
	}
}

// CallerUID returns the authenticated caller, or "" outside Auth.
func CallerUID(c *gin.Context) types.ID {
	if v, ok := c.Get(ctxCallerUID); ok {
		if uid, ok := v.(types.ID); ok {
			return uid
		}
	}
	return ""
}

// CallerClaim reads a string claim from the verified token.
func CallerClaim(c *gin.Context, key string) string {
	v, ok := c.Get(ctxCallerClaims)
	if !ok {
		return ""
	}
	claims, _ := v.(map[string]interface{})
	s, _ := claims[key].(string)
	return s
}
