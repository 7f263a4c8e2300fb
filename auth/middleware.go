package auth

import (
	"fleet-hub/contract"
	"fleet-hub/domain"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AccessTokenParam is read when the client cannot set headers (browser WebSocket).
const AccessTokenParam = "access_token"

const principalKey = "principal"

// BearerToken extracts the token from the Authorization header,
// falling back to the access_token query parameter.
func BearerToken(r *http.Request) string {
	if h := r.Header.Get("Authorization"); h != "" {
		if len(h) > 7 && strings.EqualFold(h[:7], "Bearer ") {
			return strings.TrimSpace(h[7:])
		}
		return ""
	}
	return r.URL.Query().Get(AccessTokenParam)
}

// RequireAuth aborts with 401 unless the request carries a valid token.
// The principal is stored in the gin context for downstream handlers.
func RequireAuth(validator contract.TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, err := validator.Validate(c.Request.Context(), BearerToken(c.Request))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRole must run after RequireAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := PrincipalFrom(c)
		if !ok || !principal.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func PrincipalFrom(c *gin.Context) (domain.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := v.(domain.Principal)
	return principal, ok
}
