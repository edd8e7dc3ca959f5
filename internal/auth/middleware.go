package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"rollcall/internal/apperr"
	"rollcall/internal/token"
)

const claimsKey = "claims"

// Bearer enforces a bearer access token on the request. Refresh tokens are
// rejected here regardless of validity; the type tag is the sole defense
// against token confusion and must hold at this boundary.
func Bearer(svc *token.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := svc.Decode(tokenStr, token.TypeAccess)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": apperr.ErrInvalidToken.Message})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects callers whose role differs from the required one.
// Must run after Bearer.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := MustClaims(c)
		if claims.Role != role {
			ae := apperr.Forbidden(role)
			c.AbortWithStatusJSON(ae.HTTPStatus, gin.H{"error": ae.Message})
			return
		}
		c.Next()
	}
}

// MustClaims returns the claims set by Bearer; zero value if absent.
func MustClaims(c *gin.Context) token.Claims {
	claimsAny, _ := c.Get(claimsKey)
	claims, _ := claimsAny.(token.Claims)
	return claims
}
