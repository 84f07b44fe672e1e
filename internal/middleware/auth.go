package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/eonpro/ops-api/pkg/auth"
	"github.com/eonpro/ops-api/pkg/httputil"
)

const contextClaims = "claims"

type AuthMiddleware struct {
	jwt auth.JWTService
}

func NewAuthMiddleware(jwt auth.JWTService) *AuthMiddleware {
	return &AuthMiddleware{jwt: jwt}
}

// Authenticate verifies the bearer token and stores the claims in context.
func (m *AuthMiddleware) Authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.Response{Status: "error", Message: "missing authorization header"})
			return
		}

		parts := strings.Split(header, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.Response{Status: "error", Message: "invalid authorization format"})
			return
		}

		claims, err := m.jwt.ValidateToken(parts[1])
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.Response{Status: "error", Message: "invalid token"})
			return
		}

		c.Set(contextClaims, claims)
		c.Next()
	}
}

// RequireRole restricts a route to the given roles.
func (m *AuthMiddleware) RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := ClaimsFromContext(c)
		if claims == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httputil.Response{Status: "error", Message: "unauthorized"})
			return
		}
		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}
		c.AbortWithStatusJSON(http.StatusForbidden, httputil.Response{Status: "error", Message: "insufficient role"})
	}
}

// ClaimsFromContext returns the authenticated claims, or nil on public routes.
func ClaimsFromContext(c *gin.Context) *auth.Claims {
	if v, ok := c.Get(contextClaims); ok {
		if claims, ok := v.(*auth.Claims); ok {
			return claims
		}
	}
	return nil
}

// ClinicIDFromContext returns the tenant the caller is scoped to.
func ClinicIDFromContext(c *gin.Context) uuid.UUID {
	if claims := ClaimsFromContext(c); claims != nil {
		return claims.ClinicID
	}
	return uuid.Nil
}

// UserIDFromContext returns the acting user.
func UserIDFromContext(c *gin.Context) uuid.UUID {
	if claims := ClaimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return uuid.Nil
}
