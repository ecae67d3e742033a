package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/union-bmm/backend/internal/auth"
	"github.com/union-bmm/backend/pkg/response"
)

// Staff claims are stored in the gin context under these keys.
const (
	ContextStaffID   = "staff_id"
	ContextStaffRole = "staff_role"
	ContextStaffName = "staff_name"
)

// JWT validates the staff bearer token and stores its claims in the context.
func JWT(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearer(c.GetHeader("Authorization"))
		if !ok {
			response.Fail(c, http.StatusUnauthorized, "unauthenticated", "missing or malformed authorization header")
			c.Abort()
			return
		}
		claims, err := jwtService.Validate(token)
		if err != nil {
			response.Fail(c, http.StatusUnauthorized, "unauthenticated", "invalid or expired token")
			c.Abort()
			return
		}
		c.Set(ContextStaffID, claims.StaffID)
		c.Set(ContextStaffRole, claims.Role)
		c.Set(ContextStaffName, claims.Name)
		c.Next()
	}
}

// RequireRole lets through only staff holding one of roles. It must run after JWT.
func RequireRole(roles ...string) gin.HandlerFunc {
	allowed := make(map[string]struct{}, len(roles))
	for _, r := range roles {
		allowed[r] = struct{}{}
	}
	return func(c *gin.Context) {
		role := c.GetString(ContextStaffRole)
		if role == "" {
			response.Fail(c, http.StatusUnauthorized, "unauthenticated", "missing staff context")
			c.Abort()
			return
		}
		if _, ok := allowed[role]; !ok {
			response.Fail(c, http.StatusForbidden, "forbidden", "role "+role+" may not use this route")
			c.Abort()
			return
		}
		c.Next()
	}
}

// Staff chains JWT and RequireRole.
func Staff(jwtService *auth.JWTService, roles ...string) []gin.HandlerFunc {
	return []gin.HandlerFunc{JWT(jwtService), RequireRole(roles...)}
}

func bearer(header string) (string, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || scheme != "Bearer" {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
