// Package middleware provides auth, RBAC, and tracing middleware.
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/ncobase/jobstream/internal/job/structs"
	"github.com/ncobase/jobstream/pkg/ctxutil"
	"github.com/ncobase/jobstream/pkg/jwt"
	"github.com/ncobase/jobstream/pkg/logger"
	"github.com/ncobase/jobstream/pkg/resp"
)

// Auth validates the bearer token and stores the caller identity in both
// the gin context and the request context.
func Auth(tokens *jwt.TokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			resp.Fail(c.Writer, resp.UnAuthorized("missing authorization header"))
			c.Abort()
			return
		}

		parts := strings.SplitN(authHeader, " ", 2)
		if len(parts) != 2 || parts[0] != "Bearer" {
			resp.Fail(c.Writer, resp.UnAuthorized("invalid authorization header format"))
			c.Abort()
			return
		}

		claims, err := tokens.DecodeToken(parts[1])
		if err != nil {
			logger.StdLogger().Warn(c.Request.Context(), "invalid token", "error", err)
			resp.Fail(c.Writer, resp.UnAuthorized("invalid token"))
			c.Abort()
			return
		}

		userID := jwt.GetPayloadString(claims, "user_id")
		role := jwt.GetPayloadString(claims, "role")
		if userID == "" {
			resp.Fail(c.Writer, resp.UnAuthorized("invalid token"))
			c.Abort()
			return
		}
		if role == "" {
			role = structs.RoleUser
		}

		c.Set("user_id", userID)
		c.Set("user_role", role)

		ctx := ctxutil.SetUserID(c.Request.Context(), userID)
		ctx = ctxutil.SetUserRole(ctx, role)
		c.Request = c.Request.WithContext(ctx)

		c.Next()
	}
}

// RequireRole rejects callers whose role is not in the allowed set.
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		userRole, exists := c.Get("user_role")
		if !exists {
			resp.Fail(c.Writer, resp.UnAuthorized("unauthorized"))
			c.Abort()
			return
		}

		for _, role := range roles {
			if userRole == role {
				c.Next()
				return
			}
		}

		resp.Fail(c.Writer, resp.Forbidden("insufficient permissions"))
		c.Abort()
	}
}
