// internal/middleware/auth.go
package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/wavhaven-backend/internal/models"
	"github.com/javajoker/wavhaven-backend/internal/policy"
	"github.com/javajoker/wavhaven-backend/internal/utils"
)

// Authenticator resolves a bearer session token to a local user.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*models.User, error)
}

func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.GetHeader("Authorization")
	if authHeader == "" {
		return "", false
	}

	// Extract token from "Bearer <token>"
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

func setUser(c *gin.Context, user *models.User) {
	c.Set("user_id", user.ID)
	c.Set("user_role", user.Role)
}

// AuthRequired rejects requests without a valid session. The role is read
// from the database on every request so promotions apply immediately.
func AuthRequired(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			utils.UnauthorizedResponse(c, "")
			c.Abort()
			return
		}

		user, err := auth.Authenticate(c.Request.Context(), token)
		if err != nil {
			utils.HandleServiceError(c, err)
			c.Abort()
			return
		}

		setUser(c, user)
		c.Next()
	}
}

// OptionalAuth identifies the caller when a valid token is present and
// otherwise lets the request through as a guest.
func OptionalAuth(auth Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.Next()
			return
		}

		if user, err := auth.Authenticate(c.Request.Context(), token); err == nil {
			setUser(c, user)
		}
		c.Next()
	}
}

// Authorize gates a route on the role part of the policy. Ownership checks
// happen in the services once the resource is loaded.
func Authorize(kind policy.ResourceKind, action policy.Action) gin.HandlerFunc {
	return func(c *gin.Context) {
		subject := utils.GetSubjectFromContext(c)
		if decision := policy.Authorize(subject, policy.On(kind), action); !decision.Allowed {
			if !subject.Authenticated() {
				utils.UnauthorizedResponse(c, "")
			} else {
				utils.ForbiddenResponse(c, "")
			}
			c.Abort()
			return
		}
		c.Next()
	}
}

func AdminRequired() gin.HandlerFunc {
	return Authorize(policy.ResourceDashboard, policy.ActionRead)
}
