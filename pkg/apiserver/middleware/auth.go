package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/perkflow/perkflow/pkg/auth"
)

// Auth guards the admin API with bearer JWTs issued by the token manager.
func Auth(tokens *auth.AdminTokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := bearerToken(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing authorization"})
			return
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		c.Set("admin_id", claims.Subject)
		c.Set("admin_role", claims.Role)
		c.Next()
	}
}

// CronAuth guards the scheduler endpoints: the shared cron secret (query key
// or bearer) or a valid admin token both pass.
func CronAuth(cronSecret string, tokens *auth.AdminTokenManager) gin.HandlerFunc {
	return func(c *gin.Context) {
		if cronSecret != "" && c.Query("key") == cronSecret {
			c.Next()
			return
		}

		if token, ok := bearerToken(c); ok {
			if cronSecret != "" && token == cronSecret {
				c.Next()
				return
			}
			if _, err := tokens.Validate(token); err == nil {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
	}
}

func bearerToken(c *gin.Context) (string, bool) {
	authorization := c.GetHeader("Authorization")
	if authorization == "" {
		return "", false
	}
	parts := strings.SplitN(authorization, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	if token == "" {
		return "", false
	}
	return token, true
}
