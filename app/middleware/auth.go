package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"fleetd/pkg/config"
	"fleetd/pkg/logger"

	"github.com/gin-gonic/gin"
)

// AuthMiddleware gates mutating routes behind a static bearer token.
// With no api_key configured the fleet runs open, for single-tenant
// deployments that terminate auth at their ingress.
func AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := config.GlobalConfig.Server.APIKey
		if apiKey == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(token), []byte(apiKey)) != 1 {
			logger.WarnCtx(c.Request.Context(), "rejected request with invalid api key, path: %s", c.Request.URL.Path)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}

		c.Next()
	}
}
