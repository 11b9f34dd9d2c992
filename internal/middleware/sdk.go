package middleware

import (
	"net/http"

	"safeflag/internal/dto/resp"
	"safeflag/internal/repository"
	"safeflag/pkg/logger"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const SDKKeyHeader = "X-SafeFlag-Key"

// SDKAuthMiddleware admits stream clients whose key is active for the requested env.
func SDKAuthMiddleware(repo repository.SDKRepository) gin.HandlerFunc {
	return func(c *gin.Context) {
		apiKey := c.GetHeader(SDKKeyHeader)
		env := c.Query("env")

		if apiKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, resp.Fail("Unauthorized", "missing sdk key", nil))
			return
		}

		ok, err := repo.ValidateAPIKey(c.Request.Context(), apiKey, env)
		if err != nil {
			logger.Error("sdk key lookup failed", zap.Error(err))
		}
		if err != nil || !ok {
			c.AbortWithStatusJSON(http.StatusForbidden, resp.Fail("Forbidden", "sdk key not valid for this environment", nil))
			return
		}

		c.Next()
	}
}
