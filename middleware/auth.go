package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"bookline/utils"

	"github.com/gin-gonic/gin"
)

// OpsAuthMiddleware guards the ops API with a static bearer token from config.
func OpsAuthMiddleware(token string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if token == "" {
			utils.JSONError(c, http.StatusServiceUnavailable, "Ops API disabled", "no ops token configured")
			c.Abort()
			return
		}
		presented := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(presented), []byte(token)) != 1 {
			utils.JSONError(c, http.StatusUnauthorized, "Unauthorized", "invalid ops token")
			c.Abort()
			return
		}
		c.Next()
	}
}
