package middlewares

import (
	"net/http"

	"SecureAccess/api/utils/httpctx"

	"github.com/gin-gonic/gin"
)

// AdminOnlyMiddleware must run after SessionAuthMiddleware.
func AdminOnlyMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpctx.IsAdminRequest(c) {
			c.Next()
			return
		}
		c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
	}
}
