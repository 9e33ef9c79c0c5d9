package middleware

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// AdminAuth requires "Authorization: Bearer <token>" on every request. An
// empty token rejects everything.
func AdminAuth(token string) gin.HandlerFunc {
	want := []byte(token)

	return func(c *gin.Context) {
		got, ok := strings.CutPrefix(c.GetHeader("Authorization"), "Bearer ")
		if !ok || len(want) == 0 || subtle.ConstantTimeCompare([]byte(strings.TrimSpace(got)), want) != 1 {
			c.Header("WWW-Authenticate", `Bearer realm="admin"`)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": "admin token required",
			})
			return
		}
		c.Next()
	}
}
