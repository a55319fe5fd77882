package middleware

import (
	"crypto/subtle"

	"github.com/gin-gonic/gin"
	"golang.org/x/crypto/bcrypt"

	"github.com/meetscribe/backend/pkg/response"
)

// BasicAuth guards the management API with HTTP basic auth. The stored
// password is a bcrypt hash. An empty hash disables the guard, which is
// only sensible for local development.
func BasicAuth(username, passwordHash string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if passwordHash == "" {
			c.Next()
			return
		}
		user, pass, ok := c.Request.BasicAuth()
		if !ok {
			c.Header("WWW-Authenticate", `Basic realm="management"`)
			response.Unauthorized(c, "authentication required")
			c.Abort()
			return
		}
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(pass)) == nil
		if !userOK || !passOK {
			c.Header("WWW-Authenticate", `Basic realm="management"`)
			response.Unauthorized(c, "invalid credentials")
			c.Abort()
			return
		}
		c.Next()
	}
}
