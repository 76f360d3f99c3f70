package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const contextUserKey = "auth.user"

// Middleware reads the session cookie and aborts with 401 when it is missing
// or invalid. On success the claims are stored on the gin context.
func Middleware(sessions *Sessions, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString, err := c.Cookie(cookieName)
		if err != nil || tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "not logged in",
			})
			return
		}
		claims, err := sessions.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"code":    http.StatusUnauthorized,
				"message": "session expired",
			})
			return
		}
		c.Set(contextUserKey, claims)
		c.Next()
	}
}

// CurrentUser returns the claims the middleware attached, if any.
func CurrentUser(c *gin.Context) (*Claims, bool) {
	v, ok := c.Get(contextUserKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*Claims)
	return claims, ok
}
