package httpctx

import (
	"SecureAccess/api/auth"

	"github.com/gin-gonic/gin"
)

const (
	KeyUserID   = "userID"
	KeyUsername = "username"
	KeyIsAdmin  = "isAdmin"
	KeyProfile  = "profile"
	KeyToken    = "sessionToken"
)

// CurrentUserID retrieves the authenticated user ID from Gin context if present.
func CurrentUserID(c *gin.Context) (uint, bool) {
	val, exists := c.Get(KeyUserID)
	if !exists {
		return 0, false
	}
	uid, ok := val.(uint)
	return uid, ok
}

// CurrentUsername returns the signed-in username, or "".
func CurrentUsername(c *gin.Context) string {
	return c.GetString(KeyUsername)
}

// IsAdminRequest indicates whether the current request is from an admin.
func IsAdminRequest(c *gin.Context) bool {
	val, exists := c.Get(KeyIsAdmin)
	if !exists {
		return false
	}
	isAdmin, ok := val.(bool)
	return ok && isAdmin
}

func CurrentProfile(c *gin.Context) (*auth.Profile, bool) {
	val, exists := c.Get(KeyProfile)
	if !exists {
		return nil, false
	}
	p, ok := val.(*auth.Profile)
	return p, ok && p != nil
}

// SetSession stores the authenticated identity on the request context.
func SetSession(c *gin.Context, token string, p *auth.Profile, isAdmin bool) {
	c.Set(KeyToken, token)
	c.Set(KeyUserID, p.ID)
	c.Set(KeyUsername, p.Username)
	c.Set(KeyIsAdmin, isAdmin)
	c.Set(KeyProfile, p)
}
