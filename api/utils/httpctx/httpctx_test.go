package httpctx

import (
	"net/http/httptest"
	"testing"

	"SecureAccess/api/auth"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func TestEmptyContext(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := CurrentUserID(c)
	assert.False(t, ok)
	assert.False(t, IsAdminRequest(c))
	assert.Empty(t, CurrentUsername(c))
	_, ok = CurrentProfile(c)
	assert.False(t, ok)
}

func TestSetSession(t *testing.T) {
	gin.SetMode(gin.TestMode)
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	SetSession(c, "tok", &auth.Profile{ID: 7, Username: "alice"}, true)

	uid, ok := CurrentUserID(c)
	assert.True(t, ok)
	assert.Equal(t, uint(7), uid)
	assert.Equal(t, "alice", CurrentUsername(c))
	assert.True(t, IsAdminRequest(c))
	p, ok := CurrentProfile(c)
	assert.True(t, ok)
	assert.Equal(t, "alice", p.Username)
}
