package controllers

import (
	"context"
	"net/http"
	"time"

	"SecureAccess/api/cache"

	"github.com/gin-gonic/gin"
)

// Health reports database and redis reachability. Redis is optional, so only
// a database failure turns the response into a 500.
func (server *Server) Health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	body := gin.H{
		"status":    "OK",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
		"version":   version,
		"database":  "connected",
		"redis":     "disabled",
	}
	status := http.StatusOK

	sqlDB, err := server.DB.DB()
	if err == nil {
		err = sqlDB.PingContext(ctx)
	}
	if err != nil {
		body["status"] = "ERROR"
		body["database"] = "disconnected"
		status = http.StatusInternalServerError
	}

	if cache.Available() {
		if err := cache.Ping(ctx); err != nil {
			body["redis"] = "unreachable"
		} else {
			body["redis"] = "connected"
		}
	}

	c.JSON(status, body)
}
