package controllers

import (
	"SecureAccess/api/middlewares"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) initializeRoutes() {
	requireSession := middlewares.SessionAuthMiddleware(s.Sessions, s.DB, s.Config.SessionCookie)
	requireAdmin := middlewares.AdminOnlyMiddleware()

	s.Router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := s.Router.Group("/api")
	{
		api.GET("/health", s.Health)

		// Auth routes
		api.POST("/auth/login", middlewares.LoginRateLimitMiddleware(), s.Login)
		api.POST("/auth/verify-device", s.VerifyDevice)
		api.GET("/auth/check-session", s.CheckSession)
		api.POST("/auth/logout", s.Logout)

		// Geofence routes; the login page reads fences and pre-checks positions.
		api.GET("/geofences", s.GetGeofences)
		api.POST("/geofences/check", s.CheckGeofence)
		api.POST("/geofences", requireSession, requireAdmin, s.CreateGeofence)
		api.DELETE("/geofences/:id", requireSession, requireAdmin, s.DeleteGeofence)

		api.GET("/users/:id/roles", requireSession, s.GetUserRoles)
	}

	admin := s.Router.Group("/api/admin", requireSession, requireAdmin)
	{
		admin.GET("/stats", s.GetStats)

		admin.GET("/users", s.GetUsers)
		admin.POST("/users", s.CreateUser)
		admin.POST("/users/:id/toggle", s.ToggleUser)

		admin.GET("/devices", s.GetDevices)
		admin.POST("/devices/authorize", s.AuthorizeDevice)
		admin.POST("/devices/cleanup", s.CleanupDevices)
		admin.POST("/devices/:id/revoke", s.RevokeDevice)

		admin.GET("/logs", s.GetLogs)

		admin.GET("/config", s.GetConfig)
		admin.POST("/config/reset", s.ResetConfig)
		admin.GET("/config/:key", s.GetConfigValue)
		admin.POST("/config/:key", s.SetConfigValue)
	}
}
