package controllers

import (
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"strings"

	"SecureAccess/api/auth"
	"SecureAccess/api/authflow"
	"SecureAccess/api/devices"
	"SecureAccess/api/geofence"
	"SecureAccess/api/logging"

	"github.com/gin-gonic/gin"
)

type LoginRequest struct {
	Username          string           `json:"username"`
	Password          string           `json:"password"`
	DeviceFingerprint string           `json:"deviceFingerprint"`
	DeviceInfo        json.RawMessage  `json:"deviceInfo"`
	Location          *LocationPayload `json:"location"`
}

// LocationPayload keeps lat/lng optional so a half-filled location is
// reported as invalid rather than read as (0, 0).
type LocationPayload struct {
	Lat *float64 `json:"lat"`
	Lng *float64 `json:"lng"`
}

func (l *LocationPayload) point() *geofence.Point {
	if l == nil {
		return nil
	}
	p := geofence.Point{Lat: math.NaN(), Lng: math.NaN()}
	if l.Lat != nil {
		p.Lat = *l.Lat
	}
	if l.Lng != nil {
		p.Lng = *l.Lng
	}
	return &p
}

// Login runs the location, device and credential checks and opens a session.
func (server *Server) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "invalid request body"})
		return
	}

	out := server.Auth.Login(c.Request.Context(), authflow.Request{
		Username:          req.Username,
		Password:          req.Password,
		DeviceFingerprint: req.DeviceFingerprint,
		DeviceInfo:        req.DeviceInfo,
		Location:          req.Location.point(),
		SourceAddress:     c.ClientIP(),
		UserAgent:         c.Request.UserAgent(),
	})

	if !out.Success() {
		body := gin.H{"success": false, "error": out.Reason.ClientMessage()}
		if out.Reason.RequiresManualApproval() {
			body["requiresManualApproval"] = true
			body["deviceFingerprint"] = out.DeviceFingerprint
		}
		c.JSON(out.Reason.HTTPStatus(), body)
		return
	}

	server.setSessionCookie(c, out.Session.Token, int(server.Sessions.TTL().Seconds()))
	c.JSON(http.StatusOK, gin.H{
		"success":            true,
		"principal":          out.Profile,
		"sessionEstablished": true,
		"redirectTo":         out.Profile.RedirectTo,
		"token":              out.Session.Token,
		"expiresAt":          out.Session.ExpiresAt,
	})
}

type verifyDeviceRequest struct {
	DeviceFingerprint string `json:"deviceFingerprint"`
	Username          string `json:"username"`
}

// VerifyDevice tells the login page whether a fingerprint is already trusted.
func (server *Server) VerifyDevice(c *gin.Context) {
	var req verifyDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.DeviceFingerprint) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": authflow.MessageDeviceRequired})
		return
	}

	record, err := server.Devices.Verify(c.Request.Context(), req.DeviceFingerprint, req.Username)
	if errors.Is(err, devices.ErrNotFound) {
		c.JSON(http.StatusOK, gin.H{"authorized": false, "requiresManualApproval": true})
		return
	}
	if err != nil {
		logging.Report(server.Logger, "verify device failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authorized": true, "deviceId": record.ID})
}

// CheckSession reports the signed-in profile, if any. It never fails with 401.
func (server *Server) CheckSession(c *gin.Context) {
	token := auth.ExtractToken(c.Request, server.Config.SessionCookie)
	if token == "" {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	profile, err := server.Sessions.Check(c.Request.Context(), token)
	if errors.Is(err, auth.ErrNoSession) {
		c.JSON(http.StatusOK, gin.H{"authenticated": false})
		return
	}
	if err != nil {
		logging.Report(server.Logger, "check session failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	c.JSON(http.StatusOK, gin.H{"authenticated": true, "user": profile})
}

func (server *Server) Logout(c *gin.Context) {
	token := auth.ExtractToken(c.Request, server.Config.SessionCookie)
	if token != "" {
		if err := server.Sessions.Destroy(c.Request.Context(), token); err != nil {
			logging.Report(server.Logger, "logout failed", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
			return
		}
	}
	server.setSessionCookie(c, "", -1)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

func (server *Server) setSessionCookie(c *gin.Context, value string, maxAge int) {
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(server.Config.SessionCookie, value, maxAge, "/", "", server.Config.IsProduction(), true)
}
