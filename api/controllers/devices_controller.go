package controllers

import (
	"encoding/json"
	"errors"
	"net/http"

	"SecureAccess/api/authflow"
	"SecureAccess/api/devices"
	"SecureAccess/api/logging"
	"SecureAccess/api/metrics"
	"SecureAccess/api/utils/httpctx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const (
	defaultCleanupDays = 90
	maxCleanupDays     = 365
)

// GetDevices lists devices, most recently seen first. Optional filters:
// ?username= and ?active=true|false.
func (server *Server) GetDevices(c *gin.Context) {
	list, err := server.Devices.List(c.Request.Context(), devices.Filter{
		Principal: c.Query("username"),
		Active:    parseOptionalBool(c.Query("active")),
	})
	if err != nil {
		logging.Report(server.Logger, "list devices failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   http.StatusOK,
		"response": list,
	})
}

type authorizeDeviceRequest struct {
	Fingerprint string          `json:"fingerprint"`
	Username    string          `json:"username"`
	AdminNotes  string          `json:"admin_notes"`
	DeviceInfo  json.RawMessage `json:"device_info"`
}

// AuthorizeDevice registers a device for a user on the administrator's behalf.
func (server *Server) AuthorizeDevice(c *gin.Context) {
	var req authorizeDeviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Fingerprint == "" || req.Username == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "fingerprint and username are required"})
		return
	}

	record, err := server.Devices.Authorize(c.Request.Context(), devices.Authorization{
		Fingerprint:  req.Fingerprint,
		Principal:    req.Username,
		Notes:        req.AdminNotes,
		AuthorizedBy: httpctx.CurrentUsername(c),
		Metadata:     req.DeviceInfo,
	})
	switch {
	case errors.Is(err, devices.ErrInvalidFingerprint):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, devices.ErrAlreadyAuthorized):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case errors.Is(err, devices.ErrPrincipalNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case err != nil:
		logging.Report(server.Logger, "authorize device failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"success":  true,
		"deviceId": record.ID,
		"response": record,
	})
}

// RevokeDevice deactivates one device. Revoking an already revoked device succeeds.
func (server *Server) RevokeDevice(c *gin.Context) {
	id := c.Param("id")
	err := server.Devices.Revoke(c.Request.Context(), id)
	if errors.Is(err, devices.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Device not found"})
		return
	}
	if err != nil {
		logging.Report(server.Logger, "revoke device failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	server.Logger.Info("device revoked",
		zap.String("device_id", id),
		zap.String("by", httpctx.CurrentUsername(c)),
	)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

type cleanupRequest struct {
	Days *int `json:"days"`
}

// CleanupDevices revokes devices unused for the given number of days.
func (server *Server) CleanupDevices(c *gin.Context) {
	var req cleanupRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
			return
		}
	}
	days := defaultCleanupDays
	if req.Days != nil {
		days = *req.Days
	}
	if days < 1 || days > maxCleanupDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 1 and 365"})
		return
	}

	ids, err := server.Devices.SweepInactive(c.Request.Context(), days)
	if err != nil {
		logging.Report(server.Logger, "device cleanup failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	metrics.DevicesSweptTotal.Add(float64(len(ids)))

	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"devicesRevoked": len(ids),
		"devices":        ids,
	})
}
