package controllers

import (
	"errors"
	"net/http"

	"SecureAccess/api/audit"
	"SecureAccess/api/authflow"
	"SecureAccess/api/logging"
	"SecureAccess/api/policy"
	"SecureAccess/api/utils/httpctx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func (server *Server) GetStats(c *gin.Context) {
	stats, err := server.Reports.Stats(c.Request.Context())
	if err != nil {
		logging.Report(server.Logger, "stats failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GetLogs pages through the authentication trail. Query: page, limit,
// username (substring), success.
func (server *Server) GetLogs(c *gin.Context) {
	page, err := server.AuditLog.Query(c.Request.Context(), audit.Filter{
		Principal: c.Query("username"),
		Success:   parseOptionalBool(c.Query("success")),
		Page:      parsePage(c.Query("page")),
		PageSize:  parseLimit(c.Query("limit")),
	})
	if err != nil {
		logging.Report(server.Logger, "query auth logs failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	c.JSON(http.StatusOK, page)
}

func (server *Server) GetConfig(c *gin.Context) {
	rows, err := server.PolicyStore.List(c.Request.Context())
	if err != nil {
		logging.Report(server.Logger, "list policy failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	effective, fromDefaults := server.Policy.Resolve(c.Request.Context())
	c.JSON(http.StatusOK, gin.H{
		"settings":     rows,
		"effective":    effective,
		"fromDefaults": fromDefaults,
	})
}

func (server *Server) GetConfigValue(c *gin.Context) {
	key := c.Param("key")
	if _, known := policy.Lookup(key); !known {
		c.JSON(http.StatusNotFound, gin.H{"error": "Unknown setting"})
		return
	}
	row, err := server.PolicyStore.Get(c.Request.Context(), key)
	if errors.Is(err, policy.ErrNotSet) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Setting not found"})
		return
	}
	if err != nil {
		logging.Report(server.Logger, "get policy failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	c.JSON(http.StatusOK, row)
}

type setConfigRequest struct {
	Value string `json:"value"`
}

func (server *Server) SetConfigValue(c *gin.Context) {
	key := c.Param("key")
	var req setConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	row, err := server.PolicyStore.Set(c.Request.Context(), key, req.Value)
	switch {
	case errors.Is(err, policy.ErrUnknownKey):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	case errors.Is(err, policy.ErrInvalidValue):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		logging.Report(server.Logger, "set policy failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	policy.Invalidate(c.Request.Context())

	server.Logger.Info("policy setting changed",
		zap.String("key", key),
		zap.String("value", row.ConfigValue),
		zap.String("by", httpctx.CurrentUsername(c)),
	)
	c.JSON(http.StatusOK, gin.H{"success": true, "setting": row})
}

func (server *Server) ResetConfig(c *gin.Context) {
	if err := server.PolicyStore.Reset(c.Request.Context()); err != nil {
		logging.Report(server.Logger, "reset policy failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	policy.Invalidate(c.Request.Context())
	server.Logger.Info("policy reset to defaults", zap.String("by", httpctx.CurrentUsername(c)))
	c.JSON(http.StatusOK, gin.H{"success": true, "effective": policy.Defaults})
}
