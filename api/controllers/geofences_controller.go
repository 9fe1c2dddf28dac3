package controllers

import (
	"errors"
	"net/http"
	"time"

	"SecureAccess/api/authflow"
	"SecureAccess/api/geofence"
	"SecureAccess/api/logging"
	"SecureAccess/api/models"
	"SecureAccess/api/utils/httpctx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/datatypes"
)

type GeofenceDTO struct {
	ID                uint           `json:"id"`
	Name              string         `json:"name"`
	Coordinates       datatypes.JSON `json:"coordinates"`
	CreatedBy         *uint          `json:"created_by"`
	CreatedByUsername string         `json:"created_by_username,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// GetGeofences lists fences newest first with the creator's username.
func (server *Server) GetGeofences(c *gin.Context) {
	ctx := c.Request.Context()
	rows, err := server.Fences.List(ctx)
	if err != nil {
		logging.Report(server.Logger, "list geofences failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}

	creatorIDs := make([]uint, 0, len(rows))
	for _, row := range rows {
		if row.CreatedBy != nil {
			creatorIDs = append(creatorIDs, *row.CreatedBy)
		}
	}
	usernames := map[uint]string{}
	if len(creatorIDs) > 0 {
		var creators []models.User
		if err := server.DB.WithContext(ctx).Select("id", "username").Where("id IN ?", creatorIDs).Find(&creators).Error; err != nil {
			server.Logger.Warn("geofence creators not resolved", zap.Error(err))
		}
		for _, u := range creators {
			usernames[u.ID] = u.Username
		}
	}

	out := make([]GeofenceDTO, 0, len(rows))
	for _, row := range rows {
		dto := GeofenceDTO{
			ID:          row.ID,
			Name:        row.Name,
			Coordinates: row.Coordinates,
			CreatedBy:   row.CreatedBy,
			CreatedAt:   row.CreatedAt,
		}
		if row.CreatedBy != nil {
			dto.CreatedByUsername = usernames[*row.CreatedBy]
		}
		out = append(out, dto)
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   http.StatusOK,
		"response": out,
	})
}

type createGeofenceRequest struct {
	Name        string            `json:"name"`
	Coordinates []geofence.Vertex `json:"coordinates"`
}

func (server *Server) CreateGeofence(c *gin.Context) {
	var req createGeofenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "coordinates must be a list of [lng, lat] pairs"})
		return
	}

	var createdBy *uint
	if uid, ok := httpctx.CurrentUserID(c); ok {
		createdBy = &uid
	}
	row, err := server.Fences.Create(c.Request.Context(), req.Name, req.Coordinates, createdBy)
	switch {
	case errors.Is(err, geofence.ErrNameRequired),
		errors.Is(err, geofence.ErrInvalidPolygon),
		errors.Is(err, geofence.ErrInvalidCoordinates):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		logging.Report(server.Logger, "create geofence failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}

	server.Logger.Info("geofence created",
		zap.Uint("geofence_id", row.ID),
		zap.String("name", row.Name),
		zap.String("by", httpctx.CurrentUsername(c)),
	)
	c.JSON(http.StatusCreated, gin.H{
		"status":   http.StatusCreated,
		"response": row,
	})
}

func (server *Server) DeleteGeofence(c *gin.Context) {
	id, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid geofence ID"})
		return
	}
	err := server.Fences.Delete(c.Request.Context(), id)
	if errors.Is(err, geofence.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Geofence not found"})
		return
	}
	if err != nil {
		logging.Report(server.Logger, "delete geofence failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	server.Logger.Info("geofence deleted", zap.Uint("geofence_id", id), zap.String("by", httpctx.CurrentUsername(c)))
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// CheckGeofence lets the login page test a position before submitting.
func (server *Server) CheckGeofence(c *gin.Context) {
	var req LocationPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": authflow.MessageInvalidLocation})
		return
	}
	point := req.point()
	if err := point.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": authflow.MessageInvalidLocation})
		return
	}

	fences, err := server.Fences.Fences(c.Request.Context())
	if err != nil {
		logging.Report(server.Logger, "load geofences failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	result, err := geofence.IsInside(*point, fences)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": authflow.MessageInvalidLocation})
		return
	}
	c.JSON(http.StatusOK, result)
}
