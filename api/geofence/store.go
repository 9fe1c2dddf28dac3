package geofence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"SecureAccess/api/logging"
	"SecureAccess/api/models"

	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var (
	ErrNotFound     = errors.New("geofence not found")
	ErrNameRequired = errors.New("geofence name is required")
)

// Store persists fences as models.GeoFence rows.
type Store struct {
	db     *gorm.DB
	logger *zap.Logger
}

func NewStore(db *gorm.DB, logger *zap.Logger) *Store {
	return &Store{db: db, logger: logging.OrNop(logger)}
}

// Fences loads every stored fence in creation order. Rows whose ring no longer
// parses are skipped and logged rather than failing the whole evaluation.
func (s *Store) Fences(ctx context.Context) ([]Fence, error) {
	var rows []models.GeoFence
	if err := s.db.WithContext(ctx).Order("id ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load geofences: %w", err)
	}
	fences := make([]Fence, 0, len(rows))
	for _, row := range rows {
		ring, err := decodeRing(row.Coordinates)
		if err != nil {
			s.logger.Warn("skipping malformed geofence", zap.Uint("geofence_id", row.ID), zap.Error(err))
			continue
		}
		fences = append(fences, Fence{ID: row.ID, Name: row.Name, Polygon: ring})
	}
	return fences, nil
}

func (s *Store) List(ctx context.Context) ([]models.GeoFence, error) {
	var rows []models.GeoFence
	if err := s.db.WithContext(ctx).Order("created_at DESC").Order("id DESC").Find(&rows).Error; err != nil {
		return nil, err
	}
	return rows, nil
}

func (s *Store) Create(ctx context.Context, name string, ring []Vertex, createdBy *uint) (*models.GeoFence, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrNameRequired
	}
	closed, err := NormalizeRing(ring)
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(closed)
	if err != nil {
		return nil, err
	}
	row := models.GeoFence{
		Name:        name,
		Coordinates: datatypes.JSON(raw),
		CreatedBy:   createdBy,
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return nil, err
	}
	return &row, nil
}

func (s *Store) Delete(ctx context.Context, id uint) error {
	res := s.db.WithContext(ctx).Delete(&models.GeoFence{}, id)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func decodeRing(raw datatypes.JSON) ([]Vertex, error) {
	var ring []Vertex
	if err := json.Unmarshal(raw, &ring); err != nil {
		return nil, err
	}
	return NormalizeRing(ring)
}
