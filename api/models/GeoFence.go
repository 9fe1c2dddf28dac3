package models

import (
	"time"

	"gorm.io/datatypes"
)

// GeoFence stores its ring as a JSON array of [lng, lat] pairs.
type GeoFence struct {
	ID          uint           `gorm:"primary_key;autoIncrement" json:"id"`
	Name        string         `gorm:"size:255;not null" json:"name"`
	Coordinates datatypes.JSON `gorm:"not null" json:"coordinates"`
	CreatedBy   *uint          `gorm:"index" json:"created_by"`
	CreatedAt   time.Time      `json:"created_at"`
}
