package models

import (
	"time"

	"gorm.io/datatypes"
)

type Session struct {
	ID                string         `gorm:"primaryKey;size:36" json:"id"`
	Username          string         `gorm:"size:100;not null;index" json:"username"`
	DeviceFingerprint *string        `gorm:"size:255" json:"device_fingerprint"`
	Profile           datatypes.JSON `json:"profile"`
	ExpiresAt         time.Time      `gorm:"index" json:"expires_at"`
	CreatedAt         time.Time      `json:"created_at"`
}
