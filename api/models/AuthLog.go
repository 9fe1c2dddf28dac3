package models

import (
	"time"

	"gorm.io/datatypes"
)

const (
	AuthStepLocation    = "location"
	AuthStepDevice      = "device"
	AuthStepCredentials = "credentials"
)

// AuthLog is one append-only audit row per authentication stage outcome.
type AuthLog struct {
	ID                uint           `gorm:"primary_key;autoIncrement" json:"id"`
	Username          *string        `gorm:"size:100;index" json:"username"`
	DeviceFingerprint *string        `gorm:"size:255" json:"device_fingerprint"`
	LocationInfo      datatypes.JSON `json:"location_info"`
	AuthMethod        string         `gorm:"size:50" json:"auth_method"`
	AuthStep          string         `gorm:"size:20;not null" json:"auth_step"`
	Success           bool           `gorm:"not null" json:"success"`
	ErrorMessage      *string        `gorm:"type:text" json:"error_message"`
	IPAddress         string         `gorm:"size:64" json:"ip_address"`
	UserAgent         string         `gorm:"size:512" json:"user_agent"`
	CreatedAt         time.Time      `gorm:"index" json:"created_at"`
}
