package models

import (
	"time"

	"gorm.io/datatypes"
)

// AuthorizedDevice is a trusted device for one principal. Records are never
// deleted; revocation flips IsActive. At most one active record exists per
// (fingerprint, username), enforced by a partial unique index.
type AuthorizedDevice struct {
	ID                 string         `gorm:"primaryKey;size:36" json:"id"`
	Fingerprint        string         `gorm:"size:255;not null;index" json:"fingerprint"`
	DeviceHash         *string        `gorm:"size:64;index" json:"device_hash,omitempty"`
	Username           string         `gorm:"size:100;not null;index" json:"username"`
	DeviceInfo         datatypes.JSON `json:"device_info"`
	LocationInfo       datatypes.JSON `json:"location_info"`
	AutoAuthorized     bool           `gorm:"not null;default:false" json:"auto_authorized"`
	ManuallyAuthorized bool           `gorm:"not null;default:false" json:"manually_authorized"`
	AuthorizedBy       *string        `gorm:"size:100" json:"authorized_by"`
	AdminNotes         *string        `gorm:"type:text" json:"admin_notes"`
	IsActive           bool           `gorm:"not null;default:true;index" json:"is_active"`
	CreatedAt          time.Time      `json:"created_at"`
	LastSeenAt         *time.Time     `gorm:"index" json:"last_seen_at"`
}
