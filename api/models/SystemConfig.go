package models

import "time"

type SystemConfig struct {
	ConfigKey   string    `gorm:"primaryKey;size:100" json:"config_key"`
	ConfigValue string    `gorm:"size:255;not null" json:"config_value"`
	Description string    `gorm:"size:255" json:"description"`
	UpdatedAt   time.Time `json:"updated_at"`
}
