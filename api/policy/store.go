package policy

import (
	"context"
	"errors"
	"fmt"
	"time"

	"SecureAccess/api/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotSet = errors.New("policy setting not found")

// Store keeps settings in the system_configs table.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Settings(ctx context.Context) (map[string]string, error) {
	rows, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(rows))
	for _, row := range rows {
		out[row.ConfigKey] = row.ConfigValue
	}
	return out, nil
}

func (s *Store) List(ctx context.Context) ([]models.SystemConfig, error) {
	var rows []models.SystemConfig
	if err := s.db.WithContext(ctx).Order("config_key ASC").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list policy settings: %w", err)
	}
	return rows, nil
}

func (s *Store) Get(ctx context.Context, key string) (*models.SystemConfig, error) {
	var row models.SystemConfig
	err := s.db.WithContext(ctx).Where("config_key = ?", key).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotSet
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Set validates and upserts one setting.
func (s *Store) Set(ctx context.Context, key, value string) (*models.SystemConfig, error) {
	canonical, err := Validate(key, value)
	if err != nil {
		return nil, err
	}
	def, _ := Lookup(key)
	row := models.SystemConfig{
		ConfigKey:   key,
		ConfigValue: canonical,
		Description: def.Description,
		UpdatedAt:   time.Now(),
	}
	err = s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "config_key"}},
		DoUpdates: clause.AssignmentColumns([]string{"config_value", "updated_at"}),
	}).Create(&row).Error
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// Reset writes every known key back to its default inside one transaction.
func (s *Store) Reset(ctx context.Context) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inner := &Store{db: tx}
		for _, def := range Definitions {
			if _, err := inner.Set(ctx, def.Key, def.Default); err != nil {
				return err
			}
		}
		return nil
	})
}

// EnsureDefaults inserts missing keys without touching existing values.
func (s *Store) EnsureDefaults(ctx context.Context) error {
	for _, def := range Definitions {
		row := models.SystemConfig{
			ConfigKey:   def.Key,
			ConfigValue: def.Default,
			Description: def.Description,
			UpdatedAt:   time.Now(),
		}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&row).Error
		if err != nil {
			return err
		}
	}
	return nil
}
