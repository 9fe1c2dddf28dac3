package database

import (
	"context"
	"path/filepath"
	"testing"

	"SecureAccess/api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMigrate_SQLite(t *testing.T) {
	db, err := Open("sqlite", filepath.Join(t.TempDir(), "migrate.db"))
	require.NoError(t, err)
	ctx := context.Background()

	require.NoError(t, Migrate(ctx, db, nil))
	// Running twice is a no-op.
	require.NoError(t, Migrate(ctx, db, nil))

	var settings []models.SystemConfig
	require.NoError(t, db.Order("config_key").Find(&settings).Error)
	require.Len(t, settings, 3)
	assert.Equal(t, "auto_authorize_devices", settings[0].ConfigKey)
	assert.Equal(t, "true", settings[0].ConfigValue)

	first := models.AuthorizedDevice{ID: "a", Fingerprint: "F1", Username: "alice", AutoAuthorized: true, IsActive: true}
	require.NoError(t, db.Create(&first).Error)

	dup := models.AuthorizedDevice{ID: "b", Fingerprint: "F1", Username: "alice", AutoAuthorized: true, IsActive: true}
	assert.Error(t, db.Create(&dup).Error, "second active record for the same fingerprint and user")

	other := models.AuthorizedDevice{ID: "c", Fingerprint: "F1", Username: "bob", AutoAuthorized: true, IsActive: true}
	assert.NoError(t, db.Create(&other).Error)

	require.NoError(t, db.Model(&models.AuthorizedDevice{}).Where("id = ?", "a").Update("is_active", false).Error)
	assert.NoError(t, db.Create(&dup).Error, "revoked records do not block re-registration")
}

func TestOpen_UnknownDriver(t *testing.T) {
	_, err := Open("oracle", "")
	assert.Error(t, err)
}
