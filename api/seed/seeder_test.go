package seed

import (
	"context"
	"testing"

	"SecureAccess/api/geofence"
	"SecureAccess/api/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func TestAdmin_CreatesOnce(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	acct := AdminAccount{Username: "Root", Password: "secret123", Email: "root@example.com"}

	require.NoError(t, Admin(ctx, db, acct, zap.NewNop()))
	require.NoError(t, Admin(ctx, db, acct, zap.NewNop()))

	var admins []models.User
	require.NoError(t, db.Where("username = ?", "root").Find(&admins).Error)
	require.Len(t, admins, 1)
	assert.True(t, admins[0].IsAdmin)
	assert.NotEqual(t, "secret123", admins[0].Password)
}

func TestAdmin_PromotesExistingUser(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	require.NoError(t, db.Create(&models.User{Username: "root", Password: "secret123", IsActive: true}).Error)

	require.NoError(t, Admin(ctx, db, AdminAccount{Username: "root", Password: "other-pass"}, zap.NewNop()))

	var u models.User
	require.NoError(t, db.Where("username = ?", "root").Take(&u).Error)
	assert.True(t, u.IsAdmin)
}

func TestAdmin_SkipsWithoutCredentials(t *testing.T) {
	db := openDB(t)
	require.NoError(t, Admin(context.Background(), db, AdminAccount{}, zap.NewNop()))

	var count int64
	require.NoError(t, db.Model(&models.User{}).Count(&count).Error)
	assert.Zero(t, count)
}

func TestLoad_IsRepeatable(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()
	fences := geofence.NewStore(db, nil)

	require.NoError(t, Load(ctx, db, fences, zap.NewNop()))
	require.NoError(t, Load(ctx, db, fences, zap.NewNop()))

	var users int64
	require.NoError(t, db.Model(&models.User{}).Count(&users).Error)
	assert.Equal(t, int64(2), users)

	var teacher models.User
	got, err := teacher.FindUserByUsername(db, "steven")
	require.NoError(t, err)
	assert.True(t, got.HasRole(models.RoleTeacher))

	list, err := fences.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}
