package models

import (
	"testing"
	"time"

	"SecureAccess/api/security"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, db.AutoMigrate(All()...))
	return db
}

func TestSaveUser_HashesPassword(t *testing.T) {
	db := openTestDB(t)

	u := &User{Username: "alice", Password: "password123", IsActive: true}
	saved, err := u.SaveUser(db)
	require.NoError(t, err)
	assert.NotEqual(t, "password123", saved.Password)
	assert.NoError(t, security.VerifyPassword(saved.Password, "password123"))

	// An already hashed password is stored as given.
	hashed := saved.Password
	v := &User{Username: "bob", Password: hashed, IsActive: true}
	_, err = v.SaveUser(db)
	require.NoError(t, err)
	assert.Equal(t, hashed, v.Password)
}

func TestPrepareAndValidate(t *testing.T) {
	u := User{Username: "  Alice ", Email: " Alice@Example.COM ", Password: "pw"}
	u.Prepare()
	assert.Equal(t, "alice", u.Username)
	assert.Equal(t, "alice@example.com", u.Email)

	errs := u.Validate()
	assert.Contains(t, errs, "Invalid_password")
	assert.NotContains(t, errs, "Invalid_email")

	bad := User{Email: "nope"}
	errs = bad.Validate()
	assert.Contains(t, errs, "Required_username")
	assert.Contains(t, errs, "Required_password")
	assert.Contains(t, errs, "Invalid_email")
}

func TestPrepare_UsernameIsNotEscaped(t *testing.T) {
	u := User{Username: " O'Neil ", Password: "password123"}
	u.Prepare()
	assert.Equal(t, "o'neil", u.Username)
	assert.Contains(t, u.Validate(), "Invalid_username")

	ok := User{Username: "Jo.Smith@lms", Password: "password123", Email: "jo@example.com"}
	ok.Prepare()
	assert.Equal(t, "jo.smith@lms", ok.Username)
	assert.Empty(t, ok.Validate())
}

func TestFindUserByUsername(t *testing.T) {
	db := openTestDB(t)
	u := &User{Username: "steven", Password: "password123", IsActive: true, Roles: []UserRole{{RoleID: RoleTeacher}}}
	require.NoError(t, db.Create(u).Error)

	found, err := (&User{}).FindUserByUsername(db, " Steven ")
	require.NoError(t, err)
	assert.Equal(t, u.ID, found.ID)
	assert.True(t, found.HasRole(RoleTeacher, RoleStudent))
	assert.False(t, found.HasRole(RoleStudent))

	_, err = (&User{}).FindUserByUsername(db, "nobody")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = (&User{}).FindUserByID(db, 999)
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSetActiveAndTouchLastLogin(t *testing.T) {
	db := openTestDB(t)
	u := &User{Username: "martin", Password: "password123", IsActive: true}
	require.NoError(t, db.Create(u).Error)

	require.NoError(t, u.SetActive(db, false))
	reloaded, err := (&User{}).FindUserByID(db, u.ID)
	require.NoError(t, err)
	assert.False(t, reloaded.IsActive)

	at := time.Now().Truncate(time.Second)
	require.NoError(t, u.TouchLastLogin(db, at))
	reloaded, err = (&User{}).FindUserByID(db, u.ID)
	require.NoError(t, err)
	require.NotNil(t, reloaded.LastLoginAt)
	assert.WithinDuration(t, at, *reloaded.LastLoginAt, time.Second)
}

func TestDisplayName(t *testing.T) {
	assert.Equal(t, "alice", (&User{Username: "alice"}).DisplayName())
	assert.Equal(t, "Alice Smith", (&User{Username: "alice", FirstName: "Alice", LastName: "Smith"}).DisplayName())
}
