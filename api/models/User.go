package models

import (
	"errors"
	"html"
	"regexp"
	"strings"
	"time"

	"SecureAccess/api/security"

	"github.com/badoux/checkmail"
	"gorm.io/gorm"
)

// Role ids handed over by the LMS. Holders of either get the LMS redirect hint.
const (
	RoleTeacher uint = 4
	RoleStudent uint = 5
)

var ErrUserNotFound = errors.New("User not found")

// Usernames are lookup keys, so they are restricted rather than escaped.
var usernamePattern = regexp.MustCompile(`^[a-z0-9._@-]{1,100}$`)

type User struct {
	ID          uint       `gorm:"primary_key;autoIncrement" json:"id"`
	Username    string     `gorm:"size:100;not null;uniqueIndex" json:"username"`
	Email       string     `gorm:"size:100" json:"email"`
	Password    string     `gorm:"size:255;not null" json:"-"`
	FirstName   string     `gorm:"size:100" json:"first_name"`
	LastName    string     `gorm:"size:100" json:"last_name"`
	IsAdmin     bool       `gorm:"not null;default:false" json:"is_admin"`
	IsActive    bool       `gorm:"not null;default:true" json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at"`
	Roles       []UserRole `gorm:"foreignKey:UserID" json:"roles,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

type UserRole struct {
	ID        uint   `gorm:"primary_key;autoIncrement" json:"id"`
	UserID    uint   `gorm:"not null;index" json:"user_id"`
	RoleID    uint   `gorm:"not null" json:"role_id"`
	ShortName string `gorm:"size:50" json:"short_name"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.Password == "" || security.IsHashed(u.Password) {
		return nil
	}
	hashed, err := security.Hash(u.Password)
	if err != nil {
		return err
	}
	u.Password = string(hashed)
	return nil
}

func (u *User) Prepare() {
	u.Username = strings.ToLower(strings.TrimSpace(u.Username))
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	u.FirstName = html.EscapeString(strings.TrimSpace(u.FirstName))
	u.LastName = html.EscapeString(strings.TrimSpace(u.LastName))
}

func (u *User) Validate() map[string]string {
	errorMessages := make(map[string]string)
	if u.Username == "" {
		errorMessages["Required_username"] = "Required Username"
	} else if !usernamePattern.MatchString(u.Username) {
		errorMessages["Invalid_username"] = "Username may only contain letters, digits and . _ @ -"
	}
	if u.Password == "" {
		errorMessages["Required_password"] = "Required Password"
	} else if len(u.Password) < 6 {
		errorMessages["Invalid_password"] = "Password should be at least 6 characters"
	}
	if u.Email != "" {
		if err := checkmail.ValidateFormat(u.Email); err != nil {
			errorMessages["Invalid_email"] = "Invalid Email"
		}
	}
	return errorMessages
}

// DisplayName falls back to the username when no real name is on file.
func (u *User) DisplayName() string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		return u.Username
	}
	return name
}

func (u *User) HasRole(ids ...uint) bool {
	for _, r := range u.Roles {
		for _, id := range ids {
			if r.RoleID == id {
				return true
			}
		}
	}
	return false
}

func (u *User) SaveUser(db *gorm.DB) (*User, error) {
	if err := db.Create(u).Error; err != nil {
		return nil, err
	}
	return u, nil
}

func (u *User) FindUserByUsername(db *gorm.DB, username string) (*User, error) {
	var user User
	err := db.Preload("Roles").
		Where("username = ?", strings.ToLower(strings.TrimSpace(username))).
		Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (u *User) FindUserByID(db *gorm.DB, uid uint) (*User, error) {
	var user User
	err := db.Where("id = ?", uid).Take(&user).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// SetActive goes through Update so that false is written despite the column default.
func (u *User) SetActive(db *gorm.DB, active bool) error {
	if err := db.Model(&User{}).Where("id = ?", u.ID).Update("is_active", active).Error; err != nil {
		return err
	}
	u.IsActive = active
	return nil
}

func (u *User) TouchLastLogin(db *gorm.DB, at time.Time) error {
	return db.Model(&User{}).Where("id = ?", u.ID).Update("last_login_at", at).Error
}
