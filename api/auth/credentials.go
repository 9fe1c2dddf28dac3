package auth

import (
	"context"
	"errors"
	"fmt"

	"SecureAccess/api/models"
	"SecureAccess/api/security"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

var ErrPrincipalNotFound = errors.New("principal not found")

// Profile is what a session carries about the signed-in user.
type Profile struct {
	ID                uint   `json:"id"`
	Username          string `json:"username"`
	Email             string `json:"email"`
	DisplayName       string `json:"displayName"`
	Roles             []uint `json:"roles"`
	IsAdmin           bool   `json:"isAdmin"`
	RedirectTo        string `json:"redirectTo"`
	DeviceFingerprint string `json:"deviceFingerprint,omitempty"`
}

const (
	RedirectLMS  = "lms"
	RedirectHome = "home"
)

func ProfileFor(u *models.User) Profile {
	roles := make([]uint, 0, len(u.Roles))
	for _, r := range u.Roles {
		roles = append(roles, r.RoleID)
	}
	redirect := RedirectHome
	if u.HasRole(models.RoleTeacher, models.RoleStudent) {
		redirect = RedirectLMS
	}
	return Profile{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName(),
		Roles:       roles,
		IsAdmin:     u.IsAdmin,
		RedirectTo:  redirect,
	}
}

// CredentialStore checks usernames and passwords against the users table.
type CredentialStore struct {
	db *gorm.DB
}

func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

func (s *CredentialStore) FindByUsername(ctx context.Context, username string) (*models.User, error) {
	user, err := (&models.User{}).FindUserByUsername(s.db.WithContext(ctx), username)
	if errors.Is(err, models.ErrUserNotFound) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find user: %w", err)
	}
	return user, nil
}

// Verify compares password with the stored hash. A mismatch is (false, nil);
// an error means the check could not finish, for example because ctx expired.
func (s *CredentialStore) Verify(ctx context.Context, user *models.User, password string) (bool, error) {
	result := make(chan error, 1)
	go func() {
		result <- security.VerifyPassword(user.Password, password)
	}()
	select {
	case err := <-result:
		if err == nil {
			return true, nil
		}
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return false, nil
		}
		return false, fmt.Errorf("verify password: %w", err)
	case <-ctx.Done():
		return false, ctx.Err()
	}
}

func (s *CredentialStore) TouchLastLogin(ctx context.Context, user *models.User) error {
	return user.TouchLastLogin(s.db.WithContext(ctx), nowUTC())
}
