package seed

import (
	"context"
	"errors"
	"fmt"

	"SecureAccess/api/geofence"
	"SecureAccess/api/logging"
	"SecureAccess/api/models"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// AdminAccount is the bootstrap administrator read from the environment.
type AdminAccount struct {
	Username string
	Password string
	Email    string
}

// Admin creates the bootstrap administrator when it does not exist yet and
// makes sure an existing one keeps the admin flag. Missing credentials skip
// the step.
func Admin(ctx context.Context, db *gorm.DB, acct AdminAccount, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	if acct.Username == "" || acct.Password == "" {
		logger.Info("ADMIN_USERNAME or ADMIN_PASSWORD not set, skipping admin creation")
		return nil
	}

	var existing models.User
	existingUser, err := existing.FindUserByUsername(db.WithContext(ctx), acct.Username)
	if errors.Is(err, models.ErrUserNotFound) {
		admin := models.User{
			Username: acct.Username,
			Email:    acct.Email,
			Password: acct.Password,
			IsAdmin:  true,
			IsActive: true,
		}
		admin.Prepare()
		if msgs := admin.Validate(); len(msgs) > 0 {
			return fmt.Errorf("admin account is invalid: %v", msgs)
		}
		if _, err := admin.SaveUser(db.WithContext(ctx)); err != nil {
			return fmt.Errorf("create admin: %w", err)
		}
		logger.Info("initial admin created", zap.String("username", admin.Username))
		return nil
	}
	if err != nil {
		return err
	}

	if !existingUser.IsAdmin {
		logger.Info("ensuring admin flag", zap.String("username", existingUser.Username))
		return db.WithContext(ctx).Model(&models.User{}).
			Where("id = ?", existingUser.ID).
			Update("is_admin", true).Error
	}
	return nil
}

func sampleUsers() []models.User {
	return []models.User{
		{
			Username:  "steven",
			Email:     "steven@example.com",
			Password:  "password",
			FirstName: "Steven",
			LastName:  "Teacher",
			IsActive:  true,
			Roles:     []models.UserRole{{RoleID: models.RoleTeacher, ShortName: "editingteacher"}},
		},
		{
			Username:  "martin",
			Email:     "luther@example.com",
			Password:  "password",
			FirstName: "Martin",
			LastName:  "Student",
			IsActive:  true,
			Roles:     []models.UserRole{{RoleID: models.RoleStudent, ShortName: "student"}},
		},
	}
}

// Square around the origin, wide enough for local testing with fake coordinates.
var demoFence = []geofence.Vertex{{-10, -10}, {-10, 10}, {10, 10}, {10, -10}}

// Load inserts development fixtures. Rows that already exist are left alone.
func Load(ctx context.Context, db *gorm.DB, fences *geofence.Store, logger *zap.Logger) error {
	logger = logging.OrNop(logger)
	users := sampleUsers()
	for i := range users {
		u := &users[i]
		var count int64
		if err := db.WithContext(ctx).Model(&models.User{}).Where("username = ?", u.Username).Count(&count).Error; err != nil {
			return fmt.Errorf("cannot check users table: %w", err)
		}
		if count > 0 {
			continue
		}
		if err := db.WithContext(ctx).Create(u).Error; err != nil {
			return fmt.Errorf("cannot seed users table: %w", err)
		}
		logger.Info("seeded user", zap.String("username", u.Username))
	}

	existing, err := fences.List(ctx)
	if err != nil {
		return err
	}
	if len(existing) == 0 {
		if _, err := fences.Create(ctx, "Demo area", demoFence, nil); err != nil {
			return fmt.Errorf("cannot seed geofence: %w", err)
		}
		logger.Info("seeded demo geofence")
	}
	return nil
}
