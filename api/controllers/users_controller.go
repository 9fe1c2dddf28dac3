package controllers

import (
	"errors"
	"net/http"
	"time"

	"SecureAccess/api/authflow"
	"SecureAccess/api/devices"
	"SecureAccess/api/logging"
	"SecureAccess/api/models"
	"SecureAccess/api/utils/httpctx"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type AdminUserDTO struct {
	ID          uint       `json:"id"`
	Username    string     `json:"username"`
	Email       string     `json:"email"`
	FirstName   string     `json:"first_name"`
	LastName    string     `json:"last_name"`
	IsAdmin     bool       `json:"is_admin"`
	IsActive    bool       `json:"is_active"`
	LastLoginAt *time.Time `json:"last_login_at"`
	CreatedAt   time.Time  `json:"created_at"`
	DeviceCount int64      `json:"device_count"`
}

// GetUsers lists every user with the number of active devices they hold.
func (server *Server) GetUsers(c *gin.Context) {
	users := []AdminUserDTO{}
	err := server.DB.WithContext(c.Request.Context()).
		Model(&models.User{}).
		Select("users.id, users.username, users.email, users.first_name, users.last_name, " +
			"users.is_admin, users.is_active, users.last_login_at, users.created_at, " +
			"COUNT(authorized_devices.id) AS device_count").
		Joins("LEFT JOIN authorized_devices ON authorized_devices.username = users.username AND authorized_devices.is_active = ?", true).
		Group("users.id").
		Order("users.created_at DESC").
		Scan(&users).Error
	if err != nil {
		logging.Report(server.Logger, "list users failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":   http.StatusOK,
		"response": users,
	})
}

type createUserRequest struct {
	Username  string `json:"username"`
	Password  string `json:"password"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	IsAdmin   bool   `json:"is_admin"`
}

// CreateUser handles user registration by an administrator.
func (server *Server) CreateUser(c *gin.Context) {
	var req createUserRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	user := models.User{
		Username:  req.Username,
		Password:  req.Password,
		Email:     req.Email,
		FirstName: req.FirstName,
		LastName:  req.LastName,
		IsAdmin:   req.IsAdmin,
		IsActive:  true,
	}
	user.Prepare()
	if errorMessages := user.Validate(); len(errorMessages) > 0 {
		c.JSON(http.StatusUnprocessableEntity, gin.H{"errors": errorMessages})
		return
	}

	_, err := user.FindUserByUsername(server.DB.WithContext(c.Request.Context()), user.Username)
	if err == nil {
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	}
	if !errors.Is(err, models.ErrUserNotFound) {
		logging.Report(server.Logger, "lookup user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}

	userCreated, err := user.SaveUser(server.DB.WithContext(c.Request.Context()))
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		c.JSON(http.StatusConflict, gin.H{"error": "User already exists"})
		return
	}
	if err != nil {
		logging.Report(server.Logger, "create user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}

	server.Logger.Info("user created",
		zap.String("username", userCreated.Username),
		zap.String("by", httpctx.CurrentUsername(c)),
	)
	c.JSON(http.StatusCreated, gin.H{
		"status": http.StatusCreated,
		"response": AdminUserDTO{
			ID:        userCreated.ID,
			Username:  userCreated.Username,
			Email:     userCreated.Email,
			FirstName: userCreated.FirstName,
			LastName:  userCreated.LastName,
			IsAdmin:   userCreated.IsAdmin,
			IsActive:  userCreated.IsActive,
			CreatedAt: userCreated.CreatedAt,
		},
	})
}

// ToggleUser flips a user's active flag. Deactivation revokes every device of
// the user in the same transaction and ends their sessions.
func (server *Server) ToggleUser(c *gin.Context) {
	uid, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	ctx := c.Request.Context()

	user := models.User{}
	userGotten, err := user.FindUserByID(server.DB.WithContext(ctx), uid)
	if errors.Is(err, models.ErrUserNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "User not found"})
		return
	}
	if err != nil {
		logging.Report(server.Logger, "lookup user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}

	active := !userGotten.IsActive
	if !active {
		if me, ok := httpctx.CurrentUserID(c); ok && me == userGotten.ID {
			c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot deactivate your own account"})
			return
		}
	}

	var revoked int64
	err = server.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := userGotten.SetActive(tx, active); err != nil {
			return err
		}
		if active {
			return nil
		}
		var err error
		revoked, err = devices.NewRegistry(tx, devices.Options{Logger: server.Logger}).
			RevokeAllForPrincipal(ctx, userGotten.Username)
		return err
	})
	if err != nil {
		logging.Report(server.Logger, "toggle user failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}

	if !active {
		if err := server.Sessions.DestroyForPrincipal(ctx, userGotten.Username); err != nil {
			logging.Report(server.Logger, "sessions not cleared for suspended user", err,
				zap.String("username", userGotten.Username))
		}
	}

	server.Logger.Info("user active flag changed",
		zap.String("username", userGotten.Username),
		zap.Bool("active", active),
		zap.Int64("devices_revoked", revoked),
		zap.String("by", httpctx.CurrentUsername(c)),
	)
	c.JSON(http.StatusOK, gin.H{
		"success":        true,
		"isActive":       active,
		"devicesRevoked": revoked,
	})
}

// GetUserRoles returns the LMS roles of a user. Users may read their own
// roles; administrators may read anyone's.
func (server *Server) GetUserRoles(c *gin.Context) {
	uid, ok := parseUintParam(c, "id")
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid user ID"})
		return
	}
	if me, _ := httpctx.CurrentUserID(c); me != uid && !httpctx.IsAdminRequest(c) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Forbidden"})
		return
	}

	roles := []models.UserRole{}
	if err := server.DB.WithContext(c.Request.Context()).Where("user_id = ?", uid).Order("role_id").Find(&roles).Error; err != nil {
		logging.Report(server.Logger, "list roles failed", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": authflow.MessageInternal})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":   http.StatusOK,
		"response": roles,
	})
}
