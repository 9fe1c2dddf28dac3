// Package reports builds the aggregate numbers shown on the admin dashboard.
package reports

import (
	"context"
	"fmt"
	"math"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
	"gorm.io/gorm"
)

type UserStats struct {
	Total    int64 `db:"total" json:"total"`
	Active   int64 `db:"active" json:"active"`
	Inactive int64 `db:"inactive" json:"inactive"`
}

type DeviceStats struct {
	Total              int64 `db:"total" json:"total"`
	Active             int64 `db:"active" json:"active"`
	AutoAuthorized     int64 `db:"auto_authorized" json:"autoAuthorized"`
	ManuallyAuthorized int64 `db:"manually_authorized" json:"manuallyAuthorized"`
	UniquePrincipals   int64 `db:"unique_principals" json:"uniqueUsers"`
}

type Stats struct {
	Users                  UserStats   `json:"users"`
	Devices                DeviceStats `json:"devices"`
	RecentLogins           int64       `json:"recentLogins"`
	AvgDevicesPerPrincipal float64     `json:"avgDevicesPerUser"`
}

type Reporter struct {
	db  *sqlx.DB
	sb  sq.StatementBuilderType
	now func() time.Time
}

// NewReporter shares the gorm connection pool through sqlx.
func NewReporter(gdb *gorm.DB) (*Reporter, error) {
	sqlDB, err := gdb.DB()
	if err != nil {
		return nil, err
	}
	driver := "postgres"
	var placeholder sq.PlaceholderFormat = sq.Dollar
	if gdb.Dialector.Name() == "sqlite" {
		driver, placeholder = "sqlite3", sq.Question
	}
	return &Reporter{
		db:  sqlx.NewDb(sqlDB, driver),
		sb:  sq.StatementBuilder.PlaceholderFormat(placeholder),
		now: time.Now,
	}, nil
}

func (r *Reporter) Stats(ctx context.Context) (Stats, error) {
	var s Stats

	users := r.sb.Select(
		"COUNT(*) AS total",
		"COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active",
		"COALESCE(SUM(CASE WHEN is_active THEN 0 ELSE 1 END), 0) AS inactive",
	).From("users")
	if err := r.get(ctx, &s.Users, users); err != nil {
		return Stats{}, fmt.Errorf("user stats: %w", err)
	}

	devices := r.sb.Select(
		"COUNT(*) AS total",
		"COALESCE(SUM(CASE WHEN is_active THEN 1 ELSE 0 END), 0) AS active",
		"COALESCE(SUM(CASE WHEN is_active AND auto_authorized THEN 1 ELSE 0 END), 0) AS auto_authorized",
		"COALESCE(SUM(CASE WHEN is_active AND manually_authorized THEN 1 ELSE 0 END), 0) AS manually_authorized",
		"COUNT(DISTINCT CASE WHEN is_active THEN username END) AS unique_principals",
	).From("authorized_devices")
	if err := r.get(ctx, &s.Devices, devices); err != nil {
		return Stats{}, fmt.Errorf("device stats: %w", err)
	}

	recent := r.sb.Select("COUNT(*)").
		From("auth_logs").
		Where(sq.Eq{"success": true, "auth_step": "credentials"}).
		Where(sq.GtOrEq{"created_at": r.now().AddDate(0, 0, -7)})
	if err := r.get(ctx, &s.RecentLogins, recent); err != nil {
		return Stats{}, fmt.Errorf("recent logins: %w", err)
	}

	if s.Devices.UniquePrincipals > 0 {
		avg := float64(s.Devices.Active) / float64(s.Devices.UniquePrincipals)
		s.AvgDevicesPerPrincipal = math.Round(avg*100) / 100
	}
	return s, nil
}

func (r *Reporter) get(ctx context.Context, dest interface{}, q sq.SelectBuilder) error {
	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	return r.db.GetContext(ctx, dest, query, args...)
}
