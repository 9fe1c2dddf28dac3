package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"SecureAccess/api/models"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Append(ctx context.Context, e Entry) error {
	method := e.Method
	if method == "" {
		method = "password"
	}
	row := models.AuthLog{
		Username:          optional(e.Principal),
		DeviceFingerprint: optional(e.DeviceFingerprint),
		AuthMethod:        method,
		AuthStep:          e.Step,
		Success:           e.Success,
		ErrorMessage:      optional(e.Error),
		IPAddress:         e.SourceAddress,
		UserAgent:         truncate(e.UserAgent, 512),
		CreatedAt:         e.At,
	}
	if len(e.Location) > 0 && json.Valid(e.Location) {
		row.LocationInfo = datatypes.JSON(e.Location)
	}
	if err := s.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("append auth log: %w", err)
	}
	return nil
}

type Filter struct {
	Principal string
	Success   *bool
	Page      int
	PageSize  int
}

type Page struct {
	Entries    []models.AuthLog `json:"logs"`
	Total      int64            `json:"total"`
	Page       int              `json:"page"`
	PageSize   int              `json:"limit"`
	TotalPages int              `json:"totalPages"`
}

// Query returns one page of the trail, newest first. Principal matches as a
// substring.
func (s *Store) Query(ctx context.Context, f Filter) (Page, error) {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PageSize < 1 {
		f.PageSize = defaultPageSize
	}
	if f.PageSize > maxPageSize {
		f.PageSize = maxPageSize
	}

	query := s.db.WithContext(ctx).Model(&models.AuthLog{})
	if p := strings.TrimSpace(f.Principal); p != "" {
		query = query.Where(`LOWER(username) LIKE ? ESCAPE '\'`, "%"+likeEscaper.Replace(strings.ToLower(p))+"%")
	}
	if f.Success != nil {
		query = query.Where("success = ?", *f.Success)
	}

	var total int64
	if err := query.Session(&gorm.Session{}).Count(&total).Error; err != nil {
		return Page{}, fmt.Errorf("count auth logs: %w", err)
	}

	entries := []models.AuthLog{}
	if err := query.
		Order("created_at DESC").
		Order("id DESC").
		Offset((f.Page - 1) * f.PageSize).
		Limit(f.PageSize).
		Find(&entries).Error; err != nil {
		return Page{}, fmt.Errorf("query auth logs: %w", err)
	}

	return Page{
		Entries:    entries,
		Total:      total,
		Page:       f.Page,
		PageSize:   f.PageSize,
		TotalPages: int((total + int64(f.PageSize) - 1) / int64(f.PageSize)),
	}, nil
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// truncate cuts s to at most n bytes without splitting a rune. Invalid
// sequences are replaced since postgres rejects them in text columns.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
