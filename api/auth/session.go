package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"SecureAccess/api/models"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

var ErrNoSession = errors.New("no active session")

var nowUTC = func() time.Time { return time.Now().UTC() }

type Handle struct {
	Token     string
	SessionID string
	ExpiresAt time.Time
}

type sessionClaims struct {
	jwt.RegisteredClaims
}

// SessionManager stores sessions server-side and hands the client a signed
// token carrying only the session id, so logout takes effect immediately.
type SessionManager struct {
	db     *gorm.DB
	secret []byte
	ttl    time.Duration
}

func NewSessionManager(db *gorm.DB, secret string, ttl time.Duration) (*SessionManager, error) {
	if secret == "" {
		return nil, fmt.Errorf("session secret is required")
	}
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &SessionManager{db: db, secret: []byte(secret), ttl: ttl}, nil
}

func (m *SessionManager) TTL() time.Duration {
	return m.ttl
}

func (m *SessionManager) Create(ctx context.Context, p Profile) (Handle, error) {
	now := nowUTC()
	id := uuid.NewString()
	expires := now.Add(m.ttl)

	raw, err := json.Marshal(p)
	if err != nil {
		return Handle{}, err
	}
	row := models.Session{
		ID:        id,
		Username:  p.Username,
		Profile:   datatypes.JSON(raw),
		ExpiresAt: expires,
		CreatedAt: now,
	}
	if p.DeviceFingerprint != "" {
		fp := p.DeviceFingerprint
		row.DeviceFingerprint = &fp
	}
	if err := m.db.WithContext(ctx).Create(&row).Error; err != nil {
		return Handle{}, fmt.Errorf("store session: %w", err)
	}

	claims := sessionClaims{RegisteredClaims: jwt.RegisteredClaims{
		ID:        id,
		Subject:   p.Username,
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(expires),
	}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(m.secret)
	if err != nil {
		return Handle{}, fmt.Errorf("sign session: %w", err)
	}
	return Handle{Token: token, SessionID: id, ExpiresAt: expires}, nil
}

func (m *SessionManager) parse(token string) (string, error) {
	parsed, err := jwt.ParseWithClaims(token, &sessionClaims{}, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return m.secret, nil
	})
	if err != nil {
		return "", ErrNoSession
	}
	claims, ok := parsed.Claims.(*sessionClaims)
	if !ok || !parsed.Valid || claims.ID == "" {
		return "", ErrNoSession
	}
	return claims.ID, nil
}

// Check returns the profile bound to token, or ErrNoSession.
func (m *SessionManager) Check(ctx context.Context, token string) (*Profile, error) {
	id, err := m.parse(token)
	if err != nil {
		return nil, err
	}
	var row models.Session
	err = m.db.WithContext(ctx).Where("id = ? AND expires_at > ?", id, nowUTC()).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoSession
	}
	if err != nil {
		return nil, err
	}
	var p Profile
	if err := json.Unmarshal(row.Profile, &p); err != nil {
		return nil, fmt.Errorf("decode session profile: %w", err)
	}
	return &p, nil
}

// Destroy removes the session behind token. Unknown tokens are ignored.
func (m *SessionManager) Destroy(ctx context.Context, token string) error {
	id, err := m.parse(token)
	if err != nil {
		return nil
	}
	return m.db.WithContext(ctx).Where("id = ?", id).Delete(&models.Session{}).Error
}

// DestroyForPrincipal ends every session of a suspended user.
func (m *SessionManager) DestroyForPrincipal(ctx context.Context, username string) error {
	return m.db.WithContext(ctx).Where("username = ?", username).Delete(&models.Session{}).Error
}

// PurgeExpired deletes sessions past their expiry and reports how many went.
func (m *SessionManager) PurgeExpired(ctx context.Context) (int64, error) {
	res := m.db.WithContext(ctx).Where("expires_at <= ?", nowUTC()).Delete(&models.Session{})
	return res.RowsAffected, res.Error
}

// ExtractToken reads the session token from the named cookie, falling back to
// an Authorization: Bearer header.
func ExtractToken(r *http.Request, cookieName string) string {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value
	}
	bearer := r.Header.Get("Authorization")
	if parts := strings.SplitN(bearer, " ", 2); len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
