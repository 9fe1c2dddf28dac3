// Package devices keeps the per-user list of trusted devices and decides, for
// each login, whether a device is already trusted, can be trusted
// automatically, or needs an administrator.
package devices

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"SecureAccess/api/logging"
	"SecureAccess/api/metrics"
	"SecureAccess/api/models"
	"SecureAccess/api/policy"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const maxFingerprintLength = 255

// sweepBatchSize keeps each revoke statement well under driver bind limits.
var sweepBatchSize = 1000

var (
	ErrNotFound           = errors.New("device not found")
	ErrAlreadyAuthorized  = errors.New("device already authorized")
	ErrPrincipalNotFound  = errors.New("user not found or inactive")
	ErrInvalidFingerprint = errors.New("invalid device fingerprint")
)

type DecisionKind int

const (
	Trusted DecisionKind = iota + 1
	AutoAuthorized
	RequiresApproval
	Denied
	// Unverified means the principal is unknown or suspended. Nothing was
	// registered; the credential check is left to reject the login.
	Unverified
)

func (k DecisionKind) String() string {
	switch k {
	case Trusted:
		return "trusted"
	case AutoAuthorized:
		return "auto_authorized"
	case RequiresApproval:
		return "requires_approval"
	case Denied:
		return "denied"
	case Unverified:
		return "unverified"
	default:
		return "unknown"
	}
}

// Allowed reports whether the login may continue to the credential check.
func (k DecisionKind) Allowed() bool {
	return k == Trusted || k == AutoAuthorized
}

type Decision struct {
	Kind     DecisionKind
	DeviceID string
	Detail   string
}

// Evaluation is one login's view of a device.
type Evaluation struct {
	Fingerprint string
	Principal   string
	Metadata    json.RawMessage
	Location    json.RawMessage
}

type Options struct {
	Locker Locker
	Logger *zap.Logger
	Now    func() time.Time
}

type Registry struct {
	db     *gorm.DB
	locker Locker
	logger *zap.Logger
	now    func() time.Time
}

func NewRegistry(db *gorm.DB, opts Options) *Registry {
	r := &Registry{
		db:     db,
		locker: opts.Locker,
		logger: logging.OrNop(opts.Logger),
		now:    opts.Now,
	}
	if r.locker == nil {
		r.locker = NewKeyedMutex()
	}
	if r.now == nil {
		r.now = time.Now
	}
	return r
}

// DeviceHash derives the secondary lookup key stored with auto-authorized devices.
func DeviceHash(fingerprint, principal string, metadata json.RawMessage) string {
	platform := "unknown"
	var meta struct {
		Platform string `json:"platform"`
	}
	if len(metadata) > 0 && json.Unmarshal(metadata, &meta) == nil && meta.Platform != "" {
		platform = meta.Platform
	}
	sum := sha256.Sum256([]byte(fingerprint + "-" + principal + "-" + platform))
	return hex.EncodeToString(sum[:])
}

// Evaluate runs the device trust decision for one login. An error means the
// registry itself failed; a policy outcome is always reported through Decision.
func (r *Registry) Evaluate(ctx context.Context, ev Evaluation, p policy.Policy) (Decision, error) {
	ev.Fingerprint = strings.TrimSpace(ev.Fingerprint)
	ev.Principal = normalizePrincipal(ev.Principal)
	if ev.Fingerprint == "" || len(ev.Fingerprint) > maxFingerprintLength || ev.Principal == "" {
		return r.decide(Decision{Kind: Denied, Detail: ErrInvalidFingerprint.Error()}), nil
	}
	hash := DeviceHash(ev.Fingerprint, ev.Principal, ev.Metadata)

	if d, err := r.trusted(ctx, r.db, ev, hash); err != nil || d != nil {
		if err != nil {
			return Decision{}, err
		}
		return r.decide(*d), nil
	}

	if !p.AutoAuthorize {
		return r.decide(Decision{Kind: RequiresApproval, Detail: "auto-authorization disabled"}), nil
	}

	unlock, err := r.locker.Lock(ctx, ev.Principal)
	if err != nil {
		return Decision{}, err
	}
	defer unlock()

	var decision Decision
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		// Another login for this principal may have registered the device while we waited.
		d, err := r.trusted(ctx, tx, ev, hash)
		if err != nil {
			return err
		}
		if d != nil {
			decision = *d
			return nil
		}

		known, err := principalActive(tx, ev.Principal)
		if err != nil {
			return fmt.Errorf("lookup principal: %w", err)
		}
		if !known {
			decision = Decision{Kind: Unverified, Detail: "principal unknown or inactive"}
			return nil
		}

		active, err := countActive(tx, ev.Principal)
		if err != nil {
			return fmt.Errorf("count devices: %w", err)
		}
		if active >= int64(p.MaxDevices) {
			decision = Decision{Kind: RequiresApproval, Detail: fmt.Sprintf("device limit reached (%d/%d)", active, p.MaxDevices)}
			return nil
		}

		now := r.now()
		record := models.AuthorizedDevice{
			ID:             uuid.NewString(),
			Fingerprint:    ev.Fingerprint,
			DeviceHash:     &hash,
			Username:       ev.Principal,
			DeviceInfo:     jsonOrNil(ev.Metadata),
			LocationInfo:   jsonOrNil(ev.Location),
			AutoAuthorized: true,
			IsActive:       true,
			CreatedAt:      now,
			LastSeenAt:     &now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return fmt.Errorf("create device: %w", err)
		}
		decision = Decision{Kind: AutoAuthorized, DeviceID: record.ID}
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return r.decide(decision), nil
}

// trusted returns a Trusted decision when an active record matches, after
// refreshing its last-seen time and metadata. It returns nil when none matches.
func (r *Registry) trusted(ctx context.Context, db *gorm.DB, ev Evaluation, hash string) (*Decision, error) {
	var record models.AuthorizedDevice
	err := db.WithContext(ctx).
		Where("(fingerprint = ? OR device_hash = ?) AND username = ? AND is_active = ?", ev.Fingerprint, hash, ev.Principal, true).
		Order("created_at ASC").
		Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("lookup device: %w", err)
	}

	updates := map[string]interface{}{"last_seen_at": r.now()}
	if meta := jsonOrNil(ev.Metadata); meta != nil {
		updates["device_info"] = meta
	}
	if loc := jsonOrNil(ev.Location); loc != nil {
		updates["location_info"] = loc
	}
	if err := db.WithContext(ctx).Model(&models.AuthorizedDevice{}).Where("id = ?", record.ID).Updates(updates).Error; err != nil {
		return nil, fmt.Errorf("refresh device: %w", err)
	}
	return &Decision{Kind: Trusted, DeviceID: record.ID}, nil
}

func (r *Registry) decide(d Decision) Decision {
	metrics.DeviceDecisionsTotal.WithLabelValues(d.Kind.String()).Inc()
	return d
}

type Authorization struct {
	Fingerprint  string
	Principal    string
	Notes        string
	AuthorizedBy string
	Metadata     json.RawMessage
}

// Authorize registers a device on an administrator's behalf.
func (r *Registry) Authorize(ctx context.Context, a Authorization) (*models.AuthorizedDevice, error) {
	a.Fingerprint = strings.TrimSpace(a.Fingerprint)
	a.Principal = normalizePrincipal(a.Principal)
	if a.Fingerprint == "" || len(a.Fingerprint) > maxFingerprintLength {
		return nil, ErrInvalidFingerprint
	}

	var user models.User
	err := r.db.WithContext(ctx).Where("username = ?", a.Principal).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) || (err == nil && !user.IsActive) {
		return nil, ErrPrincipalNotFound
	}
	if err != nil {
		return nil, err
	}

	unlock, err := r.locker.Lock(ctx, a.Principal)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var record models.AuthorizedDevice
	err = r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var existing int64
		if err := tx.Model(&models.AuthorizedDevice{}).
			Where("fingerprint = ? AND username = ? AND is_active = ?", a.Fingerprint, a.Principal, true).
			Count(&existing).Error; err != nil {
			return err
		}
		if existing > 0 {
			return ErrAlreadyAuthorized
		}

		now := r.now()
		record = models.AuthorizedDevice{
			ID:                 uuid.NewString(),
			Fingerprint:        a.Fingerprint,
			Username:           a.Principal,
			DeviceInfo:         jsonOrNil(a.Metadata),
			ManuallyAuthorized: true,
			AuthorizedBy:       stringOrNil(a.AuthorizedBy),
			AdminNotes:         stringOrNil(a.Notes),
			IsActive:           true,
			CreatedAt:          now,
			LastSeenAt:         &now,
		}
		return tx.Create(&record).Error
	})
	if err != nil {
		return nil, err
	}
	r.logger.Info("device authorized manually",
		zap.String("device_id", record.ID),
		zap.String("username", record.Username),
		zap.String("authorized_by", a.AuthorizedBy),
	)
	return &record, nil
}

// Revoke deactivates a device. Revoking an inactive device succeeds without
// changes; only an unknown id is an error.
func (r *Registry) Revoke(ctx context.Context, id string) error {
	var record models.AuthorizedDevice
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if !record.IsActive {
		return nil
	}
	return r.db.WithContext(ctx).Model(&models.AuthorizedDevice{}).
		Where("id = ?", id).
		Update("is_active", false).Error
}

// RevokeAllForPrincipal deactivates every device of a suspended user.
func (r *Registry) RevokeAllForPrincipal(ctx context.Context, principal string) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.AuthorizedDevice{}).
		Where("username = ? AND is_active = ?", normalizePrincipal(principal), true).
		Update("is_active", false)
	return res.RowsAffected, res.Error
}

// SweepInactive revokes every active device unused for thresholdDays, or never
// used at all, in a single transaction and returns the revoked ids.
func (r *Registry) SweepInactive(ctx context.Context, thresholdDays int) ([]string, error) {
	if thresholdDays < 1 {
		return nil, fmt.Errorf("threshold must be at least 1 day, got %d", thresholdDays)
	}
	cutoff := r.now().AddDate(0, 0, -thresholdDays)

	var ids []string
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.AuthorizedDevice{}).
			Where("is_active = ? AND (last_seen_at IS NULL OR last_seen_at < ?)", true, cutoff).
			Order("id ASC").
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		for start := 0; start < len(ids); start += sweepBatchSize {
			end := min(start+sweepBatchSize, len(ids))
			if err := tx.Model(&models.AuthorizedDevice{}).
				Where("id IN ?", ids[start:end]).
				Update("is_active", false).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("sweep inactive devices: %w", err)
	}
	if ids == nil {
		ids = []string{}
	}
	return ids, nil
}

// Verify returns the active record for fingerprint and refreshes its last-seen
// time. An empty principal matches any user.
func (r *Registry) Verify(ctx context.Context, fingerprint, principal string) (*models.AuthorizedDevice, error) {
	query := r.db.WithContext(ctx).Where("fingerprint = ? AND is_active = ?", strings.TrimSpace(fingerprint), true)
	if p := normalizePrincipal(principal); p != "" {
		query = query.Where("username = ?", p)
	}
	var record models.AuthorizedDevice
	err := query.Order("last_seen_at DESC").Take(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	now := r.now()
	if err := r.db.WithContext(ctx).Model(&models.AuthorizedDevice{}).
		Where("id = ?", record.ID).
		Update("last_seen_at", now).Error; err != nil {
		return nil, err
	}
	record.LastSeenAt = &now
	return &record, nil
}

type Filter struct {
	Principal string
	Active    *bool
}

// List returns devices most recently seen first; never-seen devices go last.
func (r *Registry) List(ctx context.Context, f Filter) ([]models.AuthorizedDevice, error) {
	query := r.db.WithContext(ctx).Model(&models.AuthorizedDevice{})
	if p := normalizePrincipal(f.Principal); p != "" {
		query = query.Where("username = ?", p)
	}
	if f.Active != nil {
		query = query.Where("is_active = ?", *f.Active)
	}
	var records []models.AuthorizedDevice
	err := query.
		Order("CASE WHEN last_seen_at IS NULL THEN 1 ELSE 0 END").
		Order("last_seen_at DESC").
		Order("created_at DESC").
		Find(&records).Error
	return records, err
}

// principalActive reports whether principal names an active user.
func principalActive(db *gorm.DB, principal string) (bool, error) {
	var user models.User
	err := db.Select("id", "is_active").Where("username = ?", principal).Take(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return user.IsActive, nil
}

func countActive(db *gorm.DB, principal string) (int64, error) {
	var n int64
	err := db.Model(&models.AuthorizedDevice{}).
		Where("username = ? AND is_active = ?", principal, true).
		Count(&n).Error
	return n, err
}

func normalizePrincipal(p string) string {
	return strings.ToLower(strings.TrimSpace(p))
}

func jsonOrNil(raw json.RawMessage) datatypes.JSON {
	if len(raw) == 0 || !json.Valid(raw) {
		return nil
	}
	return datatypes.JSON(raw)
}

func stringOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
