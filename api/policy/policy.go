// Package policy resolves the device trust settings administrators can change
// at runtime. When the settings store cannot be read the compiled-in Defaults
// apply, so logins keep working while the store is down.
package policy

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"SecureAccess/api/logging"

	"go.uber.org/zap"
)

const (
	KeyMaxDevices     = "max_devices_per_principal"
	KeyAutoAuthorize  = "auto_authorize_devices"
	KeyInactivityDays = "device_inactivity_days"
)

var (
	ErrUnknownKey   = errors.New("unknown policy key")
	ErrInvalidValue = errors.New("invalid policy value")
)

type Policy struct {
	AutoAuthorize  bool `json:"auto_authorize_devices"`
	MaxDevices     int  `json:"max_devices_per_principal"`
	InactivityDays int  `json:"device_inactivity_days"`
}

var Defaults = Policy{AutoAuthorize: true, MaxDevices: 3, InactivityDays: 90}

type Definition struct {
	Key         string
	Default     string
	Description string
	min, max    int
	boolean     bool
}

// Definitions lists the known keys in display order.
var Definitions = []Definition{
	{Key: KeyAutoAuthorize, Default: strconv.FormatBool(Defaults.AutoAuthorize), Description: "Automatically trust new devices until the per-user limit is reached", boolean: true},
	{Key: KeyMaxDevices, Default: strconv.Itoa(Defaults.MaxDevices), Description: "Maximum active devices per user", min: 1, max: 20},
	{Key: KeyInactivityDays, Default: strconv.Itoa(Defaults.InactivityDays), Description: "Days without use before a device is revoked", min: 1, max: 365},
}

func Lookup(key string) (Definition, bool) {
	for _, d := range Definitions {
		if d.Key == key {
			return d, true
		}
	}
	return Definition{}, false
}

// Validate checks value against the key's rules and returns its canonical form.
func Validate(key, value string) (string, error) {
	def, ok := Lookup(key)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownKey, key)
	}
	value = strings.TrimSpace(value)
	if def.boolean {
		if value != "true" && value != "false" {
			return "", fmt.Errorf("%w: %s must be \"true\" or \"false\"", ErrInvalidValue, key)
		}
		return value, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil || n < def.min || n > def.max {
		return "", fmt.Errorf("%w: %s must be a number between %d and %d", ErrInvalidValue, key, def.min, def.max)
	}
	return strconv.Itoa(n), nil
}

// FromSettings builds a Policy from raw key/value pairs. Missing or invalid
// entries keep their default.
func FromSettings(settings map[string]string) Policy {
	p := Defaults
	if v, err := Validate(KeyAutoAuthorize, settings[KeyAutoAuthorize]); err == nil {
		p.AutoAuthorize = v == "true"
	}
	if v, err := Validate(KeyMaxDevices, settings[KeyMaxDevices]); err == nil {
		p.MaxDevices, _ = strconv.Atoi(v)
	}
	if v, err := Validate(KeyInactivityDays, settings[KeyInactivityDays]); err == nil {
		p.InactivityDays, _ = strconv.Atoi(v)
	}
	return p
}

// Provider is anything that can return the stored settings.
type Provider interface {
	Settings(ctx context.Context) (map[string]string, error)
}

type Resolver struct {
	provider Provider
	logger   *zap.Logger
}

// NewResolver accepts a nil provider, in which case Defaults always apply.
func NewResolver(provider Provider, logger *zap.Logger) *Resolver {
	return &Resolver{provider: provider, logger: logging.OrNop(logger)}
}

// Resolve returns the effective policy and whether it came from Defaults
// because the provider was absent or failed.
func (r *Resolver) Resolve(ctx context.Context) (Policy, bool) {
	if r == nil || r.provider == nil {
		return Defaults, true
	}
	settings, err := r.provider.Settings(ctx)
	if err != nil {
		logging.Report(r.logger, "policy store unavailable, using defaults", err)
		return Defaults, true
	}
	return FromSettings(settings), false
}

func (r *Resolver) Current(ctx context.Context) Policy {
	p, _ := r.Resolve(ctx)
	return p
}
