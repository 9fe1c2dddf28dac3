// Package authflow runs a login through its stages: location, device, then
// credentials. Any stage can end the attempt; each failed attempt leaves one
// audit entry and a successful one leaves one entry after the session exists.
package authflow

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"SecureAccess/api/audit"
	"SecureAccess/api/auth"
	"SecureAccess/api/devices"
	"SecureAccess/api/geofence"
	"SecureAccess/api/logging"
	"SecureAccess/api/metrics"
	"SecureAccess/api/models"
	"SecureAccess/api/policy"

	"go.uber.org/zap"
)

type FenceSource interface {
	Fences(ctx context.Context) ([]geofence.Fence, error)
}

type DeviceEvaluator interface {
	Evaluate(ctx context.Context, ev devices.Evaluation, p policy.Policy) (devices.Decision, error)
}

type PolicySource interface {
	Current(ctx context.Context) policy.Policy
}

type CredentialStore interface {
	FindByUsername(ctx context.Context, username string) (*models.User, error)
	Verify(ctx context.Context, user *models.User, password string) (bool, error)
	TouchLastLogin(ctx context.Context, user *models.User) error
}

type SessionIssuer interface {
	Create(ctx context.Context, p auth.Profile) (auth.Handle, error)
}

type Deps struct {
	Fences      FenceSource
	Devices     DeviceEvaluator
	Policy      PolicySource
	Credentials CredentialStore
	Sessions    SessionIssuer
	Audit       audit.Recorder
}

type Options struct {
	RequireLocation   bool
	RequireDevice     bool
	CredentialTimeout time.Duration
	Logger            *zap.Logger
}

type Request struct {
	Username          string
	Password          string
	DeviceFingerprint string
	DeviceInfo        json.RawMessage
	Location          *geofence.Point
	SourceAddress     string
	UserAgent         string
}

type Outcome struct {
	Stage             Stage
	Reason            DenialReason
	Profile           *auth.Profile
	Session           *auth.Handle
	Device            *devices.Decision
	DeviceSkipped     bool
	Location          *geofence.Result
	DeviceFingerprint string
	Trail             []Stage
}

func (o Outcome) Success() bool {
	return o.Stage == StageSuccess
}

type Orchestrator struct {
	deps   Deps
	opts   Options
	logger *zap.Logger
}

func New(deps Deps, opts Options) *Orchestrator {
	if opts.CredentialTimeout <= 0 {
		opts.CredentialTimeout = 5 * time.Second
	}
	return &Orchestrator{deps: deps, opts: opts, logger: logging.OrNop(opts.Logger)}
}

// attempt carries per-login state between stages.
type attempt struct {
	req     Request
	out     Outcome
	locJSON json.RawMessage
}

func (o *Orchestrator) Login(ctx context.Context, req Request) Outcome {
	req.Username = strings.ToLower(strings.TrimSpace(req.Username))
	req.DeviceFingerprint = strings.TrimSpace(req.DeviceFingerprint)
	a := &attempt{req: req, out: Outcome{Stage: StageStart, DeviceFingerprint: req.DeviceFingerprint}}
	a.out.Trail = append(a.out.Trail, StageStart)

	if req.Username == "" || req.Password == "" {
		// Malformed requests never reach a stage and are not audited.
		a.out.Reason = ReasonMissingField
		metrics.LoginOutcomesTotal.WithLabelValues(StageStart.String(), "rejected").Inc()
		return a.out
	}
	if req.Location != nil {
		a.locJSON, _ = json.Marshal(req.Location)
	}

	if o.checkLocation(ctx, a) && o.checkDevice(ctx, a) {
		o.checkCredentials(ctx, a)
	}
	return a.out
}

func (o *Orchestrator) checkLocation(ctx context.Context, a *attempt) bool {
	if a.req.Location == nil {
		if o.opts.RequireLocation {
			o.enter(a, StageLocation)
			return o.fail(ctx, a, StageLocation, ReasonLocationRequired, nil)
		}
		return true
	}
	o.enter(a, StageLocation)

	if err := a.req.Location.Validate(); err != nil {
		return o.fail(ctx, a, StageLocation, ReasonInvalidCoordinates, nil)
	}
	fences, err := o.deps.Fences.Fences(ctx)
	if err != nil {
		return o.fail(ctx, a, StageLocation, ReasonGeofenceUnavailable, err)
	}
	result, err := geofence.IsInside(*a.req.Location, fences)
	a.out.Location = &result
	if err != nil {
		return o.fail(ctx, a, StageLocation, ReasonInvalidCoordinates, nil)
	}
	if result.NoFencesConfigured() {
		return o.fail(ctx, a, StageLocation, ReasonNoGeofences, nil)
	}
	if !result.Inside {
		return o.fail(ctx, a, StageLocation, ReasonOutsideGeofence, nil)
	}
	return true
}

func (o *Orchestrator) checkDevice(ctx context.Context, a *attempt) bool {
	if a.req.DeviceFingerprint == "" {
		if o.opts.RequireDevice {
			o.enter(a, StageDevice)
			return o.fail(ctx, a, StageDevice, ReasonDeviceRequired, nil)
		}
		return true
	}
	o.enter(a, StageDevice)

	p := o.deps.Policy.Current(ctx)
	decision, err := o.deps.Devices.Evaluate(ctx, devices.Evaluation{
		Fingerprint: a.req.DeviceFingerprint,
		Principal:   a.req.Username,
		Metadata:    a.req.DeviceInfo,
		Location:    a.locJSON,
	}, p)
	if err != nil {
		// Registry faults do not block logins; explicit denials do.
		metrics.DeviceRegistryErrorsTotal.Inc()
		logging.Report(o.logger, "device registry unavailable, continuing without device check", err,
			zap.String("username", a.req.Username),
		)
		a.out.DeviceSkipped = true
		return true
	}
	a.out.Device = &decision

	switch decision.Kind {
	case devices.Trusted, devices.AutoAuthorized:
		return true
	case devices.Unverified:
		// Unknown and suspended principals fail at the credential check
		// with the same response as any other credential failure.
		return true
	case devices.RequiresApproval:
		return o.fail(ctx, a, StageDevice, ReasonDeviceRequiresApproval, nil)
	default:
		return o.fail(ctx, a, StageDevice, ReasonDeviceDenied, nil)
	}
}

func (o *Orchestrator) checkCredentials(ctx context.Context, a *attempt) bool {
	o.enter(a, StageCredentials)

	credCtx, cancel := context.WithTimeout(ctx, o.opts.CredentialTimeout)
	defer cancel()

	user, err := o.deps.Credentials.FindByUsername(credCtx, a.req.Username)
	if errors.Is(err, auth.ErrPrincipalNotFound) {
		return o.fail(ctx, a, StageCredentials, ReasonUnknownPrincipal, nil)
	}
	if err != nil {
		return o.fail(ctx, a, StageCredentials, ReasonCredentialStoreUnavailable, err)
	}
	if !user.IsActive {
		return o.fail(ctx, a, StageCredentials, ReasonInactivePrincipal, nil)
	}
	ok, err := o.deps.Credentials.Verify(credCtx, user, a.req.Password)
	if err != nil {
		return o.fail(ctx, a, StageCredentials, ReasonCredentialStoreUnavailable, err)
	}
	if !ok {
		return o.fail(ctx, a, StageCredentials, ReasonWrongPassword, nil)
	}

	if a.out.Device != nil && a.out.Device.Kind == devices.Unverified {
		// The user became active after the device check; no device was registered.
		return o.fail(ctx, a, StageDevice, ReasonDeviceRequiresApproval, nil)
	}

	profile := auth.ProfileFor(user)
	profile.DeviceFingerprint = a.req.DeviceFingerprint
	handle, err := o.deps.Sessions.Create(ctx, profile)
	if err != nil {
		return o.fail(ctx, a, StageCredentials, ReasonSessionUnavailable, err)
	}

	if err := o.deps.Credentials.TouchLastLogin(ctx, user); err != nil {
		o.logger.Warn("could not update last login", zap.String("username", user.Username), zap.Error(err))
	}

	o.enter(a, StageSuccess)
	a.out.Profile = &profile
	a.out.Session = &handle
	o.record(ctx, a, StageCredentials, true, "")
	metrics.LoginOutcomesTotal.WithLabelValues(StageSuccess.String(), "success").Inc()
	o.logger.Info("login succeeded",
		zap.String("username", user.Username),
		zap.Bool("device_check_skipped", a.out.DeviceSkipped),
	)
	return true
}

func (o *Orchestrator) enter(a *attempt, s Stage) {
	a.out.Stage = s
	a.out.Trail = append(a.out.Trail, s)
}

// fail moves the attempt to its terminal failed state and writes its single
// audit entry. It always returns false so callers can return it directly.
func (o *Orchestrator) fail(ctx context.Context, a *attempt, s Stage, reason DenialReason, cause error) bool {
	a.out.Stage = s
	a.out.Reason = reason
	detail := reason.String()
	if cause != nil {
		detail += ": " + cause.Error()
		logging.Report(o.logger, "login stage failed", cause,
			zap.String("stage", s.String()),
			zap.String("username", a.req.Username),
		)
	}
	o.record(ctx, a, s, false, detail)
	metrics.LoginOutcomesTotal.WithLabelValues(s.String(), "denied").Inc()
	o.logger.Info("login denied",
		zap.String("stage", s.String()),
		zap.String("reason", reason.String()),
		zap.String("username", a.req.Username),
		zap.String("source", a.req.SourceAddress),
	)
	return false
}

func (o *Orchestrator) record(ctx context.Context, a *attempt, s Stage, success bool, detail string) {
	if o.deps.Audit == nil {
		return
	}
	o.deps.Audit.Record(ctx, audit.Entry{
		Principal:         a.req.Username,
		DeviceFingerprint: a.req.DeviceFingerprint,
		Location:          a.locJSON,
		Method:            "password",
		Step:              s.String(),
		Success:           success,
		Error:             detail,
		SourceAddress:     a.req.SourceAddress,
		UserAgent:         a.req.UserAgent,
		At:                time.Now(),
	})
}
