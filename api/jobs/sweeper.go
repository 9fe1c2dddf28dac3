// Package jobs runs periodic maintenance: the device inactivity sweep and
// expired session cleanup.
package jobs

import (
	"context"
	"fmt"
	"time"

	"SecureAccess/api/logging"
	"SecureAccess/api/metrics"
	"SecureAccess/api/policy"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type DeviceSweeper interface {
	SweepInactive(ctx context.Context, thresholdDays int) ([]string, error)
}

type SessionPurger interface {
	PurgeExpired(ctx context.Context) (int64, error)
}

type PolicySource interface {
	Current(ctx context.Context) policy.Policy
}

type SweepResult struct {
	RevokedDevices []string
	PurgedSessions int64
	ThresholdDays  int
}

type Sweeper struct {
	devices  DeviceSweeper
	sessions SessionPurger
	policy   PolicySource
	logger   *zap.Logger
	timeout  time.Duration

	cron *cron.Cron
}

// NewSweeper builds a sweeper. sessions may be nil.
func NewSweeper(devices DeviceSweeper, sessions SessionPurger, source PolicySource, logger *zap.Logger) *Sweeper {
	return &Sweeper{
		devices:  devices,
		sessions: sessions,
		policy:   source,
		logger:   logging.OrNop(logger),
		timeout:  2 * time.Minute,
	}
}

// RunSweep revokes devices idle longer than the configured inactivity window.
func (s *Sweeper) RunSweep(ctx context.Context) (SweepResult, error) {
	days := s.policy.Current(ctx).InactivityDays
	result := SweepResult{ThresholdDays: days}

	ids, err := s.devices.SweepInactive(ctx, days)
	if err != nil {
		return result, err
	}
	result.RevokedDevices = ids
	metrics.DevicesSweptTotal.Add(float64(len(ids)))

	if s.sessions != nil {
		n, err := s.sessions.PurgeExpired(ctx)
		if err != nil {
			logging.Report(s.logger, "session purge failed", err)
		}
		result.PurgedSessions = n
	}

	s.logger.Info("inactivity sweep finished",
		zap.Int("threshold_days", days),
		zap.Int("revoked", len(ids)),
		zap.Int64("sessions_purged", result.PurgedSessions),
	)
	return result, nil
}

// Start schedules RunSweep with a standard cron expression or descriptor
// such as "@daily".
func (s *Sweeper) Start(schedule string) error {
	if s.cron != nil {
		return fmt.Errorf("sweeper already started")
	}
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	_, err := c.AddFunc(schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
		defer cancel()
		if _, err := s.RunSweep(ctx); err != nil {
			logging.Report(s.logger, "inactivity sweep failed", err)
		}
	})
	if err != nil {
		return fmt.Errorf("invalid sweep schedule %q: %w", schedule, err)
	}
	s.cron = c
	c.Start()
	s.logger.Info("inactivity sweep scheduled", zap.String("schedule", schedule))
	return nil
}

// Stop waits for a running sweep to finish or ctx to expire.
func (s *Sweeper) Stop(ctx context.Context) {
	if s.cron == nil {
		return
	}
	done := s.cron.Stop()
	select {
	case <-done.Done():
	case <-ctx.Done():
	}
	s.cron = nil
}
