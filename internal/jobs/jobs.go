// Package jobs runs periodic maintenance: expiring abandoned checkouts and
// retiring listings whose paid run has ended.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"
)

// runTimeout bounds a single maintenance pass.
const runTimeout = 2 * time.Minute

// PaymentExpirer expires pending payments whose charge window closed.
type PaymentExpirer interface {
	ExpireStalePayments(ctx context.Context, now time.Time) (int, error)
}

// ListingDeactivator retires listings whose sponsorship ended.
type ListingDeactivator interface {
	DeactivateEndedICOs(ctx context.Context, now time.Time) (int64, error)
	DeactivateEndedBannerAds(ctx context.Context, now time.Time) (int64, error)
}

// Result counts the records changed by one maintenance pass.
type Result struct {
	ExpiredPayments int
	EndedICOs       int64
	EndedBanners    int64
}

// Maintenance performs one sweep over payments and listings.
type Maintenance struct {
	payments PaymentExpirer
	listings ListingDeactivator
	logger   *slog.Logger
	now      func() time.Time
}

// NewMaintenance creates a maintenance runner.
func NewMaintenance(payments PaymentExpirer, listings ListingDeactivator, logger *slog.Logger) *Maintenance {
	return &Maintenance{
		payments: payments,
		listings: listings,
		logger:   logger,
		now:      time.Now,
	}
}

// RunOnce runs every maintenance step. A failing step does not stop the
// others; their errors are joined.
func (m *Maintenance) RunOnce(ctx context.Context) (Result, error) {
	now := m.now().UTC()
	var (
		res  Result
		errs []error
		err  error
	)

	if res.ExpiredPayments, err = m.payments.ExpireStalePayments(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("expire payments: %w", err))
	}
	if res.EndedICOs, err = m.listings.DeactivateEndedICOs(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("deactivate icos: %w", err))
	}
	if res.EndedBanners, err = m.listings.DeactivateEndedBannerAds(ctx, now); err != nil {
		errs = append(errs, fmt.Errorf("deactivate banners: %w", err))
	}

	m.logger.Info("maintenance pass finished",
		"expired_payments", res.ExpiredPayments,
		"ended_icos", res.EndedICOs,
		"ended_banners", res.EndedBanners,
	)
	return res, errors.Join(errs...)
}

// Scheduler runs Maintenance on a cron schedule.
type Scheduler struct {
	cron   *cron.Cron
	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler registers m on schedule, which accepts standard five field
// cron expressions and descriptors such as "@every 5m".
func NewScheduler(schedule string, m *Maintenance, logger *slog.Logger) (*Scheduler, error) {
	cl := cronLogger{logger: logger}
	c := cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{cron: c, ctx: ctx, cancel: cancel}

	_, err := c.AddFunc(schedule, func() {
		runCtx, done := context.WithTimeout(s.ctx, runTimeout)
		defer done()
		if _, err := m.RunOnce(runCtx); err != nil {
			logger.Error("maintenance pass failed", "error", err)
		}
	})
	if err != nil {
		cancel()
		return nil, fmt.Errorf("parse schedule %q: %w", schedule, err)
	}
	return s, nil
}

// Start begins running jobs in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the schedule, cancels a running pass, and waits for it to
// return or for ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	s.cancel()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// cronLogger adapts slog to the cron.Logger interface.
type cronLogger struct {
	logger *slog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Debug("cron: "+msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Error("cron: "+msg, append(keysAndValues, "error", err)...)
}
