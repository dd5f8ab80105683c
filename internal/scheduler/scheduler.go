// Package scheduler periodically submits bulk data requests so the
// utility keeps delivering fresh usage data.
package scheduler

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Requester submits an asynchronous bulk request for one calendar day.
type Requester interface {
	RequestDay(ctx context.Context, year int, month time.Month, day int) error
}

type Scheduler struct {
	ctx       context.Context
	requester Requester
	loc       *time.Location
	spec      string
	logger    *logrus.Logger
	cron      *cron.Cron
	now       func() time.Time
}

// New builds a scheduler that requests the previous local day on the
// given cron spec.
func New(ctx context.Context, requester Requester, loc *time.Location, spec string, logger *logrus.Logger) *Scheduler {
	return &Scheduler{
		ctx:       ctx,
		requester: requester,
		loc:       loc,
		spec:      spec,
		logger:    logger,
		cron:      cron.New(),
		now:       time.Now,
	}
}

// Start registers the job and starts the cron loop.
func (s *Scheduler) Start() error {
	_, err := s.cron.AddFunc(s.spec, s.requestPreviousDay)
	if err != nil {
		return err
	}
	s.cron.Start()
	s.logger.WithField("spec", s.spec).Info("scheduler started")
	return nil
}

// requestPreviousDay submits the bulk request for yesterday in the
// utility's local timezone.
func (s *Scheduler) requestPreviousDay() {
	ctx, cancel := context.WithTimeout(s.ctx, 2*time.Minute)
	defer cancel()

	day := s.now().In(s.loc).AddDate(0, 0, -1)
	if err := s.requester.RequestDay(ctx, day.Year(), day.Month(), day.Day()); err != nil {
		s.logger.WithError(err).Error("scheduled bulk request failed")
	}
}

// Stop the scheduler
func (s *Scheduler) Stop() {
	s.cron.Stop()
}
