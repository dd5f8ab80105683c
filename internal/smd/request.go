package smd

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sirupsen/logrus"
)

// dayWindowSeconds is the width of a calendar-day request window. It is a
// fixed 23 hours, sized for the short spring-forward day; the
// published-min/max filter tolerates the one-hour undercoverage on
// ordinary days.
const dayWindowSeconds = 82800

const secondsPerDay = 86400

func rangeParams(start, end int64) url.Values {
	return url.Values{
		"published-min": {strconv.FormatInt(start, 10)},
		"published-max": {strconv.FormatInt(end, 10)},
	}
}

// bulkRequest submits one asynchronous job against the Bulk Resource URI.
// 202 Accepted means the job is enqueued; the data arrives later via an
// out-of-band notification, never inline.
func (s *Session) bulkRequest(ctx context.Context, params url.Values) error {
	if err := s.ensureToken(ctx); err != nil {
		return err
	}

	s.logger.WithField("uri", s.bulkResourceURL).Debug("submitting bulk data request")

	status, body, err := s.get(ctx, s.bulkResourceURL, params)
	if err != nil {
		s.logger.WithError(err).Error("bulk data request failed")
		return fmt.Errorf("%w: %v", ErrRequestRejected, err)
	}
	if status != http.StatusAccepted {
		s.logger.WithFields(logrus.Fields{
			"status": status,
			"body":   snippet(body),
		}).Error("bulk data request rejected")
		return fmt.Errorf("%w: status %d", ErrRequestRejected, status)
	}

	s.logger.Info("bulk data request accepted, awaiting server notification")
	return nil
}

// RequestLatest requests the full bulk resource with no time filter.
func (s *Session) RequestLatest(ctx context.Context) error {
	return s.bulkRequest(ctx, nil)
}

// RequestRange requests the window between two UTC instants. A zero end
// means now.
func (s *Session) RequestRange(ctx context.Context, start, end time.Time) error {
	if end.IsZero() {
		end = s.now()
	}
	return s.bulkRequest(ctx, rangeParams(start.Unix(), end.Unix()))
}

// RequestDay requests one calendar day in the utility's local timezone.
// The window opens at that date's local midnight, computed with the
// date's own UTC offset, and spans dayWindowSeconds.
func (s *Session) RequestDay(ctx context.Context, year int, month time.Month, day int) error {
	start := time.Date(year, month, day, 0, 0, 0, 0, s.loc).Unix()
	return s.bulkRequest(ctx, rangeParams(start, start+dayWindowSeconds))
}

// RequestHistorical requests the trailing window of the given number of
// days. A zero end means now.
func (s *Session) RequestHistorical(ctx context.Context, days int, end time.Time) error {
	if end.IsZero() {
		end = s.now()
	}
	e := end.Unix()
	return s.bulkRequest(ctx, rangeParams(e-int64(days)*secondsPerDay, e))
}
