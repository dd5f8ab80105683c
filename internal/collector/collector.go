// Package collector orchestrates one collection: fetch an ESPI document
// from a resource URI, archive the raw XML, stream the corrected interval
// readings, and hand them to the sink.
package collector

import (
	"bytes"
	"context"
	"fmt"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/smdcollect/smdcollect/internal/espi"
	"github.com/smdcollect/smdcollect/internal/sink"
	"github.com/smdcollect/smdcollect/internal/smd"
)

// ResourceFetcher retrieves a raw ESPI document from a resource URI.
type ResourceFetcher interface {
	FetchResource(ctx context.Context, resourceURI string) ([]byte, error)
}

// Archiver persists a raw document before parsing touches it.
type Archiver interface {
	Save(xmlData []byte, label string) (string, error)
}

type Collector struct {
	fetcher ResourceFetcher
	repo    sink.ReadingRepository
	archive Archiver
	logger  *logrus.Logger
	seen    *lru.Cache
}

// New builds a collector. archive may be nil to skip raw persistence.
// seenSize bounds the in-run cache of already-collected resource URIs;
// deduplication never extends across runs.
func New(fetcher ResourceFetcher, repo sink.ReadingRepository, archive Archiver, logger *logrus.Logger, seenSize int) (*Collector, error) {
	seen, err := lru.New(seenSize)
	if err != nil {
		return nil, err
	}
	return &Collector{
		fetcher: fetcher,
		repo:    repo,
		archive: archive,
		logger:  logger,
		seen:    seen,
	}, nil
}

// Collect fetches, archives, parses, and stores one resource. It returns
// the number of readings stored; a resource already collected in this run
// is skipped with a zero count.
func (c *Collector) Collect(ctx context.Context, resourceURI string) (int, error) {
	log := c.logger.WithFields(logrus.Fields{
		"request_id": uuid.NewString(),
		"uri":        resourceURI,
	})

	if c.seen.Contains(resourceURI) {
		log.Debug("resource already collected this run, skipping")
		return 0, nil
	}

	timer := prometheus.NewTimer(FetchDuration)
	defer timer.ObserveDuration()

	body, err := c.fetcher.FetchResource(ctx, resourceURI)
	if err != nil {
		Fetches.WithLabelValues("fetch_error").Inc()
		return 0, err
	}

	if c.archive != nil {
		if _, err := c.archive.Save(body, ""); err != nil {
			// Parsing still proceeds; the fetch is not wasted.
			log.WithError(err).Warn("failed to archive raw document")
		}
	}

	readings, err := espi.ReadAll(bytes.NewReader(body))
	if err != nil {
		Fetches.WithLabelValues("malformed").Inc()
		log.WithError(err).Error("failed to parse espi document")
		return 0, fmt.Errorf("%w: %v", smd.ErrMalformedDocument, err)
	}

	if err := c.repo.BatchInsert(ctx, readings); err != nil {
		Fetches.WithLabelValues("store_error").Inc()
		log.WithError(err).Error("failed to store readings")
		return 0, err
	}

	c.seen.Add(resourceURI, struct{}{})
	Fetches.WithLabelValues("ok").Inc()
	Readings.Add(float64(len(readings)))

	log.WithField("readings", len(readings)).Info("collected resource")
	return len(readings), nil
}

// IngestNotification extracts every resource URI from a notification body
// and collects each one. Individual collection failures are logged and do
// not stop the remaining URIs; the first failure is reported alongside
// the total stored.
func (c *Collector) IngestNotification(ctx context.Context, body []byte) (int, error) {
	uris, err := espi.FindResourceURIs(bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("%w: %v", smd.ErrMalformedDocument, err)
	}
	if len(uris) == 0 {
		c.logger.Warn("notification carried no resource URIs")
		return 0, nil
	}

	var total int
	var firstErr error
	for _, uri := range uris {
		n, err := c.Collect(ctx, uri)
		if err != nil {
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		total += n
	}
	return total, firstErr
}
