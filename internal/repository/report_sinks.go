package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"OrgTrader/internal/domain/models"
	domrepo "OrgTrader/internal/domain/repository"
	"OrgTrader/pkg/cache"
)

const latestReportKey = "report:latest"

// CacheReportStore keeps the latest report in a cache so the HTTP API can serve it without
// touching the live ensemble.
type CacheReportStore struct {
	c   cache.Service
	ttl time.Duration
}

func NewCacheReportStore(c cache.Service, ttl time.Duration) *CacheReportStore {
	return &CacheReportStore{c: c, ttl: ttl}
}

func (s *CacheReportStore) Publish(ctx context.Context, r models.EnsembleReport) error {
	if err := s.c.Set(ctx, latestReportKey, r, s.ttl); err != nil {
		return fmt.Errorf("cache report: %w", err)
	}
	return nil
}

func (s *CacheReportStore) Latest(ctx context.Context) (*models.EnsembleReport, error) {
	var r models.EnsembleReport
	if err := s.c.Get(ctx, latestReportKey, &r); err != nil {
		if errors.Is(err, cache.ErrCacheMiss) {
			return nil, domrepo.ErrNotFound
		}
		return nil, fmt.Errorf("load report: %w", err)
	}
	return &r, nil
}

// KafkaReportSink publishes every report to a status topic keyed by ensemble name.
type KafkaReportSink struct {
	pub   MessagePublisher
	topic string
}

func NewKafkaReportSink(pub MessagePublisher, topic string) *KafkaReportSink {
	return &KafkaReportSink{pub: pub, topic: topic}
}

func (s *KafkaReportSink) Publish(ctx context.Context, r models.EnsembleReport) error {
	if err := s.pub.Publish(traced(ctx), s.topic, []byte(r.Name), r); err != nil {
		return fmt.Errorf("publish report: %w", err)
	}
	return nil
}

// MultiSink fans a report out to every sink. All sinks are tried; failures are joined.
type MultiSink []domrepo.ReportSink

func (m MultiSink) Publish(ctx context.Context, r models.EnsembleReport) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

var (
	_ domrepo.ReportSink  = (*CacheReportStore)(nil)
	_ domrepo.ReportStore = (*CacheReportStore)(nil)
	_ domrepo.ReportSink  = (*KafkaReportSink)(nil)
	_ domrepo.ReportSink  = MultiSink(nil)
)
