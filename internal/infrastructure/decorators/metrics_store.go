package decorators

import (
	"context"
	"iter"
	"time"

	"strivesync-backend/internal/infrastructure/observability"
	"strivesync-backend/internal/keys"
	"strivesync-backend/internal/repository"
)

// MetricsStore records operation counts by outcome and latency histograms.
type MetricsStore struct {
	inner     repository.Store
	collector *observability.Collector
}

// NewMetricsStore creates a metrics decorator for inner.
func NewMetricsStore(inner repository.Store, collector *observability.Collector) *MetricsStore {
	return &MetricsStore{inner: inner, collector: collector}
}

func (s *MetricsStore) observe(operation string, start time.Time, err error) {
	s.collector.StoreDuration.WithLabelValues(operation).Observe(time.Since(start).Seconds())
	s.collector.StoreOperations.WithLabelValues(operation, outcome(err)).Inc()
}

func (s *MetricsStore) Put(ctx context.Context, item repository.Item, requireAbsent bool) error {
	start := time.Now()
	err := s.inner.Put(ctx, item, requireAbsent)
	s.observe("put", start, err)
	return err
}

func (s *MetricsStore) Get(ctx context.Context, key keys.Primary) (repository.Item, error) {
	start := time.Now()
	item, err := s.inner.Get(ctx, key)
	s.observe("get", start, err)
	return item, err
}

func (s *MetricsStore) Query(ctx context.Context, in repository.QueryInput) iter.Seq2[repository.Item, error] {
	seq := s.inner.Query(ctx, in)
	return func(yield func(repository.Item, error) bool) {
		start := time.Now()
		var failure error
		defer func() { s.observe("query", start, failure) }()

		for item, err := range seq {
			if err != nil {
				failure = err
			}
			if !yield(item, err) {
				return
			}
		}
	}
}

func (s *MetricsStore) Update(ctx context.Context, key keys.Primary, spec repository.UpdateSpec) (repository.Item, error) {
	start := time.Now()
	item, err := s.inner.Update(ctx, key, spec)
	s.observe("update", start, err)
	return item, err
}

func (s *MetricsStore) Delete(ctx context.Context, key keys.Primary, requireExists bool) error {
	start := time.Now()
	err := s.inner.Delete(ctx, key, requireExists)
	s.observe("delete", start, err)
	return err
}
