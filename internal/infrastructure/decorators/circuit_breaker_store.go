package decorators

import (
	"context"
	"errors"
	"iter"
	"time"

	"strivesync-backend/internal/infrastructure/observability"
	"strivesync-backend/internal/keys"
	"strivesync-backend/internal/repository"
	appErrors "strivesync-backend/pkg/errors"

	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// CircuitBreakerConfig holds configuration for circuit breaker
type CircuitBreakerConfig struct {
	Name        string
	MaxRequests uint32
	Interval    time.Duration
	Timeout     time.Duration
	// ReadyToTrip trips once FailureThreshold of at least MinRequests failed.
	FailureThreshold float64
	MinRequests      uint32
}

// DefaultCircuitBreakerConfig returns a default configuration for circuit breaker
func DefaultCircuitBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:             name,
		MaxRequests:      5,
		Interval:         30 * time.Second,
		Timeout:          60 * time.Second,
		FailureThreshold: 0.8,
		MinRequests:      5,
	}
}

// CircuitBreakerStore stops calling the backend after repeated failures and
// answers with StoreUnavailable until the breaker half-opens. Only
// StoreUnavailable counts as a failure; NotFound, AlreadyExists and
// ConditionFailed are normal answers from a healthy backend.
type CircuitBreakerStore struct {
	inner repository.Store
	cb    *gobreaker.CircuitBreaker
}

// NewCircuitBreakerStore creates a breaker decorator for inner. collector may be nil.
func NewCircuitBreakerStore(inner repository.Store, config CircuitBreakerConfig, logger *zap.Logger, collector *observability.Collector) *CircuitBreakerStore {
	logger = logger.Named("circuit_breaker")

	cb := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        config.Name,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.Requests < config.MinRequests {
				return false
			}
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return failureRatio >= config.FailureThreshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				zap.String("name", name),
				zap.String("from", from.String()),
				zap.String("to", to.String()))
			if collector != nil {
				collector.BreakerState.WithLabelValues(name).Set(float64(to))
			}
		},
		IsSuccessful: func(err error) bool {
			return err == nil || !appErrors.IsUnavailable(err)
		},
	})

	return &CircuitBreakerStore{inner: inner, cb: cb}
}

// State returns the current breaker state.
func (s *CircuitBreakerStore) State() gobreaker.State {
	return s.cb.State()
}

func (s *CircuitBreakerStore) execute(operation string, fn func() (any, error)) (any, error) {
	result, err := s.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, appErrors.NewUnavailableError(operation, err)
	}
	return result, err
}

func (s *CircuitBreakerStore) Put(ctx context.Context, item repository.Item, requireAbsent bool) error {
	_, err := s.execute("Put", func() (any, error) {
		return nil, s.inner.Put(ctx, item, requireAbsent)
	})
	return err
}

func (s *CircuitBreakerStore) Get(ctx context.Context, key keys.Primary) (repository.Item, error) {
	result, err := s.execute("Get", func() (any, error) {
		return s.inner.Get(ctx, key)
	})
	if err != nil {
		return nil, err
	}
	item, _ := result.(repository.Item)
	return item, nil
}

// Query admits the whole iteration through the breaker. The outcome recorded
// is the first error the sequence yields.
func (s *CircuitBreakerStore) Query(ctx context.Context, in repository.QueryInput) iter.Seq2[repository.Item, error] {
	seq := s.inner.Query(ctx, in)
	return func(yield func(repository.Item, error) bool) {
		admitted := false
		_, err := s.execute("Query", func() (any, error) {
			admitted = true
			for item, err := range seq {
				if !yield(item, err) || err != nil {
					return nil, err
				}
			}
			return nil, nil
		})
		if !admitted && err != nil {
			yield(nil, err)
		}
	}
}

func (s *CircuitBreakerStore) Update(ctx context.Context, key keys.Primary, spec repository.UpdateSpec) (repository.Item, error) {
	result, err := s.execute("Update", func() (any, error) {
		return s.inner.Update(ctx, key, spec)
	})
	if err != nil {
		return nil, err
	}
	item, _ := result.(repository.Item)
	return item, nil
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, key keys.Primary, requireExists bool) error {
	_, err := s.execute("Delete", func() (any, error) {
		return nil, s.inner.Delete(ctx, key, requireExists)
	})
	return err
}
