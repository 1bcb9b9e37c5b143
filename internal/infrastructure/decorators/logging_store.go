// Package decorators wraps repository.Store with cross-cutting behaviour:
// logging, metrics and circuit breaking. Each decorator keeps the Store
// contract, so they compose in any order.
package decorators

import (
	"context"
	"iter"
	"time"

	"strivesync-backend/internal/keys"
	"strivesync-backend/internal/repository"
	appErrors "strivesync-backend/pkg/errors"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LoggingConfig controls what the logging decorator records.
type LoggingConfig struct {
	LogKeys       bool          // Log primary keys and query partitions
	SlowThreshold time.Duration // Log warning for operations slower than this
}

// DefaultLoggingConfig returns sensible defaults for logging configuration
func DefaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		LogKeys:       true,
		SlowThreshold: 500 * time.Millisecond,
	}
}

// LoggingStore logs every store operation with its duration and outcome.
// Successful operations log at debug, slow ones at warn and store failures at
// error. Expected outcomes such as NotFound or AlreadyExists stay at debug.
type LoggingStore struct {
	inner  repository.Store
	logger *zap.Logger
	config LoggingConfig
}

// NewLoggingStore creates a logging decorator for inner.
func NewLoggingStore(inner repository.Store, logger *zap.Logger, config LoggingConfig) *LoggingStore {
	return &LoggingStore{
		inner:  inner,
		logger: logger.Named("store"),
		config: config,
	}
}

func (s *LoggingStore) fields(ctx context.Context, operation string) []zap.Field {
	fields := []zap.Field{zap.String("operation", operation)}
	if reqID := middleware.GetReqID(ctx); reqID != "" {
		fields = append(fields, zap.String("request_id", reqID))
	}
	return fields
}

func (s *LoggingStore) keyFields(key keys.Primary) []zap.Field {
	if !s.config.LogKeys {
		return nil
	}
	return []zap.Field{zap.String("pk", key.PK), zap.String("sk", key.SK)}
}

func (s *LoggingStore) finish(start time.Time, err error, fields []zap.Field) {
	duration := time.Since(start)
	fields = append(fields, zap.Duration("duration", duration))

	if err != nil && appErrors.IsUnavailable(err) {
		s.logger.Error("store operation failed", append(fields, zap.Error(err))...)
		return
	}
	if err != nil {
		fields = append(fields, zap.String("outcome", outcome(err)))
	}

	level := zapcore.DebugLevel
	message := "store operation completed"
	if s.config.SlowThreshold > 0 && duration > s.config.SlowThreshold {
		level = zapcore.WarnLevel
		message = "slow store operation completed"
	}
	if ce := s.logger.Check(level, message); ce != nil {
		ce.Write(fields...)
	}
}

func (s *LoggingStore) Put(ctx context.Context, item repository.Item, requireAbsent bool) error {
	start := time.Now()
	err := s.inner.Put(ctx, item, requireAbsent)
	s.finish(start, err, append(s.fields(ctx, "put"), zap.Bool("require_absent", requireAbsent)))
	return err
}

func (s *LoggingStore) Get(ctx context.Context, key keys.Primary) (repository.Item, error) {
	start := time.Now()
	item, err := s.inner.Get(ctx, key)
	fields := append(s.fields(ctx, "get"), s.keyFields(key)...)
	s.finish(start, err, append(fields, zap.Bool("found", item != nil)))
	return item, err
}

func (s *LoggingStore) Query(ctx context.Context, in repository.QueryInput) iter.Seq2[repository.Item, error] {
	seq := s.inner.Query(ctx, in)
	return func(yield func(repository.Item, error) bool) {
		start := time.Now()
		count := 0
		var failure error
		defer func() {
			fields := s.fields(ctx, "query")
			if in.Index != "" {
				fields = append(fields, zap.String("index", in.Index))
			}
			if s.config.LogKeys {
				fields = append(fields, zap.String("partition", in.Partition), zap.String("sort_prefix", in.SortPrefix))
			}
			s.finish(start, failure, append(fields, zap.Int("items", count)))
		}()

		for item, err := range seq {
			if err != nil {
				failure = err
			} else {
				count++
			}
			if !yield(item, err) {
				return
			}
		}
	}
}

func (s *LoggingStore) Update(ctx context.Context, key keys.Primary, spec repository.UpdateSpec) (repository.Item, error) {
	start := time.Now()
	item, err := s.inner.Update(ctx, key, spec)
	fields := append(s.fields(ctx, "update"), s.keyFields(key)...)
	if spec.Counter != nil {
		fields = append(fields, zap.String("counter", spec.Counter.Attr), zap.Int64("delta", spec.Counter.Delta))
	}
	for name, change := range spec.Indexes {
		if change.Action != repository.IndexNone {
			fields = append(fields, zap.Stringer("index_"+name, change.Action))
		}
	}
	s.finish(start, err, fields)
	return item, err
}

func (s *LoggingStore) Delete(ctx context.Context, key keys.Primary, requireExists bool) error {
	start := time.Now()
	err := s.inner.Delete(ctx, key, requireExists)
	s.finish(start, err, append(s.fields(ctx, "delete"), s.keyFields(key)...))
	return err
}

// outcome names the result of an operation for logs and metrics.
func outcome(err error) string {
	if err == nil {
		return "success"
	}
	if appErr := appErrors.GetAppError(err); appErr != nil {
		return string(appErr.Type)
	}
	return "error"
}
