// Package saga runs multi-item writes as a sequence of idempotent steps with
// best-effort compensation in reverse order.
package saga

import (
	"context"
	"errors"
	"fmt"
	"time"

	appErrors "strivesync-backend/pkg/errors"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Step is a single step in a saga. Steps share state through closures.
type Step struct {
	Name       string
	Execute    func(ctx context.Context) error
	Compensate func(ctx context.Context) error
	// MaxRetries applies to retryable errors only; zero means one attempt.
	MaxRetries int
	RetryDelay time.Duration
}

// State represents the current state of a saga execution
type State string

const (
	StatePending      State = "PENDING"
	StateRunning      State = "RUNNING"
	StateCompleted    State = "COMPLETED"
	StateFailed       State = "FAILED"
	StateCompensating State = "COMPENSATING"
	StateCompensated  State = "COMPENSATED"
)

// Saga orchestrates a series of steps with compensation logic
type Saga struct {
	id     string
	name   string
	steps  []Step
	state  State
	logger *zap.Logger
	fields []zap.Field
}

// New creates a new saga instance
func New(name string, logger *zap.Logger) *Saga {
	return &Saga{
		id:     uuid.NewString(),
		name:   name,
		state:  StatePending,
		logger: logger.Named("saga"),
	}
}

// WithFields attaches fields to every log line of the saga.
func (s *Saga) WithFields(fields ...zap.Field) *Saga {
	s.fields = append(s.fields, fields...)
	return s
}

// AddStep adds a step to the saga
func (s *Saga) AddStep(step Step) *Saga {
	s.steps = append(s.steps, step)
	return s
}

// State returns the current state of the saga
func (s *Saga) State() State {
	return s.state
}

// ID returns the saga ID
func (s *Saga) ID() string {
	return s.id
}

func (s *Saga) log() *zap.Logger {
	return s.logger.With(append([]zap.Field{
		zap.String("saga_id", s.id),
		zap.String("saga_name", s.name),
	}, s.fields...)...)
}

// Execute runs the steps in order. When a step fails the completed steps are
// compensated in reverse order and the step's error is returned wrapped, so
// its type stays visible to errors.Is and errors.As.
func (s *Saga) Execute(ctx context.Context) error {
	logger := s.log()
	s.state = StateRunning
	logger.Debug("starting saga", zap.Int("total_steps", len(s.steps)))

	for i, step := range s.steps {
		if err := s.executeWithRetry(ctx, logger, step); err != nil {
			s.state = StateFailed
			logger.Warn("saga step failed",
				zap.String("step_name", step.Name),
				zap.Int("step_number", i+1),
				zap.Error(err),
			)

			if compErr := s.compensate(ctx, logger, i); compErr != nil {
				// Left for reconciliation.
				logger.Error("saga compensation failed",
					zap.String("failed_step", step.Name),
					zap.Error(compErr),
				)
				return fmt.Errorf("saga %s failed at step %s and compensation failed: %w", s.name, step.Name, err)
			}

			s.state = StateCompensated
			return fmt.Errorf("saga %s failed at step %s: %w", s.name, step.Name, err)
		}
	}

	s.state = StateCompleted
	logger.Debug("saga completed", zap.Int("completed_steps", len(s.steps)))
	return nil
}

func (s *Saga) executeWithRetry(ctx context.Context, logger *zap.Logger, step Step) error {
	attempts := step.MaxRetries + 1
	delay := step.RetryDelay
	if delay == 0 {
		delay = 50 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			logger.Debug("retrying saga step",
				zap.String("step_name", step.Name),
				zap.Int("attempt", attempt+1),
			)
			select {
			case <-time.After(delay):
				delay *= 2
			case <-ctx.Done():
				return errors.Join(lastErr, ctx.Err())
			}
		}

		err := step.Execute(ctx)
		if err == nil {
			return nil
		}
		lastErr = err
		if !appErrors.IsRetryable(err) {
			break
		}
	}
	return lastErr
}

// compensate undoes steps [0, failed) in reverse order. Every compensation is
// attempted; their failures are joined.
func (s *Saga) compensate(ctx context.Context, logger *zap.Logger, failed int) error {
	s.state = StateCompensating

	var errs []error
	for i := failed - 1; i >= 0; i-- {
		step := s.steps[i]
		if step.Compensate == nil {
			continue
		}
		logger.Debug("compensating saga step", zap.String("step_name", step.Name))

		// Compensation must run even when the request context is gone.
		if err := step.Compensate(context.WithoutCancel(ctx)); err != nil {
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.Name, err))
		}
	}
	return errors.Join(errs...)
}
