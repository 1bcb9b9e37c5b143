package service

import (
	"context"
	"strings"

	"strivesync-backend/internal/domain"
	"strivesync-backend/internal/events"
	"strivesync-backend/internal/repository"
	appErrors "strivesync-backend/pkg/errors"

	"go.uber.org/zap"
)

// CreateHabitInput describes a new habit.
type CreateHabitInput struct {
	HabitName    string
	ReminderTime *string
	IsPublic     bool
}

// UpdateHabitInput carries optional habit changes.
type UpdateHabitInput struct {
	HabitName     *string
	ReminderTime  *string
	ClearReminder bool
	IsPublic      *bool
}

// HabitService manages a user's habits and the public habit feed.
type HabitService struct {
	repo *repository.HabitRepository
	deps Deps
	log  *zap.Logger
}

// NewHabitService creates a HabitService.
func NewHabitService(repo *repository.HabitRepository, deps Deps) *HabitService {
	deps = deps.withDefaults()
	return &HabitService{repo: repo, deps: deps, log: deps.Logger.Named("habit_service")}
}

// Create stores a new habit owned by userID.
func (s *HabitService) Create(ctx context.Context, userID string, in CreateHabitInput) (*domain.Habit, error) {
	if strings.TrimSpace(in.HabitName) == "" {
		return nil, appErrors.NewValidationError("habitName is required")
	}

	now := domain.Timestamp(s.deps.Now())
	habit := domain.Habit{
		UserID:       userID,
		HabitID:      s.deps.NewID(),
		HabitName:    in.HabitName,
		ReminderTime: in.ReminderTime,
		IsPublic:     in.IsPublic,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.Create(ctx, habit); err != nil {
		return nil, err
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.HabitsCreated.Inc()
	}
	s.log.Debug("habit created",
		zap.String("user_id", userID),
		zap.String("habit_id", habit.HabitID),
		zap.Bool("public", habit.IsPublic))
	s.deps.publish(ctx, s.log, events.New(events.TypeHabitCreated, habit.HabitID, userID, s.deps.Now(),
		map[string]any{"habitName": habit.HabitName, "isPublic": habit.IsPublic}))
	return &habit, nil
}

// Get returns one of userID's habits.
func (s *HabitService) Get(ctx context.Context, userID, habitID string) (*domain.Habit, error) {
	return s.repo.Get(ctx, userID, habitID)
}

// ListByUser returns every habit owned by userID.
func (s *HabitService) ListByUser(ctx context.Context, userID string) ([]domain.Habit, error) {
	return s.repo.ListByUser(ctx, userID)
}

// ListPublic returns public habits, newest first.
func (s *HabitService) ListPublic(ctx context.Context, limit int32) ([]domain.Habit, error) {
	return s.repo.ListPublic(ctx, limit)
}

// Update applies changes to one of userID's habits. An empty change set only
// stamps updatedAt.
func (s *HabitService) Update(ctx context.Context, userID, habitID string, in UpdateHabitInput) (*domain.Habit, error) {
	if in.HabitName != nil && strings.TrimSpace(*in.HabitName) == "" {
		return nil, appErrors.NewValidationError("habitName cannot be empty")
	}

	habit, err := s.repo.Update(ctx, userID, habitID, repository.HabitChanges{
		HabitName:     in.HabitName,
		ReminderTime:  in.ReminderTime,
		ClearReminder: in.ClearReminder,
		IsPublic:      in.IsPublic,
		UpdatedAt:     domain.Timestamp(s.deps.Now()),
	})
	if err != nil {
		return nil, err
	}

	s.deps.publish(ctx, s.log, events.New(events.TypeHabitUpdated, habitID, userID, s.deps.Now(),
		map[string]any{"isPublic": habit.IsPublic}))
	return habit, nil
}

// Delete removes one of userID's habits.
func (s *HabitService) Delete(ctx context.Context, userID, habitID string) error {
	if err := s.repo.Delete(ctx, userID, habitID); err != nil {
		return err
	}
	s.deps.publish(ctx, s.log, events.New(events.TypeHabitDeleted, habitID, userID, s.deps.Now(), nil))
	return nil
}
