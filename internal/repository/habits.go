package repository

import (
	"context"
	"fmt"

	"strivesync-backend/internal/domain"
	"strivesync-backend/internal/keys"
	appErrors "strivesync-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"go.uber.org/zap"
)

type habitItem struct {
	PK           string  `dynamodbav:"PK"`
	SK           string  `dynamodbav:"SK"`
	GSI1PK       string  `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK       string  `dynamodbav:"gsi1sk,omitempty"`
	UserID       string  `dynamodbav:"userId"`
	HabitID      string  `dynamodbav:"habitId"`
	HabitName    string  `dynamodbav:"habitName"`
	ReminderTime *string `dynamodbav:"reminderTime"`
	IsPublic     bool    `dynamodbav:"isPublic"`
	CreatedAt    string  `dynamodbav:"createdAt"`
	UpdatedAt    string  `dynamodbav:"updatedAt"`
}

func (i habitItem) toDomain() domain.Habit {
	return domain.Habit{
		UserID:       i.UserID,
		HabitID:      i.HabitID,
		HabitName:    i.HabitName,
		ReminderTime: i.ReminderTime,
		IsPublic:     i.IsPublic,
		CreatedAt:    i.CreatedAt,
		UpdatedAt:    i.UpdatedAt,
	}
}

// HabitChanges lists the mutable habit fields. Nil fields are left untouched;
// ClearReminder removes the reminder.
type HabitChanges struct {
	HabitName     *string
	ReminderTime  *string
	ClearReminder bool
	IsPublic      *bool
	UpdatedAt     string
}

// HabitRepository stores habits under their owner's partition and projects
// public habits into GSI1.
type HabitRepository struct {
	store  Store
	logger *zap.Logger
}

// NewHabitRepository creates a HabitRepository over store.
func NewHabitRepository(store Store, logger *zap.Logger) *HabitRepository {
	return &HabitRepository{store: store, logger: logger.Named("habits")}
}

// Create writes a new habit, failing with AlreadyExists on a duplicate id.
func (r *HabitRepository) Create(ctx context.Context, habit domain.Habit) error {
	key, err := keys.Habit(habit.UserID, habit.HabitID)
	if err != nil {
		return err
	}
	public, err := keys.PublicHabit(habit.IsPublic, habit.HabitID, habit.CreatedAt)
	if err != nil {
		return err
	}

	it := habitItem{
		PK:           key.PK,
		SK:           key.SK,
		UserID:       habit.UserID,
		HabitID:      habit.HabitID,
		HabitName:    habit.HabitName,
		ReminderTime: habit.ReminderTime,
		IsPublic:     habit.IsPublic,
		CreatedAt:    habit.CreatedAt,
		UpdatedAt:    habit.UpdatedAt,
	}
	if public != nil {
		it.GSI1PK, it.GSI1SK = public.PK, public.SK
	}

	item, err := attributevalue.MarshalMap(it)
	if err != nil {
		return appErrors.Wrap(err, "marshal habit")
	}
	if err := r.store.Put(ctx, item, true); err != nil {
		if appErrors.IsAlreadyExists(err) {
			return appErrors.NewAlreadyExistsError("habit", habit.HabitID)
		}
		return fmt.Errorf("create habit %s: %w", habit.HabitID, err)
	}
	return nil
}

// Get returns one habit of userID.
func (r *HabitRepository) Get(ctx context.Context, userID, habitID string) (*domain.Habit, error) {
	it, err := r.load(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	h := it.toDomain()
	return &h, nil
}

func (r *HabitRepository) load(ctx context.Context, userID, habitID string) (*habitItem, error) {
	key, err := keys.Habit(userID, habitID)
	if err != nil {
		return nil, err
	}

	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get habit %s: %w", habitID, err)
	}
	if raw == nil {
		return nil, appErrors.NewNotFoundError("habit", habitID)
	}

	var it habitItem
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, appErrors.Wrap(err, "unmarshal habit")
	}
	return &it, nil
}

// ListByUser returns every habit owned by userID in id order.
func (r *HabitRepository) ListByUser(ctx context.Context, userID string) ([]domain.Habit, error) {
	pk, err := keys.UserPartition(userID)
	if err != nil {
		return nil, err
	}
	return r.list(ctx, QueryInput{Partition: pk, SortPrefix: keys.HabitPrefix, ScanForward: true})
}

// ListPublic returns public habits, newest first. A limit of zero returns all.
func (r *HabitRepository) ListPublic(ctx context.Context, limit int32) ([]domain.Habit, error) {
	return r.list(ctx, QueryInput{Index: IndexGSI1, Partition: keys.PublicHabitPK, ScanForward: false, Limit: limit})
}

func (r *HabitRepository) list(ctx context.Context, in QueryInput) ([]domain.Habit, error) {
	habits := []domain.Habit{}
	for raw, err := range r.store.Query(ctx, in) {
		if err != nil {
			return nil, fmt.Errorf("list habits: %w", err)
		}
		var it habitItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, appErrors.Wrap(err, "unmarshal habit")
		}
		habits = append(habits, it.toDomain())
	}
	return habits, nil
}

// Update merges changes into the habit, reconciles its public projection and
// stamps updatedAt.
func (r *HabitRepository) Update(ctx context.Context, userID, habitID string, changes HabitChanges) (*domain.Habit, error) {
	current, err := r.load(ctx, userID, habitID)
	if err != nil {
		return nil, err
	}
	key, err := keys.Habit(userID, habitID)
	if err != nil {
		return nil, err
	}

	spec := UpdateSpec{
		Set:           map[string]any{"updatedAt": changes.UpdatedAt},
		RequireExists: true,
	}
	if changes.HabitName != nil {
		spec.Set["habitName"] = *changes.HabitName
	}
	switch {
	case changes.ClearReminder:
		spec.Set["reminderTime"] = nil
	case changes.ReminderTime != nil:
		spec.Set["reminderTime"] = *changes.ReminderTime
	}

	decision := DecideVisibility(current.IsPublic, changes.IsPublic, current.GSI1PK != "")
	if decision.Action != IndexNone || changes.IsPublic != nil {
		// The flag and its projection are always written together.
		public, err := keys.PublicHabit(true, habitID, current.CreatedAt)
		if err != nil {
			return nil, err
		}
		spec.Set["isPublic"] = decision.Public
		spec.Indexes = map[string]IndexChange{IndexGSI1: projection(decision.Public, public)}
	}

	raw, err := r.store.Update(ctx, key, spec)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return nil, appErrors.NewNotFoundError("habit", habitID)
		}
		return nil, fmt.Errorf("update habit %s: %w", habitID, err)
	}

	if decision.Action != IndexNone {
		r.logger.Debug("habit visibility changed",
			zap.String("habit_id", habitID),
			zap.Stringer("index_action", decision.Action),
			zap.Bool("public", decision.Public))
	}

	var it habitItem
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, appErrors.Wrap(err, "unmarshal habit")
	}
	h := it.toDomain()
	return &h, nil
}

// Delete removes the habit, failing with NotFound if it does not exist.
func (r *HabitRepository) Delete(ctx context.Context, userID, habitID string) error {
	key, err := keys.Habit(userID, habitID)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, key, true); err != nil {
		if appErrors.IsNotFound(err) {
			return appErrors.NewNotFoundError("habit", habitID)
		}
		return fmt.Errorf("delete habit %s: %w", habitID, err)
	}
	return nil
}

// projection turns a visibility flag into an idempotent index directive.
func projection(public bool, key *keys.Secondary) IndexChange {
	if public {
		return IndexChange{Action: IndexAdd, Key: key}
	}
	return IndexChange{Action: IndexRemove}
}
