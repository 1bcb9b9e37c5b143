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

type userItem struct {
	PK        string `dynamodbav:"PK"`
	SK        string `dynamodbav:"SK"`
	UserID    string `dynamodbav:"userId"`
	Email     string `dynamodbav:"email,omitempty"`
	Username  string `dynamodbav:"username"`
	FirstName string `dynamodbav:"firstName"`
	LastName  string `dynamodbav:"lastName"`
	CreatedAt string `dynamodbav:"createdAt"`
	UpdatedAt string `dynamodbav:"updatedAt"`
}

func (i userItem) toDomain() *domain.User {
	return &domain.User{
		UserID:    i.UserID,
		Email:     i.Email,
		Username:  i.Username,
		FirstName: i.FirstName,
		LastName:  i.LastName,
		CreatedAt: i.CreatedAt,
		UpdatedAt: i.UpdatedAt,
	}
}

// UserChanges lists the mutable profile fields. Nil fields are left untouched.
type UserChanges struct {
	Username  *string
	FirstName *string
	LastName  *string
	UpdatedAt string
}

// UserRepository stores user profiles.
type UserRepository struct {
	store  Store
	logger *zap.Logger
}

// NewUserRepository creates a UserRepository over store.
func NewUserRepository(store Store, logger *zap.Logger) *UserRepository {
	return &UserRepository{store: store, logger: logger.Named("users")}
}

// Create writes the profile, failing with AlreadyExists if the user has one.
func (r *UserRepository) Create(ctx context.Context, user domain.User) error {
	key, err := keys.UserProfile(user.UserID)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(userItem{
		PK:        key.PK,
		SK:        key.SK,
		UserID:    user.UserID,
		Email:     user.Email,
		Username:  user.Username,
		FirstName: user.FirstName,
		LastName:  user.LastName,
		CreatedAt: user.CreatedAt,
		UpdatedAt: user.UpdatedAt,
	})
	if err != nil {
		return appErrors.Wrap(err, "marshal user")
	}

	if err := r.store.Put(ctx, item, true); err != nil {
		if appErrors.IsAlreadyExists(err) {
			return appErrors.NewAlreadyExistsError("user", user.UserID)
		}
		return fmt.Errorf("create user %s: %w", user.UserID, err)
	}

	r.logger.Debug("user created", zap.String("user_id", user.UserID))
	return nil
}

// Get returns the profile of userID.
func (r *UserRepository) Get(ctx context.Context, userID string) (*domain.User, error) {
	key, err := keys.UserProfile(userID)
	if err != nil {
		return nil, err
	}

	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get user %s: %w", userID, err)
	}
	if raw == nil {
		return nil, appErrors.NewNotFoundError("user", userID)
	}
	return unmarshalUser(raw)
}

// GetByEmail returns the first profile registered with email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	if email == "" {
		return nil, appErrors.NewInvalidKeyInputError("email")
	}

	for raw, err := range r.store.Query(ctx, QueryInput{Index: IndexEmail, Partition: email, Limit: 1}) {
		if err != nil {
			return nil, fmt.Errorf("get user by email: %w", err)
		}
		return unmarshalUser(raw)
	}
	return nil, appErrors.NewNotFoundError("user", "")
}

// Update applies changes and stamps updatedAt.
func (r *UserRepository) Update(ctx context.Context, userID string, changes UserChanges) (*domain.User, error) {
	key, err := keys.UserProfile(userID)
	if err != nil {
		return nil, err
	}

	set := map[string]any{"updatedAt": changes.UpdatedAt}
	if changes.Username != nil {
		set["username"] = *changes.Username
	}
	if changes.FirstName != nil {
		set["firstName"] = *changes.FirstName
	}
	if changes.LastName != nil {
		set["lastName"] = *changes.LastName
	}

	raw, err := r.store.Update(ctx, key, UpdateSpec{Set: set, RequireExists: true})
	if err != nil {
		if appErrors.IsNotFound(err) {
			return nil, appErrors.NewNotFoundError("user", userID)
		}
		return nil, fmt.Errorf("update user %s: %w", userID, err)
	}
	return unmarshalUser(raw)
}

func unmarshalUser(raw Item) (*domain.User, error) {
	var it userItem
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, appErrors.Wrap(err, "unmarshal user")
	}
	return it.toDomain(), nil
}
