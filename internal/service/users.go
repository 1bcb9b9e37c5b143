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

// CreateUserInput is the profile a user registers with.
type CreateUserInput struct {
	Email     string
	Username  string
	FirstName string
	LastName  string
}

// UpdateUserInput carries optional profile changes.
type UpdateUserInput struct {
	Username  *string
	FirstName *string
	LastName  *string
}

// UserService manages user profiles.
type UserService struct {
	repo *repository.UserRepository
	deps Deps
	log  *zap.Logger
}

// NewUserService creates a UserService.
func NewUserService(repo *repository.UserRepository, deps Deps) *UserService {
	deps = deps.withDefaults()
	return &UserService{repo: repo, deps: deps, log: deps.Logger.Named("user_service")}
}

// Create stores the caller's profile. A second call fails with AlreadyExists.
func (s *UserService) Create(ctx context.Context, userID string, in CreateUserInput) (*domain.User, error) {
	if strings.TrimSpace(in.Username) == "" {
		return nil, appErrors.NewValidationError("username is required")
	}

	now := domain.Timestamp(s.deps.Now())
	user := domain.User{
		UserID:    userID,
		Email:     strings.ToLower(strings.TrimSpace(in.Email)),
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Create(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("user profile created", zap.String("user_id", userID))
	s.deps.publish(ctx, s.log, events.New(events.TypeUserCreated, userID, userID, s.deps.Now(), nil))
	return &user, nil
}

// Get returns the profile of userID.
func (s *UserService) Get(ctx context.Context, userID string) (*domain.User, error) {
	return s.repo.Get(ctx, userID)
}

// Update applies profile changes and stamps updatedAt.
func (s *UserService) Update(ctx context.Context, userID string, in UpdateUserInput) (*domain.User, error) {
	if in.Username != nil && strings.TrimSpace(*in.Username) == "" {
		return nil, appErrors.NewValidationError("username cannot be empty")
	}
	return s.repo.Update(ctx, userID, repository.UserChanges{
		Username:  in.Username,
		FirstName: in.FirstName,
		LastName:  in.LastName,
		UpdatedAt: domain.Timestamp(s.deps.Now()),
	})
}
