package service

import (
	"context"
	"strings"
	"time"

	"strivesync-backend/internal/domain"
	"strivesync-backend/internal/events"
	"strivesync-backend/internal/repository"
	"strivesync-backend/internal/saga"
	appErrors "strivesync-backend/pkg/errors"

	"go.uber.org/zap"
)

// CreateActivityInput describes a new activity. A MaxParticipants of zero
// means unlimited.
type CreateActivityInput struct {
	ActivityName    string
	Description     string
	Location        domain.Location
	DateTime        string
	EndTime         string
	Frequency       string
	IsPublic        bool
	MaxParticipants int
	Category        string
	PhotoURL        string
}

// UpdateActivityInput carries optional activity changes.
type UpdateActivityInput struct {
	ActivityName *string
	Description  *string
	Category     *string
	PhotoURL     *string
	IsPublic     *bool
}

// ActivityService manages activities, their seats and RSVPs.
type ActivityService struct {
	repo *repository.ActivityRepository
	deps Deps
	log  *zap.Logger
}

// NewActivityService creates an ActivityService.
func NewActivityService(repo *repository.ActivityRepository, deps Deps) *ActivityService {
	deps = deps.withDefaults()
	return &ActivityService{repo: repo, deps: deps, log: deps.Logger.Named("activity_service")}
}

// Create stores a new activity and seats its creator. If the creator cannot
// join, the activity is removed again.
func (s *ActivityService) Create(ctx context.Context, userID string, in CreateActivityInput) (*domain.Activity, error) {
	if err := validateActivity(in); err != nil {
		return nil, err
	}

	now := domain.Timestamp(s.deps.Now())
	activity := domain.Activity{
		ActivityID:      s.deps.NewID(),
		CreatedBy:       userID,
		ActivityName:    in.ActivityName,
		Description:     in.Description,
		Location:        in.Location,
		DateTime:        in.DateTime,
		EndTime:         in.EndTime,
		Frequency:       in.Frequency,
		IsPublic:        in.IsPublic,
		MaxParticipants: in.MaxParticipants,
		Category:        in.Category,
		PhotoURL:        in.PhotoURL,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	sg := saga.New("create_activity", s.deps.Logger).
		WithFields(zap.String("activity_id", activity.ActivityID), zap.String("user_id", userID)).
		AddStep(saga.Step{
			Name: "create_activity",
			Execute: func(ctx context.Context) error {
				return s.repo.Create(ctx, activity)
			},
			Compensate: func(ctx context.Context) error {
				err := s.repo.Delete(ctx, activity.ActivityID)
				if appErrors.IsNotFound(err) {
					return nil
				}
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "creator_join",
			Execute: func(ctx context.Context) error {
				_, err := s.Join(ctx, activity.ActivityID, userID)
				return err
			},
		})

	if err := sg.Execute(ctx); err != nil {
		return nil, err
	}

	created, err := s.repo.Get(ctx, activity.ActivityID)
	if err != nil {
		return nil, err
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.ActivitiesCreated.Inc()
	}
	s.log.Info("activity created",
		zap.String("activity_id", created.ActivityID),
		zap.String("user_id", userID),
		zap.Int("max_participants", created.MaxParticipants))
	s.deps.publish(ctx, s.log, events.New(events.TypeActivityCreated, created.ActivityID, userID, s.deps.Now(),
		map[string]any{"activityName": created.ActivityName, "isPublic": created.IsPublic}))
	return created, nil
}

func validateActivity(in CreateActivityInput) error {
	switch {
	case strings.TrimSpace(in.ActivityName) == "":
		return appErrors.NewValidationError("activityName is required")
	case strings.TrimSpace(in.Location.Address) == "":
		return appErrors.NewValidationError("location.address is required")
	case in.MaxParticipants < 0:
		return appErrors.NewValidationError("maxParticipants cannot be negative")
	}
	if _, err := time.Parse(time.RFC3339, in.DateTime); err != nil {
		return appErrors.NewValidationError("dateTime must be an RFC 3339 timestamp")
	}
	if in.EndTime != "" {
		if _, err := time.Parse(time.RFC3339, in.EndTime); err != nil {
			return appErrors.NewValidationError("endTime must be an RFC 3339 timestamp")
		}
	}
	return nil
}

// Get returns one activity.
func (s *ActivityService) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	return s.repo.Get(ctx, activityID)
}

// ListPublic returns public activities.
func (s *ActivityService) ListPublic(ctx context.Context, limit int32) ([]domain.Activity, error) {
	return s.repo.ListPublic(ctx, limit)
}

// ListMine returns every RSVP made by userID.
func (s *ActivityService) ListMine(ctx context.Context, userID string) ([]domain.Participation, error) {
	return s.repo.ListParticipationsByUser(ctx, userID)
}

// ListParticipants returns every RSVP to activityID.
func (s *ActivityService) ListParticipants(ctx context.Context, activityID string) ([]domain.Participation, error) {
	if _, err := s.repo.Get(ctx, activityID); err != nil {
		return nil, err
	}
	return s.repo.ListParticipants(ctx, activityID)
}

// Update applies changes to an activity created by userID.
func (s *ActivityService) Update(ctx context.Context, userID, activityID string, in UpdateActivityInput) (*domain.Activity, error) {
	if in.ActivityName != nil && strings.TrimSpace(*in.ActivityName) == "" {
		return nil, appErrors.NewValidationError("activityName cannot be empty")
	}
	if err := s.authorize(ctx, userID, activityID); err != nil {
		return nil, err
	}

	activity, err := s.repo.Update(ctx, activityID, repository.ActivityChanges{
		ActivityName: in.ActivityName,
		Description:  in.Description,
		Category:     in.Category,
		PhotoURL:     in.PhotoURL,
		IsPublic:     in.IsPublic,
		UpdatedAt:    domain.Timestamp(s.deps.Now()),
	})
	if err != nil {
		return nil, err
	}

	s.deps.publish(ctx, s.log, events.New(events.TypeActivityUpdated, activityID, userID, s.deps.Now(),
		map[string]any{"isPublic": activity.IsPublic}))
	return activity, nil
}

// Delete removes an activity created by userID together with its seat markers.
// RSVP records stay with their users.
func (s *ActivityService) Delete(ctx context.Context, userID, activityID string) error {
	if err := s.authorize(ctx, userID, activityID); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, activityID); err != nil {
		return err
	}

	removed, err := s.repo.ClearMemberships(ctx, activityID)
	if err != nil {
		s.log.Error("failed to clear memberships of deleted activity",
			zap.String("activity_id", activityID),
			zap.Int("removed", removed),
			zap.Error(err))
	}

	s.deps.publish(ctx, s.log, events.New(events.TypeActivityDeleted, activityID, userID, s.deps.Now(), nil))
	return nil
}

func (s *ActivityService) authorize(ctx context.Context, userID, activityID string) error {
	activity, err := s.repo.Get(ctx, activityID)
	if err != nil {
		return err
	}
	if activity.CreatedBy != userID {
		return appErrors.NewForbiddenError("only the creator can modify this activity")
	}
	return nil
}

// RSVP records userID's answer to an activity. Going takes a seat, declined
// releases one.
func (s *ActivityService) RSVP(ctx context.Context, userID, activityID string, status domain.RSVPStatus) (*domain.Participation, error) {
	switch status {
	case domain.RSVPGoing:
		return s.Join(ctx, activityID, userID)
	case domain.RSVPDeclined:
		return s.Leave(ctx, activityID, userID)
	default:
		return nil, appErrors.NewValidationError("status must be 'going' or 'declined'")
	}
}

// Join seats userID at the activity. Joining twice keeps a single seat. It
// fails with Full when every seat is taken.
func (s *ActivityService) Join(ctx context.Context, activityID, userID string) (*domain.Participation, error) {
	now := s.deps.Now()
	participation := domain.Participation{
		UserID:     userID,
		ActivityID: activityID,
		Status:     domain.RSVPGoing,
		Timestamp:  domain.Timestamp(now),
	}

	var (
		alreadySeated bool
		reserved      bool
		incremented   bool
	)

	sg := saga.New("join_activity", s.deps.Logger).
		WithFields(zap.String("activity_id", activityID), zap.String("user_id", userID)).
		AddStep(saga.Step{
			Name:       "load_activity",
			MaxRetries: 2,
			Execute: func(ctx context.Context) error {
				_, err := s.repo.Get(ctx, activityID)
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "reserve_membership",
			Execute: func(ctx context.Context) error {
				err := s.repo.PutMembership(ctx, activityID, userID, participation.Timestamp, repository.MembershipPending)
				if !appErrors.IsAlreadyExists(err) {
					reserved = err == nil
					return err
				}
				// Only a seated marker proves the seat was counted.
				m, err := s.repo.GetMembership(ctx, activityID, userID)
				switch {
				case err != nil:
					return err
				case m != nil && m.State == repository.MembershipSeated:
					alreadySeated = true
					return nil
				case m != nil && !abandoned(m, now):
					return appErrors.NewConflictError("a join for this user is already in progress")
				}
				if err := s.repo.DeleteMembership(ctx, activityID, userID, false); err != nil {
					return err
				}
				err = s.repo.PutMembership(ctx, activityID, userID, participation.Timestamp, repository.MembershipPending)
				if appErrors.IsAlreadyExists(err) {
					return appErrors.NewConflictError("a join for this user is already in progress")
				}
				reserved = err == nil
				return err
			},
			Compensate: func(ctx context.Context) error {
				if !reserved {
					return nil
				}
				return s.repo.DeleteMembership(ctx, activityID, userID, false)
			},
		}).
		AddStep(saga.Step{
			Name: "take_seat",
			Execute: func(ctx context.Context) error {
				if alreadySeated {
					return nil
				}
				_, err := s.repo.AdjustParticipants(ctx, activityID, 1)
				if appErrors.IsConditionFailed(err) {
					return appErrors.NewFullError(activityID)
				}
				if err == nil {
					incremented = true
				}
				return err
			},
			Compensate: func(ctx context.Context) error {
				if !incremented {
					return nil
				}
				_, err := s.repo.AdjustParticipants(ctx, activityID, -1)
				if appErrors.IsNotFound(err) {
					return nil
				}
				return err
			},
		}).
		AddStep(saga.Step{
			Name:       "confirm_membership",
			MaxRetries: 2,
			Execute: func(ctx context.Context) error {
				if alreadySeated {
					return nil
				}
				return s.repo.ConfirmMembership(ctx, activityID, userID)
			},
		}).
		AddStep(saga.Step{
			Name:       "record_rsvp",
			MaxRetries: 2,
			Execute: func(ctx context.Context) error {
				return s.repo.PutParticipation(ctx, participation)
			},
		})

	err := sg.Execute(ctx)
	s.recordRSVP(domain.RSVPGoing, joinResult(err, alreadySeated))
	if err != nil {
		return nil, err
	}

	if !alreadySeated {
		s.deps.publish(ctx, s.log, events.New(events.TypeActivityJoined, activityID, userID, now, nil))
	}
	return &participation, nil
}

// pendingJoinTimeout bounds how long a pending marker blocks other joins
// and leaves of the same user before it counts as abandoned.
const pendingJoinTimeout = 5 * time.Minute

func abandoned(m *repository.Membership, now time.Time) bool {
	joinedAt, err := time.Parse(domain.TimeLayout, m.JoinedAt)
	return err != nil || now.Sub(joinedAt) > pendingJoinTimeout
}

func joinResult(err error, alreadySeated bool) string {
	switch {
	case err == nil && alreadySeated:
		return "already_joined"
	case err == nil:
		return "joined"
	case appErrors.IsType(err, appErrors.ErrorTypeFull):
		return "full"
	case appErrors.IsNotFound(err):
		return "not_found"
	case appErrors.IsType(err, appErrors.ErrorTypeConflict):
		return "conflict"
	default:
		return "error"
	}
}

// Leave records a declined RSVP and releases userID's seat if one was held.
func (s *ActivityService) Leave(ctx context.Context, activityID, userID string) (*domain.Participation, error) {
	now := s.deps.Now()
	participation := domain.Participation{
		UserID:     userID,
		ActivityID: activityID,
		Status:     domain.RSVPDeclined,
		Timestamp:  domain.Timestamp(now),
	}

	var (
		released     bool
		decremented  bool
		activityGone bool
	)

	sg := saga.New("leave_activity", s.deps.Logger).
		WithFields(zap.String("activity_id", activityID), zap.String("user_id", userID)).
		AddStep(saga.Step{
			Name:       "load_activity",
			MaxRetries: 2,
			Execute: func(ctx context.Context) error {
				_, err := s.repo.Get(ctx, activityID)
				return err
			},
		}).
		AddStep(saga.Step{
			Name: "release_membership",
			Execute: func(ctx context.Context) error {
				m, err := s.repo.GetMembership(ctx, activityID, userID)
				switch {
				case err != nil:
					return err
				case m == nil:
					return nil
				case m.State != repository.MembershipSeated && !abandoned(m, now):
					return appErrors.NewConflictError("a join for this user is still in progress")
				case m.State != repository.MembershipSeated:
					// The abandoned join never counted its seat.
					return s.repo.DeleteMembership(ctx, activityID, userID, false)
				}
				err = s.repo.DeleteMembership(ctx, activityID, userID, true)
				if appErrors.IsNotFound(err) {
					return nil
				}
				if err == nil {
					released = true
				}
				return err
			},
			Compensate: func(ctx context.Context) error {
				if !released || activityGone {
					return nil
				}
				return s.repo.PutMembership(ctx, activityID, userID, participation.Timestamp, repository.MembershipSeated)
			},
		}).
		AddStep(saga.Step{
			Name: "free_seat",
			Execute: func(ctx context.Context) error {
				if !released {
					return nil
				}
				_, err := s.repo.AdjustParticipants(ctx, activityID, -1)
				switch {
				case err == nil:
					decremented = true
				case appErrors.IsNotFound(err):
					// Deleted mid-leave; there is no count left to free.
					activityGone = true
					return nil
				case appErrors.IsConditionFailed(err):
					s.log.Warn("participant count already at zero",
						zap.String("activity_id", activityID),
						zap.String("user_id", userID))
					return nil
				}
				return err
			},
			Compensate: func(ctx context.Context) error {
				if !decremented {
					return nil
				}
				_, err := s.repo.AdjustParticipants(ctx, activityID, 1)
				return err
			},
		}).
		AddStep(saga.Step{
			Name:       "record_rsvp",
			MaxRetries: 2,
			Execute: func(ctx context.Context) error {
				return s.repo.PutParticipation(ctx, participation)
			},
		})

	err := sg.Execute(ctx)
	result := "declined"
	switch {
	case err != nil:
		result = "error"
	case released:
		result = "left"
	}
	s.recordRSVP(domain.RSVPDeclined, result)
	if err != nil {
		return nil, err
	}

	if released {
		s.deps.publish(ctx, s.log, events.New(events.TypeActivityLeft, activityID, userID, now, nil))
	}
	return &participation, nil
}

func (s *ActivityService) recordRSVP(status domain.RSVPStatus, result string) {
	if s.deps.Metrics != nil {
		s.deps.Metrics.RSVPs.WithLabelValues(string(status), result).Inc()
	}
}
