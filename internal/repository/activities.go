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

const (
	attrParticipantCount = "currentParticipantsCount"
	attrMaxParticipants  = "maxParticipants"
)

type locationItem struct {
	Address   string   `dynamodbav:"address"`
	Latitude  *float64 `dynamodbav:"latitude,omitempty"`
	Longitude *float64 `dynamodbav:"longitude,omitempty"`
}

type activityItem struct {
	PK                       string       `dynamodbav:"PK"`
	SK                       string       `dynamodbav:"SK"`
	GSI1PK                   string       `dynamodbav:"gsi1pk,omitempty"`
	GSI1SK                   string       `dynamodbav:"gsi1sk,omitempty"`
	ActivityID               string       `dynamodbav:"activityId"`
	CreatedBy                string       `dynamodbav:"createdBy"`
	ActivityName             string       `dynamodbav:"activityName"`
	Description              string       `dynamodbav:"description,omitempty"`
	Location                 locationItem `dynamodbav:"location"`
	DateTime                 string       `dynamodbav:"dateTime"`
	EndTime                  string       `dynamodbav:"endTime,omitempty"`
	Frequency                string       `dynamodbav:"frequency,omitempty"`
	IsPublic                 bool         `dynamodbav:"isPublic"`
	MaxParticipants          int          `dynamodbav:"maxParticipants,omitempty"`
	CurrentParticipantsCount int          `dynamodbav:"currentParticipantsCount"`
	Category                 string       `dynamodbav:"category,omitempty"`
	PhotoURL                 string       `dynamodbav:"photoUrl,omitempty"`
	CreatedAt                string       `dynamodbav:"createdAt"`
	UpdatedAt                string       `dynamodbav:"updatedAt,omitempty"`
}

func (i activityItem) toDomain() domain.Activity {
	return domain.Activity{
		ActivityID:   i.ActivityID,
		CreatedBy:    i.CreatedBy,
		ActivityName: i.ActivityName,
		Description:  i.Description,
		Location: domain.Location{
			Address:   i.Location.Address,
			Latitude:  i.Location.Latitude,
			Longitude: i.Location.Longitude,
		},
		DateTime:                 i.DateTime,
		EndTime:                  i.EndTime,
		Frequency:                i.Frequency,
		IsPublic:                 i.IsPublic,
		MaxParticipants:          i.MaxParticipants,
		CurrentParticipantsCount: i.CurrentParticipantsCount,
		Category:                 i.Category,
		PhotoURL:                 i.PhotoURL,
		CreatedAt:                i.CreatedAt,
		UpdatedAt:                i.UpdatedAt,
	}
}

type participationItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	GSI1PK     string `dynamodbav:"gsi1pk"`
	GSI1SK     string `dynamodbav:"gsi1sk"`
	UserID     string `dynamodbav:"userId"`
	ActivityID string `dynamodbav:"activityId"`
	Status     string `dynamodbav:"status"`
	Timestamp  string `dynamodbav:"timestamp"`
}

func (i participationItem) toDomain() domain.Participation {
	return domain.Participation{
		UserID:     i.UserID,
		ActivityID: i.ActivityID,
		Status:     domain.RSVPStatus(i.Status),
		Timestamp:  i.Timestamp,
	}
}

type membershipItem struct {
	PK         string `dynamodbav:"PK"`
	SK         string `dynamodbav:"SK"`
	ActivityID string `dynamodbav:"activityId"`
	UserID     string `dynamodbav:"userId"`
	JoinedAt   string `dynamodbav:"joinedAt"`
	State      string `dynamodbav:"state"`
}

// MembershipState tracks a seat marker through a join. A pending marker
// belongs to a join whose seat is not counted yet.
type MembershipState string

const (
	MembershipPending MembershipState = "pending"
	MembershipSeated  MembershipState = "seated"
)

// ActivityChanges lists the mutable activity fields. Nil fields are left untouched.
type ActivityChanges struct {
	ActivityName *string
	Description  *string
	Category     *string
	PhotoURL     *string
	IsPublic     *bool
	UpdatedAt    string
}

// ActivityRepository stores activities, their participant counters, RSVPs
// and the membership markers that make seat counting idempotent.
type ActivityRepository struct {
	store  Store
	logger *zap.Logger
}

// NewActivityRepository creates an ActivityRepository over store.
func NewActivityRepository(store Store, logger *zap.Logger) *ActivityRepository {
	return &ActivityRepository{store: store, logger: logger.Named("activities")}
}

// Create writes a new activity, failing with AlreadyExists on a duplicate id.
func (r *ActivityRepository) Create(ctx context.Context, activity domain.Activity) error {
	key, err := keys.Activity(activity.ActivityID)
	if err != nil {
		return err
	}
	public, err := keys.PublicActivity(activity.IsPublic, activity.Location.Address, activity.DateTime)
	if err != nil {
		return err
	}

	it := activityItem{
		PK:           key.PK,
		SK:           key.SK,
		ActivityID:   activity.ActivityID,
		CreatedBy:    activity.CreatedBy,
		ActivityName: activity.ActivityName,
		Description:  activity.Description,
		Location: locationItem{
			Address:   activity.Location.Address,
			Latitude:  activity.Location.Latitude,
			Longitude: activity.Location.Longitude,
		},
		DateTime:                 activity.DateTime,
		EndTime:                  activity.EndTime,
		Frequency:                activity.Frequency,
		IsPublic:                 activity.IsPublic,
		MaxParticipants:          activity.MaxParticipants,
		CurrentParticipantsCount: activity.CurrentParticipantsCount,
		Category:                 activity.Category,
		PhotoURL:                 activity.PhotoURL,
		CreatedAt:                activity.CreatedAt,
		UpdatedAt:                activity.UpdatedAt,
	}
	if public != nil {
		it.GSI1PK, it.GSI1SK = public.PK, public.SK
	}

	item, err := attributevalue.MarshalMap(it)
	if err != nil {
		return appErrors.Wrap(err, "marshal activity")
	}
	if err := r.store.Put(ctx, item, true); err != nil {
		if appErrors.IsAlreadyExists(err) {
			return appErrors.NewAlreadyExistsError("activity", activity.ActivityID)
		}
		return fmt.Errorf("create activity %s: %w", activity.ActivityID, err)
	}
	return nil
}

// Get returns one activity.
func (r *ActivityRepository) Get(ctx context.Context, activityID string) (*domain.Activity, error) {
	it, err := r.load(ctx, activityID)
	if err != nil {
		return nil, err
	}
	a := it.toDomain()
	return &a, nil
}

func (r *ActivityRepository) load(ctx context.Context, activityID string) (*activityItem, error) {
	key, err := keys.Activity(activityID)
	if err != nil {
		return nil, err
	}

	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get activity %s: %w", activityID, err)
	}
	if raw == nil {
		return nil, appErrors.NewNotFoundError("activity", activityID)
	}
	return unmarshalActivity(raw)
}

// ListPublic returns public activities in descending index order. A limit of
// zero returns all.
func (r *ActivityRepository) ListPublic(ctx context.Context, limit int32) ([]domain.Activity, error) {
	activities := []domain.Activity{}
	in := QueryInput{Index: IndexGSI1, Partition: keys.PublicActivityPK, ScanForward: false, Limit: limit}
	for raw, err := range r.store.Query(ctx, in) {
		if err != nil {
			return nil, fmt.Errorf("list public activities: %w", err)
		}
		it, err := unmarshalActivity(raw)
		if err != nil {
			return nil, err
		}
		activities = append(activities, it.toDomain())
	}
	return activities, nil
}

// AdjustParticipants atomically adds delta to the participant counter. A
// missing counter counts as zero. Increments fail with ConditionFailed once the
// counter reaches maxParticipants; decrements never take it below zero.
func (r *ActivityRepository) AdjustParticipants(ctx context.Context, activityID string, delta int64) (*domain.Activity, error) {
	key, err := keys.Activity(activityID)
	if err != nil {
		return nil, err
	}

	counter := &CounterChange{Attr: attrParticipantCount, Delta: delta}
	if delta > 0 {
		counter.CeilingAttr = attrMaxParticipants
	} else {
		counter.Floor = true
	}

	raw, err := r.store.Update(ctx, key, UpdateSpec{Counter: counter, RequireExists: true})
	if err != nil {
		if appErrors.IsNotFound(err) {
			return nil, appErrors.NewNotFoundError("activity", activityID)
		}
		return nil, fmt.Errorf("adjust participants of %s: %w", activityID, err)
	}

	it, err := unmarshalActivity(raw)
	if err != nil {
		return nil, err
	}
	a := it.toDomain()
	return &a, nil
}

// Update merges changes into the activity, reconciles its public projection
// and stamps updatedAt.
func (r *ActivityRepository) Update(ctx context.Context, activityID string, changes ActivityChanges) (*domain.Activity, error) {
	current, err := r.load(ctx, activityID)
	if err != nil {
		return nil, err
	}
	key, err := keys.Activity(activityID)
	if err != nil {
		return nil, err
	}

	spec := UpdateSpec{
		Set:           map[string]any{"updatedAt": changes.UpdatedAt},
		RequireExists: true,
	}
	if changes.ActivityName != nil {
		spec.Set["activityName"] = *changes.ActivityName
	}
	if changes.Description != nil {
		spec.Set["description"] = *changes.Description
	}
	if changes.Category != nil {
		spec.Set["category"] = *changes.Category
	}
	if changes.PhotoURL != nil {
		spec.Set["photoUrl"] = *changes.PhotoURL
	}

	decision := DecideVisibility(current.IsPublic, changes.IsPublic, current.GSI1PK != "")
	if decision.Action != IndexNone || changes.IsPublic != nil {
		public, err := keys.PublicActivity(true, current.Location.Address, current.DateTime)
		if err != nil {
			return nil, err
		}
		spec.Set["isPublic"] = decision.Public
		spec.Indexes = map[string]IndexChange{IndexGSI1: projection(decision.Public, public)}
	}

	raw, err := r.store.Update(ctx, key, spec)
	if err != nil {
		if appErrors.IsNotFound(err) {
			return nil, appErrors.NewNotFoundError("activity", activityID)
		}
		return nil, fmt.Errorf("update activity %s: %w", activityID, err)
	}

	if decision.Action != IndexNone {
		r.logger.Debug("activity visibility changed",
			zap.String("activity_id", activityID),
			zap.Stringer("index_action", decision.Action),
			zap.Bool("public", decision.Public))
	}

	it, err := unmarshalActivity(raw)
	if err != nil {
		return nil, err
	}
	a := it.toDomain()
	return &a, nil
}

// Delete removes the activity details item, failing with NotFound if absent.
func (r *ActivityRepository) Delete(ctx context.Context, activityID string) error {
	key, err := keys.Activity(activityID)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, key, true); err != nil {
		if appErrors.IsNotFound(err) {
			return appErrors.NewNotFoundError("activity", activityID)
		}
		return fmt.Errorf("delete activity %s: %w", activityID, err)
	}
	return nil
}

// PutParticipation upserts a user's RSVP together with its reverse lookup.
func (r *ActivityRepository) PutParticipation(ctx context.Context, p domain.Participation) error {
	key, err := keys.Participation(p.UserID, p.ActivityID)
	if err != nil {
		return err
	}
	lookup, err := keys.Participant(p.UserID, p.ActivityID)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(participationItem{
		PK:         key.PK,
		SK:         key.SK,
		GSI1PK:     lookup.PK,
		GSI1SK:     lookup.SK,
		UserID:     p.UserID,
		ActivityID: p.ActivityID,
		Status:     string(p.Status),
		Timestamp:  p.Timestamp,
	})
	if err != nil {
		return appErrors.Wrap(err, "marshal participation")
	}
	if err := r.store.Put(ctx, item, false); err != nil {
		return fmt.Errorf("put participation %s/%s: %w", p.UserID, p.ActivityID, err)
	}
	return nil
}

// GetParticipation returns a user's RSVP to an activity.
func (r *ActivityRepository) GetParticipation(ctx context.Context, userID, activityID string) (*domain.Participation, error) {
	key, err := keys.Participation(userID, activityID)
	if err != nil {
		return nil, err
	}

	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get participation: %w", err)
	}
	if raw == nil {
		return nil, appErrors.NewNotFoundError("participation", activityID)
	}

	var it participationItem
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, appErrors.Wrap(err, "unmarshal participation")
	}
	p := it.toDomain()
	return &p, nil
}

// ListParticipants returns every RSVP to activityID through the reverse lookup.
func (r *ActivityRepository) ListParticipants(ctx context.Context, activityID string) ([]domain.Participation, error) {
	pk, err := keys.ActivityPartition(activityID)
	if err != nil {
		return nil, err
	}
	return r.participations(ctx, QueryInput{
		Index: IndexGSI1, Partition: pk, SortPrefix: keys.ParticipantPrefix, ScanForward: true,
	})
}

// ListParticipationsByUser returns every RSVP made by userID.
func (r *ActivityRepository) ListParticipationsByUser(ctx context.Context, userID string) ([]domain.Participation, error) {
	pk, err := keys.UserPartition(userID)
	if err != nil {
		return nil, err
	}
	return r.participations(ctx, QueryInput{Partition: pk, SortPrefix: keys.RSVPPrefix, ScanForward: true})
}

func (r *ActivityRepository) participations(ctx context.Context, in QueryInput) ([]domain.Participation, error) {
	out := []domain.Participation{}
	for raw, err := range r.store.Query(ctx, in) {
		if err != nil {
			return nil, fmt.Errorf("list participations: %w", err)
		}
		var it participationItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return nil, appErrors.Wrap(err, "unmarshal participation")
		}
		out = append(out, it.toDomain())
	}
	return out, nil
}

// PutMembership writes userID's seat marker in the given state. It fails
// with AlreadyExists when a marker is already there.
func (r *ActivityRepository) PutMembership(ctx context.Context, activityID, userID, joinedAt string, state MembershipState) error {
	key, err := keys.Membership(activityID, userID)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(membershipItem{
		PK:         key.PK,
		SK:         key.SK,
		ActivityID: activityID,
		UserID:     userID,
		JoinedAt:   joinedAt,
		State:      string(state),
	})
	if err != nil {
		return appErrors.Wrap(err, "marshal membership")
	}
	if err := r.store.Put(ctx, item, true); err != nil {
		if appErrors.IsAlreadyExists(err) {
			return appErrors.NewAlreadyExistsError("membership", activityID+"/"+userID)
		}
		return fmt.Errorf("put membership %s/%s: %w", activityID, userID, err)
	}
	return nil
}

// ConfirmMembership marks a pending marker as seated once its seat is counted.
func (r *ActivityRepository) ConfirmMembership(ctx context.Context, activityID, userID string) error {
	key, err := keys.Membership(activityID, userID)
	if err != nil {
		return err
	}
	_, err = r.store.Update(ctx, key, UpdateSpec{
		Set:           map[string]any{"state": string(MembershipSeated)},
		RequireExists: true,
	})
	if err != nil {
		if appErrors.IsNotFound(err) {
			return appErrors.NewNotFoundError("membership", activityID+"/"+userID)
		}
		return fmt.Errorf("confirm membership %s/%s: %w", activityID, userID, err)
	}
	return nil
}

// Membership is a user's seat marker on an activity.
type Membership struct {
	State    MembershipState
	JoinedAt string
}

// GetMembership returns userID's marker, or nil when there is none.
func (r *ActivityRepository) GetMembership(ctx context.Context, activityID, userID string) (*Membership, error) {
	key, err := keys.Membership(activityID, userID)
	if err != nil {
		return nil, err
	}
	raw, err := r.store.Get(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("get membership: %w", err)
	}
	if raw == nil {
		return nil, nil
	}
	var it membershipItem
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, appErrors.Wrap(err, "unmarshal membership")
	}
	return &Membership{State: MembershipState(it.State), JoinedAt: it.JoinedAt}, nil
}

// HasMembership reports whether userID holds a counted seat.
func (r *ActivityRepository) HasMembership(ctx context.Context, activityID, userID string) (bool, error) {
	m, err := r.GetMembership(ctx, activityID, userID)
	if err != nil {
		return false, err
	}
	return m != nil && m.State == MembershipSeated, nil
}

// DeleteMembership releases userID's seat marker.
func (r *ActivityRepository) DeleteMembership(ctx context.Context, activityID, userID string, requireExists bool) error {
	key, err := keys.Membership(activityID, userID)
	if err != nil {
		return err
	}
	if err := r.store.Delete(ctx, key, requireExists); err != nil {
		if appErrors.IsNotFound(err) {
			return appErrors.NewNotFoundError("membership", activityID+"/"+userID)
		}
		return fmt.Errorf("delete membership %s/%s: %w", activityID, userID, err)
	}
	return nil
}

// ClearMemberships removes every membership marker of activityID and returns
// how many were removed.
func (r *ActivityRepository) ClearMemberships(ctx context.Context, activityID string) (int, error) {
	pk, err := keys.ActivityPartition(activityID)
	if err != nil {
		return 0, err
	}

	items, err := Collect(r.store.Query(ctx, QueryInput{Partition: pk, SortPrefix: keys.MemberPrefix, ScanForward: true}))
	if err != nil {
		return 0, fmt.Errorf("list memberships of %s: %w", activityID, err)
	}

	removed := 0
	for _, raw := range items {
		var it membershipItem
		if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
			return removed, appErrors.Wrap(err, "unmarshal membership")
		}
		if err := r.store.Delete(ctx, keys.Primary{PK: it.PK, SK: it.SK}, false); err != nil {
			return removed, fmt.Errorf("delete membership %s: %w", it.SK, err)
		}
		removed++
	}
	return removed, nil
}

func unmarshalActivity(raw Item) (*activityItem, error) {
	var it activityItem
	if err := attributevalue.UnmarshalMap(raw, &it); err != nil {
		return nil, appErrors.Wrap(err, "unmarshal activity")
	}
	return &it, nil
}
