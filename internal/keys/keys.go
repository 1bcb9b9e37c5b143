// Package keys derives the primary and secondary keys of every entity stored
// in the single table. All functions are pure.
package keys

import (
	"strings"

	appErrors "strivesync-backend/pkg/errors"
)

// Key prefixes and fixed sort keys.
const (
	UserPrefix        = "USER#"
	HabitPrefix       = "HABIT#"
	ActivityPrefix    = "ACTIVITY#"
	RSVPPrefix        = "RSVP#"
	MemberPrefix      = "MEMBER#"
	ParticipantPrefix = "PARTICIPANT#"

	ProfileSK         = "PROFILE"
	ActivityDetailsSK = "DETAILS"

	PublicHabitPK    = "PUBLIC_HABIT"
	PublicActivityPK = "PUBLIC#ACTIVITY"
)

// Primary is the composite primary key of an item.
type Primary struct {
	PK string
	SK string
}

// Secondary is the composite key of an item within a secondary index.
type Secondary struct {
	PK string
	SK string
}

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return appErrors.NewInvalidKeyInputError(field)
	}
	return nil
}

// UserPartition returns USER#<userId>.
func UserPartition(userID string) (string, error) {
	if err := required("userId", userID); err != nil {
		return "", err
	}
	return UserPrefix + userID, nil
}

// ActivityPartition returns ACTIVITY#<activityId>.
func ActivityPartition(activityID string) (string, error) {
	if err := required("activityId", activityID); err != nil {
		return "", err
	}
	return ActivityPrefix + activityID, nil
}

// UserProfile returns the key of a user's single profile item.
func UserProfile(userID string) (Primary, error) {
	pk, err := UserPartition(userID)
	if err != nil {
		return Primary{}, err
	}
	return Primary{PK: pk, SK: ProfileSK}, nil
}

// Habit returns the key of a habit owned by userID.
func Habit(userID, habitID string) (Primary, error) {
	pk, err := UserPartition(userID)
	if err != nil {
		return Primary{}, err
	}
	if err := required("habitId", habitID); err != nil {
		return Primary{}, err
	}
	return Primary{PK: pk, SK: HabitPrefix + habitID}, nil
}

// PublicHabit returns the public index key of a habit, or nil when the habit
// is private. createdAt is embedded so the partition orders chronologically.
func PublicHabit(isPublic bool, habitID, createdAt string) (*Secondary, error) {
	if err := required("habitId", habitID); err != nil {
		return nil, err
	}
	if err := required("createdAt", createdAt); err != nil {
		return nil, err
	}
	if !isPublic {
		return nil, nil
	}
	return &Secondary{
		PK: PublicHabitPK,
		SK: "CREATED_AT#" + createdAt + "#" + HabitPrefix + habitID,
	}, nil
}

// Activity returns the key of an activity's details item.
func Activity(activityID string) (Primary, error) {
	pk, err := ActivityPartition(activityID)
	if err != nil {
		return Primary{}, err
	}
	return Primary{PK: pk, SK: ActivityDetailsSK}, nil
}

// PublicActivity returns the public index key of an activity, or nil when the
// activity is private. The sort key is #<address>#<date>, where date is the
// calendar part of an ISO-8601 dateTime.
func PublicActivity(isPublic bool, address, dateTime string) (*Secondary, error) {
	if err := required("location.address", address); err != nil {
		return nil, err
	}
	if err := required("dateTime", dateTime); err != nil {
		return nil, err
	}
	if !isPublic {
		return nil, nil
	}
	date, _, _ := strings.Cut(dateTime, "T")
	return &Secondary{
		PK: PublicActivityPK,
		SK: "#" + address + "#" + date,
	}, nil
}

// Participation returns the key of a user's RSVP to an activity.
func Participation(userID, activityID string) (Primary, error) {
	pk, err := UserPartition(userID)
	if err != nil {
		return Primary{}, err
	}
	if err := required("activityId", activityID); err != nil {
		return Primary{}, err
	}
	return Primary{PK: pk, SK: RSVPPrefix + activityID}, nil
}

// Participant returns the reverse-lookup index key of an RSVP, always present.
func Participant(userID, activityID string) (Secondary, error) {
	pk, err := ActivityPartition(activityID)
	if err != nil {
		return Secondary{}, err
	}
	if err := required("userId", userID); err != nil {
		return Secondary{}, err
	}
	return Secondary{PK: pk, SK: ParticipantPrefix + userID}, nil
}

// Membership returns the key of the per-(user, activity) marker that records
// a counted seat.
func Membership(activityID, userID string) (Primary, error) {
	pk, err := ActivityPartition(activityID)
	if err != nil {
		return Primary{}, err
	}
	if err := required("userId", userID); err != nil {
		return Primary{}, err
	}
	return Primary{PK: pk, SK: MemberPrefix + userID}, nil
}
