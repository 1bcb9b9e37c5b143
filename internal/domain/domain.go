// Package domain holds the entities persisted by the repositories.
package domain

import "time"

// TimeLayout renders UTC timestamps with millisecond precision. Values in this
// layout sort lexicographically in time order.
const TimeLayout = "2006-01-02T15:04:05.000Z"

// Timestamp formats t in TimeLayout.
func Timestamp(t time.Time) string {
	return t.UTC().Format(TimeLayout)
}

// User is a user profile.
type User struct {
	UserID    string
	Email     string
	Username  string
	FirstName string
	LastName  string
	CreatedAt string
	UpdatedAt string
}

// Habit is a recurring personal habit, optionally shared publicly.
type Habit struct {
	UserID       string
	HabitID      string
	HabitName    string
	ReminderTime *string
	IsPublic     bool
	CreatedAt    string
	UpdatedAt    string
}

// Location is where an activity takes place.
type Location struct {
	Address   string
	Latitude  *float64
	Longitude *float64
}

// Activity is a scheduled group activity users can join.
type Activity struct {
	ActivityID               string
	CreatedBy                string
	ActivityName             string
	Description              string
	Location                 Location
	DateTime                 string
	EndTime                  string
	Frequency                string
	IsPublic                 bool
	MaxParticipants          int
	CurrentParticipantsCount int
	Category                 string
	PhotoURL                 string
	CreatedAt                string
	UpdatedAt                string
}

// Unlimited reports whether the activity has no capacity limit.
func (a Activity) Unlimited() bool {
	return a.MaxParticipants <= 0
}

// IsFull reports whether every seat is taken.
func (a Activity) IsFull() bool {
	return !a.Unlimited() && a.CurrentParticipantsCount >= a.MaxParticipants
}

// RSVPStatus is a user's answer to an activity.
type RSVPStatus string

const (
	RSVPGoing    RSVPStatus = "going"
	RSVPDeclined RSVPStatus = "declined"
)

// Valid reports whether s is a known status.
func (s RSVPStatus) Valid() bool {
	return s == RSVPGoing || s == RSVPDeclined
}

// Participation is a user's RSVP to an activity.
type Participation struct {
	UserID     string
	ActivityID string
	Status     RSVPStatus
	Timestamp  string
}
