package handlers

import "strivesync-backend/internal/domain"

// UserResponse is the wire shape of a user profile.
type UserResponse struct {
	UserID    string `json:"userId"`
	Email     string `json:"email,omitempty"`
	Username  string `json:"username"`
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	CreatedAt string `json:"createdAt"`
	UpdatedAt string `json:"updatedAt"`
}

func newUserResponse(u *domain.User) UserResponse {
	return UserResponse{
		UserID:    u.UserID,
		Email:     u.Email,
		Username:  u.Username,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

// HabitResponse is the wire shape of a habit.
type HabitResponse struct {
	UserID       string  `json:"userId"`
	HabitID      string  `json:"habitId"`
	HabitName    string  `json:"habitName"`
	ReminderTime *string `json:"reminderTime"`
	IsPublic     bool    `json:"isPublic"`
	CreatedAt    string  `json:"createdAt"`
	UpdatedAt    string  `json:"updatedAt"`
}

func newHabitResponse(h domain.Habit) HabitResponse {
	return HabitResponse{
		UserID:       h.UserID,
		HabitID:      h.HabitID,
		HabitName:    h.HabitName,
		ReminderTime: h.ReminderTime,
		IsPublic:     h.IsPublic,
		CreatedAt:    h.CreatedAt,
		UpdatedAt:    h.UpdatedAt,
	}
}

// HabitListResponse wraps a list of habits.
type HabitListResponse struct {
	Habits []HabitResponse `json:"habits"`
	Count  int             `json:"count"`
}

func newHabitListResponse(habits []domain.Habit) HabitListResponse {
	out := make([]HabitResponse, len(habits))
	for i, h := range habits {
		out[i] = newHabitResponse(h)
	}
	return HabitListResponse{Habits: out, Count: len(out)}
}

// LocationResponse is where an activity takes place.
type LocationResponse struct {
	Address   string   `json:"address"`
	Latitude  *float64 `json:"latitude,omitempty"`
	Longitude *float64 `json:"longitude,omitempty"`
}

// ActivityResponse is the wire shape of an activity.
type ActivityResponse struct {
	ActivityID               string           `json:"activityId"`
	CreatedBy                string           `json:"createdBy"`
	ActivityName             string           `json:"activityName"`
	Description              string           `json:"description,omitempty"`
	Location                 LocationResponse `json:"location"`
	DateTime                 string           `json:"dateTime"`
	EndTime                  string           `json:"endTime,omitempty"`
	Frequency                string           `json:"frequency,omitempty"`
	IsPublic                 bool             `json:"isPublic"`
	MaxParticipants          int              `json:"maxParticipants"`
	CurrentParticipantsCount int              `json:"currentParticipantsCount"`
	IsFull                   bool             `json:"isFull"`
	Category                 string           `json:"category,omitempty"`
	PhotoURL                 string           `json:"photoUrl,omitempty"`
	CreatedAt                string           `json:"createdAt"`
	UpdatedAt                string           `json:"updatedAt"`
}

func newActivityResponse(a domain.Activity) ActivityResponse {
	return ActivityResponse{
		ActivityID:   a.ActivityID,
		CreatedBy:    a.CreatedBy,
		ActivityName: a.ActivityName,
		Description:  a.Description,
		Location: LocationResponse{
			Address:   a.Location.Address,
			Latitude:  a.Location.Latitude,
			Longitude: a.Location.Longitude,
		},
		DateTime:                 a.DateTime,
		EndTime:                  a.EndTime,
		Frequency:                a.Frequency,
		IsPublic:                 a.IsPublic,
		MaxParticipants:          a.MaxParticipants,
		CurrentParticipantsCount: a.CurrentParticipantsCount,
		IsFull:                   a.IsFull(),
		Category:                 a.Category,
		PhotoURL:                 a.PhotoURL,
		CreatedAt:                a.CreatedAt,
		UpdatedAt:                a.UpdatedAt,
	}
}

// ActivityListResponse wraps a list of activities.
type ActivityListResponse struct {
	Activities []ActivityResponse `json:"activities"`
	Count      int                `json:"count"`
}

func newActivityListResponse(activities []domain.Activity) ActivityListResponse {
	out := make([]ActivityResponse, len(activities))
	for i, a := range activities {
		out[i] = newActivityResponse(a)
	}
	return ActivityListResponse{Activities: out, Count: len(out)}
}

// ParticipationResponse is the wire shape of an RSVP.
type ParticipationResponse struct {
	UserID     string `json:"userId"`
	ActivityID string `json:"activityId"`
	Status     string `json:"status"`
	Timestamp  string `json:"timestamp"`
}

func newParticipationResponse(p domain.Participation) ParticipationResponse {
	return ParticipationResponse{
		UserID:     p.UserID,
		ActivityID: p.ActivityID,
		Status:     string(p.Status),
		Timestamp:  p.Timestamp,
	}
}

// ParticipationListResponse wraps a list of RSVPs.
type ParticipationListResponse struct {
	Participations []ParticipationResponse `json:"participations"`
	Count          int                     `json:"count"`
}

func newParticipationListResponse(ps []domain.Participation) ParticipationListResponse {
	out := make([]ParticipationResponse, len(ps))
	for i, p := range ps {
		out[i] = newParticipationResponse(p)
	}
	return ParticipationListResponse{Participations: out, Count: len(out)}
}
