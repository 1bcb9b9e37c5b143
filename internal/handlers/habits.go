package handlers

import (
	"net/http"

	"strivesync-backend/internal/service"
	"strivesync-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// HabitHandler handles habit requests.
type HabitHandler struct {
	habits *service.HabitService
	logger *zap.Logger
}

// NewHabitHandler creates a new habit handler
func NewHabitHandler(habits *service.HabitService, logger *zap.Logger) *HabitHandler {
	return &HabitHandler{habits: habits, logger: logger.Named("habit_handler")}
}

// CreateHabitRequest is the body of POST /habits.
type CreateHabitRequest struct {
	HabitName    string  `json:"habitName" validate:"required,min=1,max=100"`
	ReminderTime *string `json:"reminderTime" validate:"omitempty,datetime=15:04"`
	IsPublic     bool    `json:"isPublic"`
}

// UpdateHabitRequest is the body of PUT /habits/{habitID}. ClearReminder
// removes the reminder.
type UpdateHabitRequest struct {
	HabitName     *string `json:"habitName" validate:"omitempty,min=1,max=100"`
	ReminderTime  *string `json:"reminderTime" validate:"omitempty,datetime=15:04"`
	ClearReminder bool    `json:"clearReminder"`
	IsPublic      *bool   `json:"isPublic"`
}

// CreateHabit handles POST /habits
func (h *HabitHandler) CreateHabit(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	var req CreateHabitRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	habit, err := h.habits.Create(r.Context(), user.UserID, service.CreateHabitInput{
		HabitName:    req.HabitName,
		ReminderTime: req.ReminderTime,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusCreated, newHabitResponse(*habit))
}

// ListHabits handles GET /habits
func (h *HabitHandler) ListHabits(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	habits, err := h.habits.ListByUser(r.Context(), user.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newHabitListResponse(habits))
}

// ListPublicHabits handles GET /habits/public
func (h *HabitHandler) ListPublicHabits(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	habits, err := h.habits.ListPublic(r.Context(), limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newHabitListResponse(habits))
}

// GetHabit handles GET /habits/{habitID}
func (h *HabitHandler) GetHabit(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	habit, err := h.habits.Get(r.Context(), user.UserID, chi.URLParam(r, "habitID"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newHabitResponse(*habit))
}

// UpdateHabit handles PUT /habits/{habitID}
func (h *HabitHandler) UpdateHabit(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	var req UpdateHabitRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	habit, err := h.habits.Update(r.Context(), user.UserID, chi.URLParam(r, "habitID"), service.UpdateHabitInput{
		HabitName:     req.HabitName,
		ReminderTime:  req.ReminderTime,
		ClearReminder: req.ClearReminder,
		IsPublic:      req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newHabitResponse(*habit))
}

// DeleteHabit handles DELETE /habits/{habitID}
func (h *HabitHandler) DeleteHabit(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	if err := h.habits.Delete(r.Context(), user.UserID, chi.URLParam(r, "habitID")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
