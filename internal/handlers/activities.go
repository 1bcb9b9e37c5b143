package handlers

import (
	"net/http"

	"strivesync-backend/internal/domain"
	"strivesync-backend/internal/service"
	"strivesync-backend/pkg/api"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// ActivityHandler handles activity and RSVP requests.
type ActivityHandler struct {
	activities *service.ActivityService
	logger     *zap.Logger
}

// NewActivityHandler creates a new activity handler
func NewActivityHandler(activities *service.ActivityService, logger *zap.Logger) *ActivityHandler {
	return &ActivityHandler{activities: activities, logger: logger.Named("activity_handler")}
}

// LocationRequest is where an activity takes place.
type LocationRequest struct {
	Address   string   `json:"address" validate:"required,max=300"`
	Latitude  *float64 `json:"latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"omitempty,gte=-180,lte=180"`
}

// CreateActivityRequest is the body of POST /activities. A maxParticipants of
// zero means unlimited.
type CreateActivityRequest struct {
	ActivityName    string          `json:"activityName" validate:"required,min=1,max=100"`
	Description     string          `json:"description" validate:"max=1000"`
	Location        LocationRequest `json:"location" validate:"required"`
	DateTime        string          `json:"dateTime" validate:"required,datetime=2006-01-02T15:04:05Z07:00"`
	EndTime         string          `json:"endTime" validate:"omitempty,datetime=2006-01-02T15:04:05Z07:00"`
	Frequency       string          `json:"frequency" validate:"max=50"`
	IsPublic        bool            `json:"isPublic"`
	MaxParticipants int             `json:"maxParticipants" validate:"gte=0,lte=10000"`
	Category        string          `json:"category" validate:"max=50"`
	PhotoURL        string          `json:"photoUrl" validate:"omitempty,url"`
}

// UpdateActivityRequest is the body of PUT /activities/{activityID}.
type UpdateActivityRequest struct {
	ActivityName *string `json:"activityName" validate:"omitempty,min=1,max=100"`
	Description  *string `json:"description" validate:"omitempty,max=1000"`
	Category     *string `json:"category" validate:"omitempty,max=50"`
	PhotoURL     *string `json:"photoUrl" validate:"omitempty,url"`
	IsPublic     *bool   `json:"isPublic"`
}

// RSVPRequest is the body of POST /activities/{activityID}/rsvp.
type RSVPRequest struct {
	Status string `json:"status" validate:"required,oneof=going declined"`
}

// CreateActivity handles POST /activities
func (h *ActivityHandler) CreateActivity(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	var req CreateActivityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	activity, err := h.activities.Create(r.Context(), user.UserID, service.CreateActivityInput{
		ActivityName: req.ActivityName,
		Description:  req.Description,
		Location: domain.Location{
			Address:   req.Location.Address,
			Latitude:  req.Location.Latitude,
			Longitude: req.Location.Longitude,
		},
		DateTime:        req.DateTime,
		EndTime:         req.EndTime,
		Frequency:       req.Frequency,
		IsPublic:        req.IsPublic,
		MaxParticipants: req.MaxParticipants,
		Category:        req.Category,
		PhotoURL:        req.PhotoURL,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusCreated, newActivityResponse(*activity))
}

// ListPublicActivities handles GET /activities/public
func (h *ActivityHandler) ListPublicActivities(w http.ResponseWriter, r *http.Request) {
	limit, err := listLimit(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	activities, err := h.activities.ListPublic(r.Context(), limit)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newActivityListResponse(activities))
}

// ListMyRSVPs handles GET /activities/mine
func (h *ActivityHandler) ListMyRSVPs(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	participations, err := h.activities.ListMine(r.Context(), user.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newParticipationListResponse(participations))
}

// GetActivity handles GET /activities/{activityID}
func (h *ActivityHandler) GetActivity(w http.ResponseWriter, r *http.Request) {
	activity, err := h.activities.Get(r.Context(), chi.URLParam(r, "activityID"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newActivityResponse(*activity))
}

// UpdateActivity handles PUT /activities/{activityID}
func (h *ActivityHandler) UpdateActivity(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	var req UpdateActivityRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	activity, err := h.activities.Update(r.Context(), user.UserID, chi.URLParam(r, "activityID"), service.UpdateActivityInput{
		ActivityName: req.ActivityName,
		Description:  req.Description,
		Category:     req.Category,
		PhotoURL:     req.PhotoURL,
		IsPublic:     req.IsPublic,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newActivityResponse(*activity))
}

// DeleteActivity handles DELETE /activities/{activityID}
func (h *ActivityHandler) DeleteActivity(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	if err := h.activities.Delete(r.Context(), user.UserID, chi.URLParam(r, "activityID")); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RSVP handles POST /activities/{activityID}/rsvp
func (h *ActivityHandler) RSVP(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	var req RSVPRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	participation, err := h.activities.RSVP(r.Context(), user.UserID, chi.URLParam(r, "activityID"), domain.RSVPStatus(req.Status))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newParticipationResponse(*participation))
}

// ListParticipants handles GET /activities/{activityID}/participants
func (h *ActivityHandler) ListParticipants(w http.ResponseWriter, r *http.Request) {
	participations, err := h.activities.ListParticipants(r.Context(), chi.URLParam(r, "activityID"))
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newParticipationListResponse(participations))
}
