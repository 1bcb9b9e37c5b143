package handlers

import (
	"net/http"

	"strivesync-backend/internal/service"
	"strivesync-backend/pkg/api"

	"go.uber.org/zap"
)

// UserHandler handles profile requests for the authenticated caller.
type UserHandler struct {
	users  *service.UserService
	logger *zap.Logger
}

// NewUserHandler creates a new user handler
func NewUserHandler(users *service.UserService, logger *zap.Logger) *UserHandler {
	return &UserHandler{users: users, logger: logger.Named("user_handler")}
}

// CreateUserRequest is the body of POST /users/me. A missing email falls
// back to the one in the caller's token.
type CreateUserRequest struct {
	Email     string `json:"email" validate:"omitempty,email"`
	Username  string `json:"username" validate:"required,min=1,max=50"`
	FirstName string `json:"firstName" validate:"max=100"`
	LastName  string `json:"lastName" validate:"max=100"`
}

// UpdateUserRequest is the body of PUT /users/me.
type UpdateUserRequest struct {
	Username  *string `json:"username" validate:"omitempty,min=1,max=50"`
	FirstName *string `json:"firstName" validate:"omitempty,max=100"`
	LastName  *string `json:"lastName" validate:"omitempty,max=100"`
}

// CreateMe handles POST /users/me
func (h *UserHandler) CreateMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	var req CreateUserRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	if req.Email == "" {
		req.Email = user.Email
	}

	created, err := h.users.Create(r.Context(), user.UserID, service.CreateUserInput{
		Email:     req.Email,
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusCreated, newUserResponse(created))
}

// GetMe handles GET /users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	profile, err := h.users.Get(r.Context(), user.UserID)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newUserResponse(profile))
}

// UpdateMe handles PUT /users/me
func (h *UserHandler) UpdateMe(w http.ResponseWriter, r *http.Request) {
	user, err := userFromRequest(r)
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	var req UpdateUserRequest
	if err := decodeAndValidate(r, &req); err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}

	updated, err := h.users.Update(r.Context(), user.UserID, service.UpdateUserInput{
		Username:  req.Username,
		FirstName: req.FirstName,
		LastName:  req.LastName,
	})
	if err != nil {
		handleServiceError(w, r, h.logger, err)
		return
	}
	api.Success(w, http.StatusOK, newUserResponse(updated))
}
