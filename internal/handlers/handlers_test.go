package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"strivesync-backend/internal/handlers"
	"strivesync-backend/internal/infrastructure/observability"
	"strivesync-backend/internal/repository"
	"strivesync-backend/internal/repository/memory"
	"strivesync-backend/internal/service"
	"strivesync-backend/pkg/api"
	"strivesync-backend/pkg/auth"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const (
	testSecret = "handler-test-secret"
	testIssuer = "strivesync"
)

type testServer struct {
	t       *testing.T
	handler http.Handler
	metrics *observability.Collector
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	store := memory.NewStore(repository.DefaultSchema("strivesync-test", "GSI1", "EmailIndex"))
	metrics := observability.NewCollector("test")

	var seq atomic.Int64
	deps := service.Deps{
		Metrics: metrics,
		Logger:  zap.NewNop(),
		NewID:   func() string { return fmt.Sprintf("id-%03d", seq.Add(1)) },
	}

	validator, err := auth.NewJWTValidator(auth.JWTConfig{
		SigningMethod: "HS256",
		SecretKey:     testSecret,
		Issuer:        testIssuer,
	})
	require.NoError(t, err)

	router := handlers.NewRouter(handlers.RouterConfig{
		Users:      service.NewUserService(repository.NewUserRepository(store, zap.NewNop()), deps),
		Habits:     service.NewHabitService(repository.NewHabitRepository(store, zap.NewNop()), deps),
		Activities: service.NewActivityService(repository.NewActivityRepository(store, zap.NewNop()), deps),
		Validator:  validator,
		Metrics:    metrics,
		Logger:     zap.NewNop(),
		EnableCORS: true,
	})
	return &testServer{t: t, handler: router, metrics: metrics}
}

func (s *testServer) token(userID string) string {
	s.t.Helper()
	token, err := auth.GenerateToken(testSecret, testIssuer, userID, userID+"@example.com", time.Hour)
	require.NoError(s.t, err)
	return token
}

// do sends a request as userID; an empty userID sends no credentials.
func (s *testServer) do(method, path, userID string, body any) *httptest.ResponseRecorder {
	s.t.Helper()

	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, err := json.Marshal(b)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if userID != "" {
		req.Header.Set("Authorization", "Bearer "+s.token(userID))
	}

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"healthy"}`, rec.Body.String())
}

func TestRouting(t *testing.T) {
	s := newTestServer(t)

	t.Run("protected route requires credentials", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/habits", "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Equal(t, "Missing authorization header", decode[api.ErrorResponse](t, rec).Error)
	})

	t.Run("public feeds need no credentials", func(t *testing.T) {
		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/habits/public", "", nil).Code)
		assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/api/v1/activities/public", "", nil).Code)
	})

	t.Run("unknown route", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/nope", "", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("metrics endpoint", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/metrics", "", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "test_http_requests_total")
	})

	t.Run("invalid limit", func(t *testing.T) {
		for _, limit := range []string{"0", "101", "ten"} {
			rec := s.do(http.MethodGet, "/api/v1/habits/public?limit="+limit, "", nil)
			assert.Equal(t, http.StatusBadRequest, rec.Code, limit)
		}
	})
}

func TestUserEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodGet, "/api/v1/users/me", "u1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = s.do(http.MethodPost, "/api/v1/users/me", "u1", map[string]any{"username": "runner"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decode[handlers.UserResponse](t, rec)
	assert.Equal(t, "u1", created.UserID)
	assert.Equal(t, "u1@example.com", created.Email, "falls back to the token email")

	rec = s.do(http.MethodPost, "/api/v1/users/me", "u1", map[string]any{"username": "again"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, "ALREADY_EXISTS", decode[api.ErrorResponse](t, rec).Code)

	rec = s.do(http.MethodPut, "/api/v1/users/me", "u1", map[string]any{"firstName": "Ada"})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	updated := decode[handlers.UserResponse](t, rec)
	assert.Equal(t, "Ada", updated.FirstName)
	assert.Equal(t, "runner", updated.Username)

	rec = s.do(http.MethodGet, "/api/v1/users/me", "u1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Ada", decode[handlers.UserResponse](t, rec).FirstName)
}

func TestRequestValidation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name    string
		path    string
		body    any
		message string
	}{
		{
			name:    "missing habit name",
			path:    "/api/v1/habits",
			body:    map[string]any{"isPublic": true},
			message: "habitName is required",
		},
		{
			name:    "bad reminder time",
			path:    "/api/v1/habits",
			body:    map[string]any{"habitName": "Read", "reminderTime": "7pm"},
			message: "reminderTime must match the format 15:04",
		},
		{
			name:    "unknown field",
			path:    "/api/v1/habits",
			body:    map[string]any{"habitName": "Read", "colour": "red"},
			message: "Invalid request body",
		},
		{
			name:    "malformed json",
			path:    "/api/v1/habits",
			body:    `{"habitName":`,
			message: "Invalid request body",
		},
		{
			name: "missing address",
			path: "/api/v1/activities",
			body: map[string]any{
				"activityName": "Run",
				"location":     map[string]any{"latitude": 1.5},
				"dateTime":     "2025-08-01T06:00:00Z",
			},
			message: "location.address is required",
		},
		{
			name: "negative capacity",
			path: "/api/v1/activities",
			body: map[string]any{
				"activityName":    "Run",
				"location":        map[string]any{"address": "Park"},
				"dateTime":        "2025-08-01T06:00:00Z",
				"maxParticipants": -1,
			},
			message: "maxParticipants is out of range",
		},
		{
			name:    "bad rsvp status",
			path:    "/api/v1/activities/a1/rsvp",
			body:    map[string]any{"status": "maybe"},
			message: "status must be one of: going declined",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(http.MethodPost, tt.path, "u1", tt.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
			resp := decode[api.ErrorResponse](t, rec)
			assert.Equal(t, "VALIDATION", resp.Code)
			assert.Contains(t, resp.Error, tt.message)
		})
	}
}

func TestHabitEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/v1/habits", "u1", map[string]any{
		"habitName":    "Stretch",
		"reminderTime": "07:30",
		"isPublic":     true,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	habit := decode[handlers.HabitResponse](t, rec)
	require.NotNil(t, habit.ReminderTime)
	assert.Equal(t, "07:30", *habit.ReminderTime)
	path := "/api/v1/habits/" + habit.HabitID

	t.Run("owner reads it", func(t *testing.T) {
		rec := s.do(http.MethodGet, path, "u1", nil)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("other users cannot see it", func(t *testing.T) {
		rec := s.do(http.MethodGet, path, "u2", nil)
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("listed in the public feed", func(t *testing.T) {
		rec := s.do(http.MethodGet, "/api/v1/habits/public?limit=10", "", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		list := decode[handlers.HabitListResponse](t, rec)
		require.Equal(t, 1, list.Count)
		assert.Equal(t, habit.HabitID, list.Habits[0].HabitID)
	})

	t.Run("clear reminder and hide", func(t *testing.T) {
		rec := s.do(http.MethodPut, path, "u1", map[string]any{"clearReminder": true, "isPublic": false})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		updated := decode[handlers.HabitResponse](t, rec)
		assert.Nil(t, updated.ReminderTime)
		assert.False(t, updated.IsPublic)
		assert.Contains(t, rec.Body.String(), `"reminderTime":null`)

		list := decode[handlers.HabitListResponse](t, s.do(http.MethodGet, "/api/v1/habits/public", "", nil))
		assert.Zero(t, list.Count)
	})

	t.Run("owner list", func(t *testing.T) {
		list := decode[handlers.HabitListResponse](t, s.do(http.MethodGet, "/api/v1/habits", "u1", nil))
		assert.Equal(t, 1, list.Count)
		list = decode[handlers.HabitListResponse](t, s.do(http.MethodGet, "/api/v1/habits", "u2", nil))
		assert.Zero(t, list.Count)
	})

	t.Run("delete", func(t *testing.T) {
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, path, "u2", nil).Code)
		assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path, "u1", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, "u1", nil).Code)
	})
}

func TestActivityEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(http.MethodPost, "/api/v1/activities", "creator", map[string]any{
		"activityName":    "Sunrise run",
		"location":        map[string]any{"address": "Marine Drive", "latitude": 18.94, "longitude": 72.82},
		"dateTime":        "2025-08-01T06:00:00Z",
		"isPublic":        true,
		"maxParticipants": 1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	activity := decode[handlers.ActivityResponse](t, rec)
	assert.Equal(t, "creator", activity.CreatedBy)
	assert.Equal(t, 1, activity.CurrentParticipantsCount)
	assert.True(t, activity.IsFull)
	path := "/api/v1/activities/" + activity.ActivityID

	rsvp := func(userID, status string) *httptest.ResponseRecorder {
		return s.do(http.MethodPost, path+"/rsvp", userID, map[string]any{"status": status})
	}

	t.Run("full activity rejects a new participant", func(t *testing.T) {
		rec := rsvp("guest", "going")
		assert.Equal(t, http.StatusConflict, rec.Code)
		assert.Equal(t, "FULL", decode[api.ErrorResponse](t, rec).Code)
	})

	t.Run("declining frees the seat", func(t *testing.T) {
		rec := rsvp("creator", "declined")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "declined", decode[handlers.ParticipationResponse](t, rec).Status)

		rec = rsvp("guest", "going")
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

		got := decode[handlers.ActivityResponse](t, s.do(http.MethodGet, path, "guest", nil))
		assert.Equal(t, 1, got.CurrentParticipantsCount)
	})

	t.Run("participants and my rsvps", func(t *testing.T) {
		rec := s.do(http.MethodGet, path+"/participants", "guest", nil)
		require.Equal(t, http.StatusOK, rec.Code)
		participants := decode[handlers.ParticipationListResponse](t, rec)
		assert.Equal(t, 2, participants.Count)

		mine := decode[handlers.ParticipationListResponse](t, s.do(http.MethodGet, "/api/v1/activities/mine", "guest", nil))
		require.Equal(t, 1, mine.Count)
		assert.Equal(t, activity.ActivityID, mine.Participations[0].ActivityID)
		assert.Equal(t, "going", mine.Participations[0].Status)
	})

	t.Run("public feed", func(t *testing.T) {
		list := decode[handlers.ActivityListResponse](t, s.do(http.MethodGet, "/api/v1/activities/public", "", nil))
		require.Equal(t, 1, list.Count)
		assert.Equal(t, "Marine Drive", list.Activities[0].Location.Address)
	})

	t.Run("only the creator edits", func(t *testing.T) {
		body := map[string]any{"activityName": "Sunset run"}
		assert.Equal(t, http.StatusForbidden, s.do(http.MethodPut, path, "guest", body).Code)

		rec := s.do(http.MethodPut, path, "creator", body)
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Equal(t, "Sunset run", decode[handlers.ActivityResponse](t, rec).ActivityName)

		assert.Equal(t, http.StatusForbidden, s.do(http.MethodDelete, path, "guest", nil).Code)
		assert.Equal(t, http.StatusNoContent, s.do(http.MethodDelete, path, "creator", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path, "creator", nil).Code)
		assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, path+"/participants", "creator", nil).Code)
	})

	t.Run("rsvp to a missing activity", func(t *testing.T) {
		rec := s.do(http.MethodPost, "/api/v1/activities/missing/rsvp", "guest", map[string]any{"status": "going"})
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})
}
