package handlers

import (
	"net/http"

	"strivesync-backend/internal/infrastructure/observability"
	"strivesync-backend/internal/middleware"
	"strivesync-backend/internal/service"
	"strivesync-backend/pkg/api"
	"strivesync-backend/pkg/auth"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// RouterConfig holds what the router needs. Metrics and CORS are optional.
type RouterConfig struct {
	Users      *service.UserService
	Habits     *service.HabitService
	Activities *service.ActivityService
	Validator  *auth.JWTValidator
	Metrics    *observability.Collector
	Logger     *zap.Logger

	EnableCORS     bool
	AllowedOrigins []string
}

// NewRouter wires middleware and routes.
func NewRouter(cfg RouterConfig) *chi.Mux {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	router := chi.NewRouter()

	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.RealIP)
	router.Use(chimiddleware.Recoverer)
	router.Use(middleware.Logger(logger))
	if cfg.Metrics != nil {
		router.Use(middleware.Metrics(cfg.Metrics))
	}

	if cfg.EnableCORS {
		origins := cfg.AllowedOrigins
		if len(origins) == 0 {
			origins = []string{"*"}
		}
		router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   origins,
			AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: false,
			MaxAge:           300,
		}))
	}

	router.Get("/health", healthCheck)
	if cfg.Metrics != nil {
		router.Method(http.MethodGet, "/metrics", cfg.Metrics.Handler())
	}

	userHandler := NewUserHandler(cfg.Users, logger)
	habitHandler := NewHabitHandler(cfg.Habits, logger)
	activityHandler := NewActivityHandler(cfg.Activities, logger)

	router.Route("/api/v1", func(r chi.Router) {
		// Public feeds
		r.Get("/habits/public", habitHandler.ListPublicHabits)
		r.Get("/activities/public", activityHandler.ListPublicActivities)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Authenticate(cfg.Validator, logger))

			r.Post("/users/me", userHandler.CreateMe)
			r.Get("/users/me", userHandler.GetMe)
			r.Put("/users/me", userHandler.UpdateMe)

			r.Post("/habits", habitHandler.CreateHabit)
			r.Get("/habits", habitHandler.ListHabits)
			r.Get("/habits/{habitID}", habitHandler.GetHabit)
			r.Put("/habits/{habitID}", habitHandler.UpdateHabit)
			r.Delete("/habits/{habitID}", habitHandler.DeleteHabit)

			r.Post("/activities", activityHandler.CreateActivity)
			r.Get("/activities/mine", activityHandler.ListMyRSVPs)
			r.Get("/activities/{activityID}", activityHandler.GetActivity)
			r.Put("/activities/{activityID}", activityHandler.UpdateActivity)
			r.Delete("/activities/{activityID}", activityHandler.DeleteActivity)
			r.Post("/activities/{activityID}/rsvp", activityHandler.RSVP)
			r.Get("/activities/{activityID}/participants", activityHandler.ListParticipants)
		})
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusNotFound, "Route not found")
	})
	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		api.Error(w, http.StatusMethodNotAllowed, "Method not allowed")
	})

	return router
}

func healthCheck(w http.ResponseWriter, _ *http.Request) {
	api.Success(w, http.StatusOK, map[string]string{"status": "healthy"})
}
