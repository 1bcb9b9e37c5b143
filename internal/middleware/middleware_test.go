package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"strivesync-backend/internal/infrastructure/observability"
	"strivesync-backend/pkg/auth"

	"github.com/aws/aws-lambda-go/events"
	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

const secret = "test-secret"

// whoami echoes the authenticated user id.
var whoami = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
	user, err := auth.GetUserFromContext(r.Context())
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Write([]byte(user.UserID))
})

func newAuth(t *testing.T) http.Handler {
	t.Helper()
	validator, err := auth.NewJWTValidator(auth.JWTConfig{SigningMethod: "HS256", SecretKey: secret})
	require.NoError(t, err)
	return Authenticate(validator, zap.NewNop())(whoami)
}

func TestAuthenticate_BearerToken(t *testing.T) {
	handler := newAuth(t)

	token, err := auth.GenerateToken(secret, "", "u1", "", time.Hour)
	require.NoError(t, err)
	expired, err := auth.GenerateToken(secret, "", "u1", "", -time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid token", "Bearer " + token, http.StatusOK, "u1"},
		{"lowercase scheme", "bearer " + token, http.StatusOK, "u1"},
		{"missing header", "", http.StatusUnauthorized, "Missing authorization header"},
		{"wrong scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, "Missing authorization header"},
		{"expired token", "Bearer " + expired, http.StatusUnauthorized, "Token has expired"},
		{"garbage token", "Bearer abc.def.ghi", http.StatusUnauthorized, "Invalid token"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/users/me", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			handler.ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.wantBody)
		})
	}
}

func gatewayRequest(t *testing.T, authorizer *events.APIGatewayV2HTTPRequestContextAuthorizerDescription) *http.Request {
	t.Helper()
	accessor := core.RequestAccessorV2{}
	req, err := accessor.EventToRequestWithContext(context.Background(), events.APIGatewayV2HTTPRequest{
		RawPath: "/api/v1/users/me",
		RequestContext: events.APIGatewayV2HTTPRequestContext{
			DomainName: "api.example.com",
			HTTP:       events.APIGatewayV2HTTPRequestContextHTTPDescription{Method: http.MethodGet, Path: "/api/v1/users/me"},
			Authorizer: authorizer,
		},
	})
	require.NoError(t, err)
	return req
}

func TestAuthenticate_GatewayAuthorizer(t *testing.T) {
	handler := newAuth(t)

	t.Run("Should trust Lambda authorizer claims", func(t *testing.T) {
		req := gatewayRequest(t, &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
			Lambda: map[string]interface{}{"sub": "u-lambda", "email": "l@example.com"},
		})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-lambda", rec.Body.String())
	})

	t.Run("Should trust JWT authorizer claims", func(t *testing.T) {
		req := gatewayRequest(t, &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
			JWT: &events.APIGatewayV2HTTPRequestContextAuthorizerJWTDescription{
				Claims: map[string]string{"sub": "u-jwt"},
			},
		})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "u-jwt", rec.Body.String())
	})

	t.Run("Should fall back to the bearer token without claims", func(t *testing.T) {
		req := gatewayRequest(t, &events.APIGatewayV2HTTPRequestContextAuthorizerDescription{
			Lambda: map[string]interface{}{"role": "user"},
		})
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}

func TestAuthenticate_WithoutValidator(t *testing.T) {
	handler := Authenticate(nil, zap.NewNop())(whoami)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer anything")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogger(t *testing.T) {
	observed, logs := observer.New(zapcore.DebugLevel)
	router := chi.NewRouter()
	router.Use(Logger(zap.New(observed)))
	router.Get("/ok", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte("ok")) })
	router.Get("/boom", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusServiceUnavailable) })

	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/ok", nil))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))

	entries := logs.All()
	require.Len(t, entries, 2)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, int64(http.StatusOK), entries[0].ContextMap()["status"])
	assert.Equal(t, zapcore.ErrorLevel, entries[1].Level)
	assert.Equal(t, "/boom", entries[1].ContextMap()["path"])
}

func TestMetrics(t *testing.T) {
	collector := observability.NewCollector("test")
	router := chi.NewRouter()
	router.Use(Metrics(collector))
	router.Get("/habits/{habitID}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	for _, id := range []string{"h1", "h2", "h3"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/habits/"+id, nil))
	}

	assert.Equal(t, 3.0, testutil.ToFloat64(collector.HTTPRequests.WithLabelValues("GET", "/habits/{habitID}", "204")))
	assert.Equal(t, 1, testutil.CollectAndCount(collector.HTTPRequests))
}
