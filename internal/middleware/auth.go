// Package middleware holds the HTTP middleware of the API: authentication,
// access logging and request metrics.
package middleware

import (
	"net/http"
	"strings"

	"strivesync-backend/pkg/api"
	"strivesync-backend/pkg/auth"

	"github.com/awslabs/aws-lambda-go-api-proxy/core"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// Authenticate resolves the caller's user id. Requests proxied from API
// Gateway carry authorizer claims, which are trusted as is; other requests
// must present a bearer token accepted by validator.
func Authenticate(validator *auth.JWTValidator, logger *zap.Logger) func(next http.Handler) http.Handler {
	logger = logger.Named("auth")

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := fromAuthorizer(r)
			if !ok {
				token := extractToken(r)
				if token == "" {
					api.Error(w, http.StatusUnauthorized, "Missing authorization header")
					return
				}
				if validator == nil {
					api.Error(w, http.StatusUnauthorized, "Token authentication is not configured")
					return
				}

				claims, err := validator.ValidateToken(token)
				if err != nil {
					logger.Warn("invalid token",
						zap.Error(err),
						zap.String("path", r.URL.Path),
						zap.String("request_id", middleware.GetReqID(r.Context())),
					)
					switch err {
					case auth.ErrExpiredToken:
						api.Error(w, http.StatusUnauthorized, "Token has expired")
					case auth.ErrInvalidSignature:
						api.Error(w, http.StatusUnauthorized, "Invalid token signature")
					default:
						api.Error(w, http.StatusUnauthorized, "Invalid token")
					}
					return
				}
				user = &auth.UserContext{UserID: claims.Subject, Email: claims.Email}
			}

			ctx := auth.SetUserInContext(r.Context(), user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// fromAuthorizer reads the user from the API Gateway v2 authorizer context,
// covering both Lambda and JWT authorizers.
func fromAuthorizer(r *http.Request) (*auth.UserContext, bool) {
	proxyCtx, ok := core.GetAPIGatewayV2ContextFromContext(r.Context())
	if !ok || proxyCtx.Authorizer == nil {
		return nil, false
	}

	if lambdaClaims := proxyCtx.Authorizer.Lambda; lambdaClaims != nil {
		if userID, ok := lambdaClaims["sub"].(string); ok && userID != "" {
			email, _ := lambdaClaims["email"].(string)
			return &auth.UserContext{UserID: userID, Email: email}, true
		}
	}
	if jwtAuth := proxyCtx.Authorizer.JWT; jwtAuth != nil {
		if userID := jwtAuth.Claims["sub"]; userID != "" {
			return &auth.UserContext{UserID: userID, Email: jwtAuth.Claims["email"]}, true
		}
	}
	return nil, false
}

// extractToken returns the bearer token of the Authorization header.
func extractToken(r *http.Request) string {
	header := r.Header.Get("Authorization")
	if header == "" {
		return ""
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}
