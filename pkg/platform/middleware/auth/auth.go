package auth

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"parity/internal/access"
	id "parity/pkg/domain"
	dErrors "parity/pkg/domain-errors"
	"parity/pkg/platform/httputil"
	"parity/pkg/requestcontext"
)

// JWTValidator defines the interface for validating JWT tokens
type JWTValidator interface {
	ValidateToken(tokenString string) (*JWTClaims, error)
}

// JWTClaims represents the claims we expect from the JWT validator
type JWTClaims struct {
	UserID     string
	Email      string
	Role       string
	CompanyID  string
	EmployeeID string
	JTI        string
}

// Actor resolves the claims into the identity used for authorization.
func (c *JWTClaims) Actor() (access.Actor, error) {
	userID, err := id.ParseUserID(c.UserID)
	if err != nil {
		return access.Actor{}, err
	}
	companyID, err := id.ParseCompanyID(c.CompanyID)
	if err != nil {
		return access.Actor{}, err
	}
	role, err := access.ParseRole(c.Role)
	if err != nil {
		return access.Actor{}, err
	}
	actor := access.Actor{
		UserID:    userID,
		Email:     strings.TrimSpace(c.Email),
		Role:      role,
		CompanyID: companyID,
	}
	if c.EmployeeID != "" {
		if actor.EmployeeID, err = id.ParseEmployeeID(c.EmployeeID); err != nil {
			return access.Actor{}, err
		}
	}
	return actor, nil
}

func unauthorized(w http.ResponseWriter, msg string) {
	httputil.WriteError(w, dErrors.New(dErrors.CodeUnauthorized, msg))
}

// RequireAuth validates the bearer token and stores the resolved actor in the
// request context.
func RequireAuth(validator JWTValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok || strings.TrimSpace(token) == "" {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(strings.TrimSpace(token))
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "invalid or expired token")
				return
			}

			actor, err := claims.Actor()
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - unusable claims",
					"error", err,
					"jti", claims.JTI,
					"request_id", requestcontext.RequestID(ctx),
				)
				unauthorized(w, "token does not identify a company member")
				return
			}

			next.ServeHTTP(w, r.WithContext(access.WithActor(ctx, actor)))
		})
	}
}

// UserID returns the authenticated user id, empty when unauthenticated.
func UserID(ctx context.Context) string {
	if actor, ok := access.ActorFrom(ctx); ok {
		return actor.UserID.String()
	}
	return ""
}
