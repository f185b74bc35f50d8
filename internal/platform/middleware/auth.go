package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/google/uuid"

	id "pagemd/pkg/domain"
	"pagemd/pkg/requestcontext"
)

// OperatorValidator defines the interface for validating operator tokens.
type OperatorValidator interface {
	ValidateToken(tokenString string) (*OperatorClaims, error)
}

// OperatorClaims represents the claims we expect from a platform operator
// token.
type OperatorClaims struct {
	OperatorID id.OperatorID
	Email      string
}

type contextKeyOperatorID struct{}

// ContextKeyOperatorID is exported for use in handler tests.
var ContextKeyOperatorID = contextKeyOperatorID{}

// GetOperatorID retrieves the authenticated operator ID from the context.
func GetOperatorID(ctx context.Context) id.OperatorID {
	operatorID, ok := ctx.Value(ContextKeyOperatorID).(id.OperatorID)
	if !ok {
		return id.OperatorID{}
	}
	return operatorID
}

// RequireOperator rejects requests without a valid platform operator token.
// On success the operator lands in the context twice: as the typed operator
// ID for governance calls and as the audit actor so both audit streams stamp
// the right identity.
func RequireOperator(validator OperatorValidator, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
			if !ok {
				logger.WarnContext(ctx, "unauthorized access - missing token",
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Missing or invalid Authorization header")
				return
			}

			claims, err := validator.ValidateToken(token)
			if err != nil {
				logger.WarnContext(ctx, "unauthorized access - invalid token",
					"error", err,
					"request_id", requestcontext.RequestID(ctx),
				)
				writeUnauthorized(w, "Invalid or expired token")
				return
			}

			ctx = context.WithValue(ctx, ContextKeyOperatorID, claims.OperatorID)
			ctx = requestcontext.WithActor(ctx, id.UserID(uuid.UUID(claims.OperatorID)), "platform_operator")
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func writeUnauthorized(w http.ResponseWriter, description string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	_, _ = w.Write([]byte(`{"error":"unauthorized","message":"` + description + `"}`))
}
