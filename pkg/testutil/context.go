package testutil

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"pagemd/internal/platform/middleware"
	id "pagemd/pkg/domain"
	"pagemd/pkg/requestcontext"
)

// WithOperator stamps the request context the way RequireOperator does for an
// authenticated platform operator. Invalid IDs are silently ignored.
func WithOperator(req *http.Request, operatorID string) *http.Request {
	parsed, err := id.ParseOperatorID(operatorID)
	if err != nil {
		return req
	}
	ctx := context.WithValue(req.Context(), middleware.ContextKeyOperatorID, parsed)
	ctx = requestcontext.WithActor(ctx, id.UserID(uuid.UUID(parsed)), "platform_operator")
	return req.WithContext(ctx)
}

// WithContextValue adds an arbitrary key-value pair to the request context.
func WithContextValue(req *http.Request, key, value any) *http.Request {
	ctx := context.WithValue(req.Context(), key, value)
	return req.WithContext(ctx)
}
