// Package requestcontext provides HTTP-independent context accessors for
// request-scoped values.
//
// This package defines context keys and getter/setter functions for the audit
// context that is set by middleware but consumed by services and audit
// writers. By keeping this package free of net/http dependencies, services
// can import only what they need without pulling in HTTP-related code.
//
// Go has no safe ambient propagation across goroutine boundaries, so the
// audit context rides the context.Context that every operation already
// threads. Code that spawns a goroutine must hand the context over
// explicitly; Snapshot and WithAudit exist for exactly that handoff and for
// background jobs that run outside any request.
//
// Usage in services (read values):
//
//	actorID := requestcontext.ActorUserID(ctx)
//	requestID := requestcontext.RequestID(ctx)
//	now := requestcontext.Now(ctx)
//
// Usage in middleware (set values):
//
//	ctx = requestcontext.WithActor(ctx, actorID, role)
//	ctx = requestcontext.WithRequestID(ctx, requestID)
package requestcontext

import (
	"context"
	"time"

	id "pagemd/pkg/domain"
)

// Context key types (unexported for encapsulation).
type (
	actorUserIDKey struct{}
	actorRoleKey   struct{}
	clinicIDKey    struct{}
	clientIPKey    struct{}
	userAgentKey   struct{}
	requestIDKey   struct{}
	requestTimeKey struct{}
)

// Exported context keys for tests that need raw context.WithValue.
var (
	ContextKeyActorUserID = actorUserIDKey{}
	ContextKeyActorRole   = actorRoleKey{}
	ContextKeyClinicID    = clinicIDKey{}
	ContextKeyClientIP    = clientIPKey{}
	ContextKeyUserAgent   = userAgentKey{}
	ContextKeyRequestID   = requestIDKey{}
	ContextKeyRequestTime = requestTimeKey{}
)

// ActorUserID retrieves the authenticated actor's user ID from the context.
// Returns the zero value (nil UUID) if not set.
func ActorUserID(ctx context.Context) id.UserID {
	if userID, ok := ctx.Value(ContextKeyActorUserID).(id.UserID); ok {
		return userID
	}
	return id.UserID{}
}

// ActorRole retrieves the authenticated actor's role name from the context.
func ActorRole(ctx context.Context) string {
	if role, ok := ctx.Value(ContextKeyActorRole).(string); ok {
		return role
	}
	return ""
}

// WithActor injects the resolved actor identity into the context.
func WithActor(ctx context.Context, userID id.UserID, role string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyActorUserID, userID)
	return context.WithValue(ctx, ContextKeyActorRole, role)
}

// ClinicID retrieves the tenant clinic ID from the context.
// Returns the zero value (nil UUID) if not set.
func ClinicID(ctx context.Context) id.ClinicID {
	if clinicID, ok := ctx.Value(ContextKeyClinicID).(id.ClinicID); ok {
		return clinicID
	}
	return id.ClinicID{}
}

// WithClinicID injects a clinic ID into the context.
func WithClinicID(ctx context.Context, clinicID id.ClinicID) context.Context {
	return context.WithValue(ctx, ContextKeyClinicID, clinicID)
}

// ClientIP retrieves the client IP address from the context.
func ClientIP(ctx context.Context) string {
	if ip, ok := ctx.Value(ContextKeyClientIP).(string); ok {
		return ip
	}
	return ""
}

// UserAgent retrieves the normalized User-Agent from the context.
func UserAgent(ctx context.Context) string {
	if ua, ok := ctx.Value(ContextKeyUserAgent).(string); ok {
		return ua
	}
	return ""
}

// WithClientMetadata injects client IP and User-Agent into a context.
// Useful for service unit tests that don't run the full HTTP middleware chain.
func WithClientMetadata(ctx context.Context, clientIP, userAgent string) context.Context {
	ctx = context.WithValue(ctx, ContextKeyClientIP, clientIP)
	ctx = context.WithValue(ctx, ContextKeyUserAgent, userAgent)
	return ctx
}

// RequestID retrieves the request ID from the context.
func RequestID(ctx context.Context) string {
	if reqID, ok := ctx.Value(ContextKeyRequestID).(string); ok {
		return reqID
	}
	return ""
}

// WithRequestID injects a request ID into the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, ContextKeyRequestID, requestID)
}

// Now retrieves the request-scoped time from context.
// Falls back to time.Now() for non-HTTP contexts (workers, CLI, tests).
func Now(ctx context.Context) time.Time {
	if t, ok := ctx.Value(ContextKeyRequestTime).(time.Time); ok {
		return t
	}
	return time.Now()
}

// WithTime injects a specific time into a context.
// Useful for:
//   - Service unit tests that don't run the full HTTP middleware chain
//   - Workers that need consistent time within a batch operation
//   - CLI commands
func WithTime(ctx context.Context, t time.Time) context.Context {
	return context.WithValue(ctx, ContextKeyRequestTime, t)
}

// Audit is a point-in-time snapshot of the request-scoped audit context.
// It exists for goroutine handoff and for background jobs that must stamp
// audit rows without a live request.
type Audit struct {
	RequestID   string
	ActorUserID id.UserID
	ActorRole   string
	ClinicID    id.ClinicID
	ClientIP    string
	UserAgent   string
}

// Snapshot captures the audit context currently carried by ctx.
func Snapshot(ctx context.Context) Audit {
	return Audit{
		RequestID:   RequestID(ctx),
		ActorUserID: ActorUserID(ctx),
		ActorRole:   ActorRole(ctx),
		ClinicID:    ClinicID(ctx),
		ClientIP:    ClientIP(ctx),
		UserAgent:   UserAgent(ctx),
	}
}

// WithAudit installs a snapshot onto a fresh context. The returned context
// behaves exactly as if the request middleware had populated it, so audit
// writers on a worker goroutine stamp rows with the originating request's
// identity.
func WithAudit(ctx context.Context, a Audit) context.Context {
	ctx = WithRequestID(ctx, a.RequestID)
	ctx = WithActor(ctx, a.ActorUserID, a.ActorRole)
	ctx = WithClinicID(ctx, a.ClinicID)
	ctx = WithClientMetadata(ctx, a.ClientIP, a.UserAgent)
	return ctx
}
