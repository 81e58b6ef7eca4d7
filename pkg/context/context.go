// Package context carries run identifiers through a resolution so every
// log line of one run can be correlated
package context

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const (
	runIDKey     contextKey = "run-id"
	sessionIDKey contextKey = "session-id"
	operationKey contextKey = "operation"
)

// WithRunID adds a run ID to the context, generating one when runID is empty
func WithRunID(parent context.Context, runID string) context.Context {
	if runID == "" {
		runID = GenerateRunID()
	}
	return context.WithValue(parent, runIDKey, runID)
}

// GetRunID retrieves the run ID from context, or "" when there is none
func GetRunID(ctx context.Context) string {
	if id, ok := ctx.Value(runIDKey).(string); ok {
		return id
	}
	return ""
}

// WithSessionID adds a session ID shared by every run of one watch session
func WithSessionID(parent context.Context, sessionID string) context.Context {
	if sessionID == "" {
		sessionID = GenerateRunID()
	}
	return context.WithValue(parent, sessionIDKey, sessionID)
}

// GetSessionID retrieves the session ID from context, or ""
func GetSessionID(ctx context.Context) string {
	if id, ok := ctx.Value(sessionIDKey).(string); ok {
		return id
	}
	return ""
}

// WithOperation adds an operation name to the context
func WithOperation(parent context.Context, operation string) context.Context {
	return context.WithValue(parent, operationKey, operation)
}

// GetOperation retrieves the operation name from context
func GetOperation(ctx context.Context) string {
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		return op
	}
	return "unknown-operation"
}

// GenerateRunID creates a new unique run ID
func GenerateRunID() string {
	return uuid.NewString()
}

// TracingFields returns the identifiers present in ctx, for structured
// logging
func TracingFields(ctx context.Context) map[string]interface{} {
	fields := map[string]interface{}{
		"operation": GetOperation(ctx),
	}
	if id := GetRunID(ctx); id != "" {
		fields["run"] = id
	}
	if id := GetSessionID(ctx); id != "" {
		fields["session"] = id
	}
	return fields
}
