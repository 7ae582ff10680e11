package logger

import "context"

type contextKey string

const logFieldsKey contextKey = "log_fields"

// LogFields contains structured fields automatically added to all logs within
// a context. Fields flow through context enrichment, so a panel can stamp its
// market once and every log line below it carries the ids.
type LogFields struct {
	MarketID  *string // Market whose discussion is being synced
	RoomID    *string // Transport room (usually derived from the market id)
	CommentID *string // Comment being mutated, when there is exactly one
	ViewerID  *string // Identity of the viewing user
	EventType *string // Inbound event type (e.g. "new-comment")
	Component string  // Component name (e.g. "commentsync.store")
}

// WithLogFields enriches context with structured log fields.
// Multiple calls merge fields, with newer non-nil/non-empty values taking
// precedence. Context timeouts and cancellation are preserved.
func WithLogFields(ctx context.Context, fields LogFields) context.Context {
	existing := GetLogFields(ctx)
	merged := mergeFields(existing, fields)
	return context.WithValue(ctx, logFieldsKey, merged)
}

// GetLogFields retrieves log fields from context.
// Returns empty LogFields if none are set.
func GetLogFields(ctx context.Context) LogFields {
	if fields, ok := ctx.Value(logFieldsKey).(LogFields); ok {
		return fields
	}
	return LogFields{}
}

func mergeFields(existing, new LogFields) LogFields {
	result := existing

	if new.MarketID != nil {
		result.MarketID = new.MarketID
	}
	if new.RoomID != nil {
		result.RoomID = new.RoomID
	}
	if new.CommentID != nil {
		result.CommentID = new.CommentID
	}
	if new.ViewerID != nil {
		result.ViewerID = new.ViewerID
	}
	if new.EventType != nil {
		result.EventType = new.EventType
	}
	if new.Component != "" {
		result.Component = new.Component
	}

	return result
}

// Ptr is a helper to create a pointer from a value.
// Useful for setting LogFields inline: logger.WithLogFields(ctx, logger.LogFields{MarketID: logger.Ptr(id)})
func Ptr[T any](v T) *T {
	return &v
}

// Truncate truncates a string to maxLen characters, appending "..." if
// truncated. Useful for logging potentially long comment text.
func Truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
