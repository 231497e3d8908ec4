package tracing

import (
	"context"

	"github.com/google/uuid"
)

// ContextKey is the type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for trace ID
	TraceIDKey ContextKey = "trace_id"
	// RequestIDKey is the context key for the inbound message ID
	RequestIDKey ContextKey = "request_id"
	// ConversationKey is the context key for the conversation (room/participant) key
	ConversationKey ContextKey = "conversation"
	// ChannelKey is the context key for the originating channel name
	ChannelKey ContextKey = "channel"
)

// TraceContext holds tracing information
type TraceContext struct {
	TraceID      string
	RequestID    string
	Conversation string
	Channel      string
}

// NewTraceID generates a new trace ID
func NewTraceID() string {
	return uuid.New().String()
}

// NewRequestID generates a request ID for inbound messages that carry none.
func NewRequestID() string {
	return uuid.New().String()
}

// WithTraceID adds a trace ID to the context
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, TraceIDKey, traceID)
}

// WithRequestID adds a request ID to the context
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// WithConversation adds a conversation key to the context
func WithConversation(ctx context.Context, conversation string) context.Context {
	return context.WithValue(ctx, ConversationKey, conversation)
}

// WithChannel adds the channel name to the context
func WithChannel(ctx context.Context, channel string) context.Context {
	return context.WithValue(ctx, ChannelKey, channel)
}

func stringValue(ctx context.Context, key ContextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// GetTraceID retrieves the trace ID from the context
func GetTraceID(ctx context.Context) string {
	return stringValue(ctx, TraceIDKey)
}

// GetRequestID retrieves the request ID from the context
func GetRequestID(ctx context.Context) string {
	return stringValue(ctx, RequestIDKey)
}

// GetConversation retrieves the conversation key from the context
func GetConversation(ctx context.Context) string {
	return stringValue(ctx, ConversationKey)
}

// GetChannel retrieves the channel name from the context
func GetChannel(ctx context.Context) string {
	return stringValue(ctx, ChannelKey)
}

// FromContext extracts all tracing information from the context
func FromContext(ctx context.Context) *TraceContext {
	return &TraceContext{
		TraceID:      GetTraceID(ctx),
		RequestID:    GetRequestID(ctx),
		Conversation: GetConversation(ctx),
		Channel:      GetChannel(ctx),
	}
}

// NewRequestContext creates a new context for a request with a new trace ID
func NewRequestContext(ctx context.Context) context.Context {
	return WithTraceID(ctx, NewTraceID())
}

// Detach returns a background context carrying the tracing values of ctx.
// Queued workflows use it so they outlive the intake call that submitted them.
func Detach(ctx context.Context) context.Context {
	tc := FromContext(ctx)
	out := context.Background()
	if tc.TraceID != "" {
		out = WithTraceID(out, tc.TraceID)
	}
	if tc.RequestID != "" {
		out = WithRequestID(out, tc.RequestID)
	}
	if tc.Conversation != "" {
		out = WithConversation(out, tc.Conversation)
	}
	if tc.Channel != "" {
		out = WithChannel(out, tc.Channel)
	}
	return out
}
