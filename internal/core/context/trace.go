package context

import (
	"context"

	"coopsync/internal/core/id"
)

// TraceContext correlates log lines of one request. A terminal forwards the
// trace id of its sync pass so central logs for a batch share it.
type TraceContext struct {
	TraceID   string
	RequestID string
}

type traceContextKey struct{}

// NewTrace builds a TraceContext, minting ids that are not supplied.
func NewTrace(traceID, requestID string) *TraceContext {
	if requestID == "" {
		requestID = id.NewString()
	}
	if traceID == "" {
		traceID = requestID
	}
	return &TraceContext{TraceID: traceID, RequestID: requestID}
}

func WithTrace(ctx context.Context, trace *TraceContext) context.Context {
	return context.WithValue(ctx, traceContextKey{}, trace)
}

// GetTrace returns the TraceContext or nil.
func GetTrace(ctx context.Context) *TraceContext {
	if v, ok := ctx.Value(traceContextKey{}).(*TraceContext); ok {
		return v
	}
	return nil
}

// GetTraceID returns the trace id or "".
func GetTraceID(ctx context.Context) string {
	if t := GetTrace(ctx); t != nil {
		return t.TraceID
	}
	return ""
}
