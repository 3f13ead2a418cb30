// Package context provides request-scoped values extraction.
package context

import (
	"context"
)

// DeviceContext identifies the terminal a request or operation batch comes from.
type DeviceContext struct {
	DeviceID string
	Operator string
}

type deviceContextKey struct{}

// WithDevice adds DeviceContext to context.
func WithDevice(ctx context.Context, device *DeviceContext) context.Context {
	return context.WithValue(ctx, deviceContextKey{}, device)
}

// GetDevice returns DeviceContext from context.
func GetDevice(ctx context.Context) *DeviceContext {
	if v, ok := ctx.Value(deviceContextKey{}).(*DeviceContext); ok {
		return v
	}
	return nil
}

// GetDeviceID returns device ID from context or empty string.
func GetDeviceID(ctx context.Context) string {
	if d := GetDevice(ctx); d != nil {
		return d.DeviceID
	}
	return ""
}
