// SPDX-License-Identifier: MIT

package log

import (
	"context"

	"github.com/rs/zerolog"
)

type ctxKey string

const (
	deviceIDKey ctxKey = "device_id"
	jobIDKey    ctxKey = "job_id"
)

// ContextWithDeviceID stores the provided device handle ID in the context.
func ContextWithDeviceID(ctx context.Context, id uint64) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, deviceIDKey, id)
}

// ContextWithJobID stores the provided delivery job ID in the context.
func ContextWithJobID(ctx context.Context, id string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// FromContext returns a logger enriched with any IDs carried by the context.
func FromContext(ctx context.Context) zerolog.Logger {
	l := logger()
	if ctx == nil {
		return l
	}
	builder := l.With()
	if id, ok := ctx.Value(deviceIDKey).(uint64); ok {
		builder = builder.Uint64("device_id", id)
	}
	if id, ok := ctx.Value(jobIDKey).(string); ok && id != "" {
		builder = builder.Str("job_id", id)
	}
	return builder.Logger()
}
