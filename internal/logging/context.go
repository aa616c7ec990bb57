package logging

import (
	"context"

	"github.com/sirupsen/logrus"
)

type ctxKey string

const (
	ctxKeyRequestID ctxKey = "req_id"
	ctxKeyAPIKeyHP  ctxKey = "api_key_hp"
)

// WithRequestID stores the request id in ctx.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKeyRequestID, id)
}

// RequestID returns the request id in ctx, or "".
func RequestID(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyRequestID).(string)
	return id
}

// WithAPIKey stores the caller's API key hash prefix in ctx.
func WithAPIKey(ctx context.Context, hashPrefix string) context.Context {
	return context.WithValue(ctx, ctxKeyAPIKeyHP, hashPrefix)
}

// APIKey returns the API key hash prefix in ctx, or "".
func APIKey(ctx context.Context) string {
	hp, _ := ctx.Value(ctxKeyAPIKeyHP).(string)
	return hp
}

// FromContext decorates base with the request fields found in ctx.
func FromContext(ctx context.Context, base logrus.FieldLogger) logrus.FieldLogger {
	fields := logrus.Fields{}
	if id := RequestID(ctx); id != "" {
		fields["req_id"] = id
	}
	if hp := APIKey(ctx); hp != "" {
		fields["api"] = hp
	}
	if len(fields) == 0 {
		return base
	}
	return base.WithFields(fields)
}
