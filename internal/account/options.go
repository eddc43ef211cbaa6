// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 MiniAccount Contributors

package account

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var tracer = otel.Tracer("accountd/account")

type serviceOptions struct {
	logger   *slog.Logger
	now      func() time.Time
	tokenTTL time.Duration
}

func defaultServiceOptions() serviceOptions {
	return serviceOptions{
		logger:   slog.Default(),
		now:      time.Now,
		tokenTTL: DefaultTokenTTL,
	}
}

// ServiceOption configures AccountService and PasswordResetService.
type ServiceOption func(*serviceOptions)

// WithLogger sets the logger used for operational events.
func WithLogger(logger *slog.Logger) ServiceOption {
	return func(o *serviceOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// WithClock replaces time.Now. Useful for testing expiry deterministically.
func WithClock(now func() time.Time) ServiceOption {
	return func(o *serviceOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// WithTokenTTL sets the reset token lifetime. Non-positive values are ignored.
func WithTokenTTL(ttl time.Duration) ServiceOption {
	return func(o *serviceOptions) {
		if ttl > 0 {
			o.tokenTTL = ttl
		}
	}
}

func buildOptions(opts []ServiceOption) serviceOptions {
	o := defaultServiceOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(attribute.String("error.kind", KindOf(err).String()))
	}
	span.End()
}
