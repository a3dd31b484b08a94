// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

package httpapi

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/holomush/schoolapi/internal/auth"
	"github.com/holomush/schoolapi/internal/logging"
	"github.com/holomush/schoolapi/internal/observability"
)

// RequestIDHeader carries the per-request id on every response.
const RequestIDHeader = "X-Request-ID"

const bearerPrefix = "Bearer "

var (
	tracer     = otel.Tracer("schoolapi/httpapi")
	propagator = propagation.TraceContext{}
)

// Guard messages.
const (
	msgNoToken      = "Not authorized, no token"
	msgInvalidToken = "Forbidden, invalid or expired token"
)

// TokenVerifier checks a bearer token.
type TokenVerifier interface {
	Verify(token string) (auth.Identity, error)
}

type identityKey struct{}

// IdentityFromContext returns the identity attached by RequireBearer.
func IdentityFromContext(ctx context.Context) (auth.Identity, bool) {
	id, ok := ctx.Value(identityKey{}).(auth.Identity)
	return id, ok
}

// bearerToken extracts the token from an Authorization header value.
// Any scheme other than "Bearer " counts as no token.
func bearerToken(header string) string {
	token, ok := strings.CutPrefix(header, bearerPrefix)
	if !ok {
		return ""
	}
	return strings.TrimSpace(token)
}

// RequireBearer admits requests carrying a valid bearer token. A missing
// token is 401; a token that fails verification for any reason is 403.
func RequireBearer(verifier TokenVerifier, metrics *observability.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := bearerToken(r.Header.Get("Authorization"))
		if token == "" {
			metrics.RecordAuthEvent("token", observability.OutcomeRejected)
			writeMessage(w, http.StatusUnauthorized, msgNoToken)
			return
		}

		id, err := verifier.Verify(token)
		if err != nil {
			metrics.RecordAuthEvent("token", observability.OutcomeRejected)
			slog.DebugContext(r.Context(), "bearer token rejected", "reason", tokenFailureReason(err))
			writeMessage(w, http.StatusForbidden, msgInvalidToken)
			return
		}

		metrics.RecordAuthEvent("token", observability.OutcomeSuccess)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), identityKey{}, id)))
	})
}

func tokenFailureReason(err error) string {
	switch {
	case errors.Is(err, auth.ErrTokenExpired):
		return "expired"
	case errors.Is(err, auth.ErrTokenInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, auth.ErrTokenMalformed):
		return "malformed"
	case errors.Is(err, auth.ErrTokenMissing):
		return "missing"
	default:
		return "unknown"
	}
}

// statusRecorder remembers the status written through it.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	if r.status == 0 {
		r.status = status
	}
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Write(b []byte) (int, error) {
	if r.status == 0 {
		r.status = http.StatusOK
	}
	//nolint:wrapcheck // ResponseWriter passthrough
	return r.ResponseWriter.Write(b)
}

func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

// instrument assigns a request id and a server span continuing any W3C
// traceparent, then logs and counts each request by the mux pattern it
// matched.
func instrument(logger *slog.Logger, metrics *observability.Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := ulid.Make().String()
		w.Header().Set(RequestIDHeader, requestID)

		ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
		ctx, span := tracer.Start(ctx, "http.request",
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.request.method", r.Method),
				attribute.String("request_id", requestID),
			),
		)
		defer span.End()

		rec := &statusRecorder{ResponseWriter: w}
		req := r.WithContext(logging.WithRequestID(ctx, requestID))
		next.ServeHTTP(rec, req)

		status := rec.status
		if status == 0 {
			status = http.StatusOK
		}
		route := req.Pattern
		if _, path, ok := strings.Cut(route, " "); ok {
			route = path
		}
		if route == "" {
			route = "unmatched"
		}
		elapsed := time.Since(start)

		span.SetAttributes(
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
		)
		if status >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(status))
		}

		metrics.ObserveRequest(r.Method, route, status, elapsed)
		logger.InfoContext(req.Context(), "http request",
			"method", r.Method,
			"path", r.URL.Path,
			"route", route,
			"status", status,
			"duration_ms", elapsed.Milliseconds(),
		)
	})
}

// recoverPanics turns a handler panic into a 500.
func recoverPanics(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.ErrorContext(r.Context(), "handler panic", "panic", rec)
			writeMessage(w, http.StatusInternalServerError, "Internal server error")
		}()
		next.ServeHTTP(w, r)
	})
}
