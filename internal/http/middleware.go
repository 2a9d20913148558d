package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/fjod/cartstore/pkg/logger"
	"github.com/google/uuid"
)

const (
	HeaderRequestID = "X-Request-ID"
	HeaderSessionID = "X-Session-ID"

	maxSessionIDLength = 128
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	sessionIDKey
)

// RequestIDMiddleware adds a request ID to the context, the logger and the response.
func RequestIDMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID := strings.TrimSpace(r.Header.Get(HeaderRequestID))
			if requestID == "" {
				requestID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), requestIDKey, requestID)
			ctx = log.WithRequestID(ctx, requestID)
			w.Header().Set(HeaderRequestID, requestID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// SessionMiddleware identifies the cart session from the X-Session-ID header.
// A request without one starts a new session, and the generated ID is echoed
// back so the client can keep using it.
func SessionMiddleware(log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			sessionID := strings.TrimSpace(r.Header.Get(HeaderSessionID))
			if len(sessionID) > maxSessionIDLength {
				responder{log: log}.respondError(w, r, invalidSessionError())
				return
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}

			ctx := context.WithValue(r.Context(), sessionIDKey, sessionID)
			ctx = log.WithSessionID(ctx, sessionID)
			w.Header().Set(HeaderSessionID, sessionID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func getSessionID(ctx context.Context) string {
	if sessionID, ok := ctx.Value(sessionIDKey).(string); ok {
		return sessionID
	}
	return ""
}
