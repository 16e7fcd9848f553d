package http

import (
	"context"
	"net/http"

	"github.com/google/uuid"

	"github.com/fjod/go_cart/storefront/internal/domain"
	"github.com/fjod/go_cart/storefront/internal/session"
)

type ctxKey string

const requestIDKey ctxKey = "request_id"

// SessionMiddleware puts the signed-in user into the request context and
// answers 401 when nobody is signed in.
func SessionMiddleware(sessions session.Provider) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			u, err := sessions.Current(r.Context())
			if err != nil {
				respondError(w, http.StatusUnauthorized, "unauthorized", domain.ErrNoSession.Error())
				return
			}
			next.ServeHTTP(w, r.WithContext(session.WithUser(r.Context(), u)))
		})
	}
}

// RequestIDMiddleware adds a unique request ID to each request
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = uuid.NewString()
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func userFrom(r *http.Request) *domain.User {
	u, _ := session.UserFrom(r.Context())
	return u
}
