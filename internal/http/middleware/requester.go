package middleware

import (
	"context"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const requesterAccountKey contextKey = "requester_account_id"

// RequesterAccount extracts the caller's account id from the X-Account-ID
// header, set by the fronting gateway after it authenticates the caller.
// The value is carried in the request context and handed to lifecycle
// operations as an explicit parameter; nothing downstream reads ambient
// authentication state.
func RequesterAccount(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if raw := r.Header.Get("X-Account-ID"); raw != "" {
			if id, err := uuid.Parse(raw); err == nil {
				r = r.WithContext(context.WithValue(r.Context(), requesterAccountKey, id))
			}
		}
		next.ServeHTTP(w, r)
	})
}

// GetRequesterAccount returns the caller's account id, if the gateway
// supplied one.
func GetRequesterAccount(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(requesterAccountKey).(uuid.UUID)
	return id, ok
}
