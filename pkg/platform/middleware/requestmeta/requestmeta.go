// Package requestmeta provides middleware that stamps request-scoped
// metadata: a request id, the acting identity, and a single "now" timestamp
// so every write inside one request carries consistent attribution.
package requestmeta

import (
	"net/http"
	"time"

	"github.com/google/uuid"

	"rosterd/pkg/requestcontext"
)

// HeaderRequestID carries a caller-supplied request id; one is generated
// when absent.
const HeaderRequestID = "X-Request-Id"

// HeaderActor names the acting identity for history and audit attribution.
const HeaderActor = "X-Actor"

// Middleware injects request id, actor, and request time into the context.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get(HeaderRequestID)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		ctx := requestcontext.WithRequestID(r.Context(), requestID)
		if actor := r.Header.Get(HeaderActor); actor != "" {
			ctx = requestcontext.WithActor(ctx, actor)
		}
		ctx = requestcontext.WithTime(ctx, time.Now())

		w.Header().Set(HeaderRequestID, requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
