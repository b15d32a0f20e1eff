package middleware

import (
	"context"
	"crypto/rand"
	"net/http"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// HeaderRequestID is read from requests and echoed on responses.
const HeaderRequestID = "X-Request-ID"

type ctxKey int

const requestIDKey ctxKey = iota

// ids hands out monotonic ULIDs; the entropy source is not goroutine safe.
var ids = struct {
	sync.Mutex
	src *ulid.MonotonicEntropy
}{src: ulid.Monotonic(rand.Reader, 0)}

// NewID returns a fresh ULID. Session and request identifiers both use it.
func NewID() string {
	ids.Lock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), ids.src)
	ids.Unlock()
	return id.String()
}

// RequestID keeps a well-formed incoming X-Request-ID and mints one otherwise.
func RequestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get(HeaderRequestID)
		if _, err := ulid.ParseStrict(id); err != nil {
			id = NewID()
		}
		w.Header().Set(HeaderRequestID, id)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), requestIDKey, id)))
	})
}

// RequestIDFrom returns "" outside a RequestID-wrapped handler.
func RequestIDFrom(ctx context.Context) string {
	s, _ := ctx.Value(requestIDKey).(string)
	return s
}

// Chain wraps h so that mws[0] sees the request first.
func Chain(h http.Handler, mws ...func(http.Handler) http.Handler) http.Handler {
	for i := range mws {
		h = mws[len(mws)-1-i](h)
	}
	return h
}
