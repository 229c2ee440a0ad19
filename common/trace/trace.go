// Package trace tags every inbound Discord event with an id that follows it
// through generation, storage and the activity log.
package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strconv"
	"time"
)

type ctxKey struct{}

// NewID returns a random id such as "f9_3b1c…".
func NewID() string {
	b := make([]byte, 12)
	if _, err := rand.Read(b); err != nil {
		return "f9_" + strconv.FormatInt(time.Now().UnixNano(), 36)
	}
	return "f9_" + hex.EncodeToString(b)
}

// Start returns ctx carrying a new trace id, unless ctx already has one.
func Start(ctx context.Context) (context.Context, string) {
	if id := FromContext(ctx); id != "" {
		return ctx, id
	}
	id := NewID()
	return WithID(ctx, id), id
}

// WithID returns a child context carrying id.
func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the trace id in ctx, or "".
func FromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKey{}).(string)
	return id
}
