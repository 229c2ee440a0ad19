package llm

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRateLimiter_SlidingWindow(t *testing.T) {
	now := time.Date(2026, 2, 24, 10, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(2, time.Minute)
	rl.now = func() time.Time { return now }

	assert.True(t, rl.Allow("alice"))
	assert.True(t, rl.Allow("alice"))
	assert.False(t, rl.Allow("alice"))
	assert.Equal(t, 0, rl.Remaining("alice"))

	// Other users have their own window.
	assert.True(t, rl.Allow("bob"))
	assert.Equal(t, 1, rl.Remaining("bob"))

	now = now.Add(61 * time.Second)
	assert.Equal(t, 2, rl.Remaining("alice"))
	assert.True(t, rl.Allow("alice"))
}

func TestRateLimiter_Defaults(t *testing.T) {
	rl := NewRateLimiter(0, 0)
	assert.Equal(t, DefaultUserLimit, rl.limit)
	assert.Equal(t, time.Minute, rl.window)
}

type stubGenerator struct {
	calls int
	reply string
	err   error
}

func (s *stubGenerator) Name() string { return "stub" }

func (s *stubGenerator) Generate(context.Context, Request) (string, error) {
	s.calls++
	return s.reply, s.err
}

func TestThrottled(t *testing.T) {
	stub := &stubGenerator{reply: "ok"}
	th := NewThrottled(stub, 0, 0)
	assert.Equal(t, "stub", th.Name())

	got, err := th.Generate(context.Background(), Request{})
	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, 1, stub.calls)
}

func TestThrottled_CancelledWhileWaiting(t *testing.T) {
	stub := &stubGenerator{reply: "ok"}
	th := NewThrottled(stub, 1, 1)

	_, err := th.Generate(context.Background(), Request{})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = th.Generate(ctx, Request{})
	require.Error(t, err)

	var ge *GenerationError
	assert.True(t, errors.As(err, &ge))
	assert.Equal(t, 1, stub.calls)
}
