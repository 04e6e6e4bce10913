package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryConsumeRespectsCapacity(t *testing.T) {
	t.Parallel()

	l := New(Config{Capacity: 2, MinInterval: time.Hour})

	assert.True(t, l.TryConsume("example.org"))
	assert.True(t, l.TryConsume("example.org"))
	assert.False(t, l.TryConsume("example.org"), "burst above capacity")
}

func TestHostsDoNotContend(t *testing.T) {
	t.Parallel()

	l := New(Config{Capacity: 1, MinInterval: time.Hour})

	require.True(t, l.TryConsume("a.example"))
	require.False(t, l.TryConsume("a.example"))
	assert.True(t, l.TryConsume("b.example"), "exhausting one host must not affect another")
}

func TestHostKeyIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	l := New(Config{Capacity: 1, MinInterval: time.Hour})

	require.True(t, l.TryConsume("Example.ORG"))
	assert.False(t, l.TryConsume("example.org"))
}

func TestWaitTimeAfterExhaustion(t *testing.T) {
	t.Parallel()

	l := New(Config{Capacity: 1, MinInterval: 500 * time.Millisecond})

	assert.Zero(t, l.WaitTime("example.org"), "full bucket needs no wait")
	require.True(t, l.TryConsume("example.org"))

	d := l.WaitTime("example.org")
	assert.Greater(t, d, time.Duration(0))
	assert.LessOrEqual(t, d, 500*time.Millisecond)
}

func TestWaitTimeDoesNotConsume(t *testing.T) {
	t.Parallel()

	l := New(Config{Capacity: 1, MinInterval: time.Hour})

	_ = l.WaitTime("example.org")
	assert.True(t, l.TryConsume("example.org"), "WaitTime must not take the token")
}

func TestWaitBlocksUntilRefill(t *testing.T) {
	t.Parallel()

	l := New(Config{Capacity: 1, MinInterval: 50 * time.Millisecond})
	require.True(t, l.TryConsume("example.org"))

	start := time.Now()
	require.NoError(t, l.Wait(context.Background(), "example.org"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestWaitHonorsContextCancellation(t *testing.T) {
	t.Parallel()

	l := New(Config{Capacity: 1, MinInterval: time.Hour})
	require.True(t, l.TryConsume("example.org"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := l.Wait(ctx, "example.org")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "example.org")
}

func TestSetPolicyRaisesCapacity(t *testing.T) {
	t.Parallel()

	l := New(Config{Capacity: 1, MinInterval: time.Hour})
	l.SetPolicy("fast.example", Config{Capacity: 3, MinInterval: time.Hour})

	assert.True(t, l.TryConsume("fast.example"))
	assert.True(t, l.TryConsume("fast.example"))
	assert.True(t, l.TryConsume("fast.example"))
	assert.False(t, l.TryConsume("fast.example"))
}
