package ratelimit

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func exhaust(t *testing.T, l Limiter, key string, allowed int) {
	t.Helper()
	ctx := context.Background()
	for i := 0; i < allowed; i++ {
		ok, err := l.Allow(ctx, key)
		require.NoError(t, err)
		require.True(t, ok, "call %d should be allowed", i+1)
	}
	ok, err := l.Allow(ctx, key)
	require.NoError(t, err)
	assert.False(t, ok, "call %d should be limited", allowed+1)
}

func TestMemoryLimiter(t *testing.T) {
	l, err := New("3-M")
	require.NoError(t, err)
	defer l.Close()

	// GIVEN: u1 used its three submissions
	exhaust(t, l, "submit:u1", 3)

	// THEN: u2 has its own window
	ok, err := l.Allow(context.Background(), "submit:u2")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_InvalidRate(t *testing.T) {
	_, err := New("ten per minute")
	assert.Error(t, err)

	_, err = NewRedis(context.Background(), "bad", "redis://localhost:6379/0")
	assert.Error(t, err)

	_, err = NewRedis(context.Background(), "10-M", "not a url")
	assert.Error(t, err)
}

func TestRedisLimiter(t *testing.T) {
	url := os.Getenv("LEAVE_TEST_REDIS_URL")
	if url == "" {
		t.Skip("LEAVE_TEST_REDIS_URL not set")
	}

	l, err := NewRedis(context.Background(), "2-H", url)
	require.NoError(t, err)
	defer l.Close()

	exhaust(t, l, "submit:"+uuid.NewString(), 2)
}
