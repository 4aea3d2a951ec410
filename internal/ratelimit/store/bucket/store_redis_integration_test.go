//go:build integration

package bucket

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"parity/pkg/testutil/containers"
)

func TestRedisBucketStore(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	a := NewRedisBucketStore(rc.Client)
	b := NewRedisBucketStore(rc.Client)

	res, err := a.Allow(ctx, "assistant:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
	assert.Equal(t, 1, res.Remaining)

	res, err = b.Allow(ctx, "assistant:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed, "second instance shares the window")
	assert.Equal(t, 0, res.Remaining)

	res, err = a.Allow(ctx, "assistant:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.False(t, res.Allowed)
	assert.GreaterOrEqual(t, res.RetryAfter, 1)

	require.NoError(t, b.Reset(ctx, "assistant:u1"))
	res, err = a.Allow(ctx, "assistant:u1", 2, time.Minute)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestRedisBucketStoreWindowExpires(t *testing.T) {
	rc := containers.NewRedisContainer(t)
	ctx := context.Background()
	require.NoError(t, rc.FlushAll(ctx))

	s := NewRedisBucketStore(rc.Client)
	res, err := s.Allow(ctx, "k", 1, 200*time.Millisecond)
	require.NoError(t, err)
	require.True(t, res.Allowed)

	res, err = s.Allow(ctx, "k", 1, 200*time.Millisecond)
	require.NoError(t, err)
	require.False(t, res.Allowed)

	time.Sleep(300 * time.Millisecond)
	res, err = s.Allow(ctx, "k", 1, 200*time.Millisecond)
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}
