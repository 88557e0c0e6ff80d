package crawl_test

import (
	"context"
	"testing"
	"time"

	"github.com/memoracle/memoracle/crawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHostLimiter_spaces_requests(t *testing.T) {
	t.Parallel()

	l := crawl.NewHostLimiter(50 * time.Millisecond)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, l.Wait(ctx, "d1"))
	}
	elapsed := time.Since(start)

	// The first token is free; the next two wait ~50ms each.
	assert.GreaterOrEqual(t, elapsed, 90*time.Millisecond)
}

func TestHostLimiter_independent_docsets(t *testing.T) {
	t.Parallel()

	l := crawl.NewHostLimiter(time.Second)
	ctx := context.Background()

	start := time.Now()
	require.NoError(t, l.Wait(ctx, "d1"))
	require.NoError(t, l.Wait(ctx, "d2"))
	assert.Less(t, time.Since(start), 500*time.Millisecond, "different docsets do not share a bucket")
}

func TestHostLimiter_zero_delay_never_blocks(t *testing.T) {
	t.Parallel()

	l := crawl.NewHostLimiter(0)
	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 100; i++ {
		require.NoError(t, l.Wait(ctx, "d1"))
	}
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestHostLimiter_cancellation(t *testing.T) {
	t.Parallel()

	l := crawl.NewHostLimiter(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())

	require.NoError(t, l.Wait(ctx, "d1"))
	cancel()
	assert.Error(t, l.Wait(ctx, "d1"))
}
