package clients

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestExpiryMillisKeepsSubSecondTTLs(t *testing.T) {
	t.Parallel()

	assert.Equal(t, int64(1), expiryMillis(0))
	assert.Equal(t, int64(1), expiryMillis(500*time.Microsecond))
	assert.Equal(t, int64(250), expiryMillis(250*time.Millisecond))
	assert.Equal(t, int64(900), expiryMillis(900*time.Millisecond))
	assert.Equal(t, int64(6*60*60*1000), expiryMillis(6*time.Hour))
}

func TestWaitRetryStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.False(t, waitRetry(ctx, time.Minute))
	assert.Less(t, time.Since(start), time.Second)

	assert.True(t, waitRetry(context.Background(), time.Millisecond))
}
