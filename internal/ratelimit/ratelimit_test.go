package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	tests := []struct {
		name     string
		rps      float64
		burst    int
		calls    int
		wantPass int
	}{
		{"burst allows initial requests", 1, 3, 3, 3},
		{"exceeding burst blocks", 1, 2, 5, 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			krl := New(tt.rps, tt.burst)
			passed := 0
			for range tt.calls {
				if krl.Allow("audio.api.speechify.dev") {
					passed++
				}
			}
			assert.Equal(t, tt.wantPass, passed)
		})
	}
}

func TestKeyedRateLimiter_KeysAreIndependent(t *testing.T) {
	krl := Every(time.Hour)

	assert.True(t, krl.Allow("a"))
	assert.False(t, krl.Allow("a"))
	assert.True(t, krl.Allow("b"))
	assert.Equal(t, 2, krl.Len())
}

func TestEvery_ZeroNeverBlocks(t *testing.T) {
	krl := Every(0)
	for range 100 {
		require.True(t, krl.Allow("host"))
	}
}

func TestKeyedRateLimiter_WaitHonorsContext(t *testing.T) {
	krl := Every(time.Hour)
	require.NoError(t, krl.Wait(context.Background(), "host"))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := krl.Wait(ctx, "host")
	assert.Error(t, err)
}

func TestKeyedRateLimiter_PrunesIdleKeys(t *testing.T) {
	krl := Every(time.Second)
	krl.Allow("stale")
	krl.limiters["stale"].lastSeen = time.Now().Add(-2 * idleTTL)

	krl.Allow("fresh")

	assert.Equal(t, 1, krl.Len())
}
