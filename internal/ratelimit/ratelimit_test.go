package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllow_WithinBurst(t *testing.T) {
	krl := New(1, 3)

	assert.True(t, krl.Allow("voice-a"))
	assert.True(t, krl.Allow("voice-a"))
	assert.True(t, krl.Allow("voice-a"))
	assert.False(t, krl.Allow("voice-a"), "burst exhausted")
}

func TestAllow_KeysAreIndependent(t *testing.T) {
	krl := New(1, 1)

	assert.True(t, krl.Allow("voice-a"))
	assert.False(t, krl.Allow("voice-a"))
	assert.True(t, krl.Allow("voice-b"), "separate key has its own bucket")
}

func TestWait_RespectsContextCancellation(t *testing.T) {
	krl := New(0.001, 1)
	require.True(t, krl.Allow("voice-a"))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	err := krl.Wait(ctx, "voice-a")
	assert.Error(t, err)
}
