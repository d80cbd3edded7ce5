package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestKeyedRateLimiter_Allow(t *testing.T) {
	krl := New(1, 2)

	assert.True(t, krl.Allow("us"))
	assert.True(t, krl.Allow("us"))
	assert.False(t, krl.Allow("us"), "burst exhausted")

	assert.True(t, krl.Allow("uk"), "keys are independent")
}

func TestKeyedRateLimiter_Wait(t *testing.T) {
	krl := New(1, 1)
	assert.True(t, krl.Allow("us"))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := krl.Wait(ctx, "us")
	assert.Error(t, err, "next token is a second away")
}
