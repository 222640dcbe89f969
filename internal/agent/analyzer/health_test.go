package analyzer

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestHeapGuard(t *testing.T) {
	unlimited := NewHeapGuard(0)
	assert.True(t, unlimited.Healthy())
	assert.True(t, unlimited.Refresh())
	assert.NotZero(t, unlimited.HeapBytes())

	tiny := NewHeapGuard(1)
	assert.True(t, tiny.Healthy(), "healthy until first sample")
	assert.False(t, tiny.Refresh())
	assert.False(t, tiny.Healthy())
}

func TestHeapGuardRunStopsWithContext(t *testing.T) {
	g := NewHeapGuard(1)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		g.Run(ctx, time.Millisecond)
		close(done)
	}()
	assert.Eventually(t, func() bool { return !g.Healthy() }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
