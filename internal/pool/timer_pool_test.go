package pool

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTimerPool_Reuse(t *testing.T) {
	timer := GetTimer(time.Hour)
	require.NotNil(t, timer)
	PutTimer(timer)

	timer = GetTimer(10 * time.Millisecond)
	select {
	case <-timer.C:
	case <-time.After(time.Second):
		t.Fatal("pooled timer did not fire")
	}
	PutTimer(timer)
}

func TestSleep(t *testing.T) {
	begin := time.Now()
	require.NoError(t, Sleep(context.Background(), 20*time.Millisecond))
	assert.GreaterOrEqual(t, time.Since(begin), 20*time.Millisecond)

	assert.NoError(t, Sleep(context.Background(), 0))
}

func TestSleep_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Sleep(ctx, time.Hour)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSleep_Concurrent(t *testing.T) {
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = Sleep(context.Background(), time.Millisecond)
		}()
	}
	wg.Wait()
}
