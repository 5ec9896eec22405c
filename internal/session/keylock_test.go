package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyedLock_SerializesSameKey(t *testing.T) {
	locks := newKeyedLock()
	ctx := context.Background()

	var mu sync.Mutex
	inCritical := 0
	maxInCritical := 0

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := locks.Acquire(ctx, "k")
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			inCritical++
			if inCritical > maxInCritical {
				maxInCritical = inCritical
			}
			mu.Unlock()

			time.Sleep(time.Millisecond)

			mu.Lock()
			inCritical--
			mu.Unlock()
			release()
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, maxInCritical)
	assert.Zero(t, locks.size())
}

func TestKeyedLock_IndependentKeysDoNotBlock(t *testing.T) {
	locks := newKeyedLock()
	ctx := context.Background()

	releaseA, err := locks.Acquire(ctx, "a")
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		releaseB, err := locks.Acquire(ctx, "b")
		if err == nil {
			releaseB()
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("independent key blocked behind held lock")
	}
	releaseA()
	assert.Zero(t, locks.size())
}

func TestKeyedLock_AcquireHonorsContext(t *testing.T) {
	locks := newKeyedLock()

	release, err := locks.Acquire(context.Background(), "k")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = locks.Acquire(ctx, "k")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	release()
	assert.Zero(t, locks.size())
}

func TestKeyedLock_ReleaseIsIdempotent(t *testing.T) {
	locks := newKeyedLock()

	release, err := locks.Acquire(context.Background(), "k")
	require.NoError(t, err)
	release()
	release()

	again, err := locks.Acquire(context.Background(), "k")
	require.NoError(t, err)
	again()
	assert.Zero(t, locks.size())
}
