package transport

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoinsight/internal/event"
)

func TestPerKeyOrderingPreserved(t *testing.T) {
	bus := NewBus(4, 64)

	var mu sync.Mutex
	got := make(map[string][]int)
	bus.Subscribe(func(ev event.ViewerEvent) {
		mu.Lock()
		got[ev.VideoID] = append(got[ev.VideoID], ev.VideoTimeSec)
		mu.Unlock()
	})

	const perKey = 200
	keys := []string{"video-a", "video-b", "video-c", "video-d", "video-e"}
	var wg sync.WaitGroup
	for _, key := range keys {
		wg.Add(1)
		go func(key string) {
			defer wg.Done()
			for i := 0; i < perKey; i++ {
				ev := event.New(key, "u", "s", event.SegmentStart, i, time.Now())
				assert.NoError(t, bus.Publish(context.Background(), ev))
			}
		}(key)
	}
	wg.Wait()
	bus.Close()

	for _, key := range keys {
		require.Len(t, got[key], perKey, "key %s", key)
		for i, sec := range got[key] {
			require.Equal(t, i, sec, "key %s out of order at %d", key, i)
		}
	}
}

func TestPublishAfterCloseFails(t *testing.T) {
	bus := NewBus(2, 8)
	bus.Subscribe(func(event.ViewerEvent) {})
	bus.Close()

	err := bus.Publish(context.Background(), event.New("v", "u", "s", event.SegmentStart, 0, time.Now()))
	assert.ErrorIs(t, err, ErrClosed)
}

func TestPublishHonorsContextWhenFull(t *testing.T) {
	bus := NewBus(1, 1)
	// No subscriber: the single partition fills after one event.
	require.NoError(t, bus.Publish(context.Background(), event.New("v", "u", "s", event.SegmentStart, 0, time.Now())))

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	err := bus.Publish(ctx, event.New("v", "u", "s", event.SegmentStart, 1, time.Now()))
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestCloseWaitsForDrain(t *testing.T) {
	bus := NewBus(2, 128)
	var mu sync.Mutex
	count := 0
	bus.Subscribe(func(event.ViewerEvent) {
		mu.Lock()
		count++
		mu.Unlock()
	})

	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("video-%d", i%7)
		require.NoError(t, bus.Publish(context.Background(), event.New(key, "u", "s", event.SegmentEnd, i, time.Now())))
	}
	bus.Close()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 100, count, "Close must drain every buffered event")
}
