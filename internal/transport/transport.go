package transport

import (
	"context"
	"errors"
	"hash/fnv"
	"sync"

	"videoinsight/internal/event"
)

// Publisher is the write contract the synthesizer depends on:
// fire-and-forget, at-least-once, ordered per key (video_id). Anything
// that honors those guarantees (an in-process bus, a broker client) can
// sit behind it.
type Publisher interface {
	Publish(ctx context.Context, ev event.ViewerEvent) error
}

// Handler consumes one delivered event. Delivery for a given key is
// serialized, so handlers need no per-key locking of their own.
type Handler func(ev event.ViewerEvent)

var ErrClosed = errors.New("transport: bus closed")

// Bus is the in-process transport: events are partitioned by video_id so
// per-key publish order is preserved, while different keys flow in
// parallel. It exists so the whole pipeline runs without a broker; the
// downstream aggregator only ever sees the Publisher/Handler contract.
type Bus struct {
	partitions []chan event.ViewerEvent

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
}

// NewBus creates a bus with the given partition count and per-partition
// buffer. Publish blocks when a partition buffer is full, which is the
// backpressure the synthesizer's retry loop expects.
func NewBus(partitions, buffer int) *Bus {
	if partitions < 1 {
		partitions = 1
	}
	b := &Bus{partitions: make([]chan event.ViewerEvent, partitions)}
	for i := range b.partitions {
		b.partitions[i] = make(chan event.ViewerEvent, buffer)
	}
	return b
}

func (b *Bus) partition(key string) chan event.ViewerEvent {
	h := fnv.New32a()
	h.Write([]byte(key))
	return b.partitions[int(h.Sum32())%len(b.partitions)]
}

// Publish enqueues the event on its key's partition. It returns ErrClosed
// after Close and the context error if the caller gives up waiting.
func (b *Bus) Publish(ctx context.Context, ev event.ViewerEvent) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	ch := b.partition(ev.VideoID)
	b.mu.Unlock()

	select {
	case ch <- ev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Subscribe starts one consumer goroutine per partition, each delivering
// events to h in partition order. It may be called once, before events
// flow.
func (b *Bus) Subscribe(h Handler) {
	for _, ch := range b.partitions {
		b.wg.Add(1)
		go func(ch chan event.ViewerEvent) {
			defer b.wg.Done()
			for ev := range ch {
				h(ev)
			}
		}(ch)
	}
}

// Close drains the partitions and waits for the consumers to finish.
// Callers must stop all publishers first; a Publish racing Close may
// panic on the closed partition channel.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	for _, ch := range b.partitions {
		close(ch)
	}
	b.mu.Unlock()
	b.wg.Wait()
}
