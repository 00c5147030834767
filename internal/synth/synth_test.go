package synth

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"videoinsight/internal/event"
)

// capturePublisher records everything published, in order.
type capturePublisher struct {
	mu     sync.Mutex
	events []event.ViewerEvent
}

func (c *capturePublisher) Publish(_ context.Context, ev event.ViewerEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capturePublisher) snapshot() []event.ViewerEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]event.ViewerEvent, len(c.events))
	copy(out, c.events)
	return out
}

func runFor(t *testing.T, cfg Config, d time.Duration) (*Synthesizer, []event.ViewerEvent) {
	t.Helper()
	pub := &capturePublisher{}
	s := New(cfg, pub)

	ctx, cancel := context.WithTimeout(context.Background(), d)
	defer cancel()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.Run(ctx)
	}()
	select {
	case <-done:
	case <-time.After(d + 5*time.Second):
		t.Fatal("synthesizer did not stop after cancellation")
	}
	return s, pub.snapshot()
}

func TestCatalogDefaults(t *testing.T) {
	s := New(Config{Seed: 1}, &capturePublisher{})
	require.Len(t, s.Videos(), 10)
	for _, v := range s.Videos() {
		assert.NotEmpty(t, v.ID)
		assert.GreaterOrEqual(t, v.DurationSec, 30)
		assert.LessOrEqual(t, v.DurationSec, 1800)
		assert.GreaterOrEqual(t, v.Popularity, 0.1)
		assert.LessOrEqual(t, v.Popularity, 1.0)

		dur, ok := s.DurationOf(v.ID)
		require.True(t, ok)
		assert.Equal(t, v.DurationSec, dur)
	}
	_, ok := s.DurationOf("not-a-video")
	assert.False(t, ok)
}

// Every START must be paired with exactly one later END of the same
// session, even though the run is stopped by cancellation mid-flight.
func TestSessionPairingSurvivesCancellation(t *testing.T) {
	_, events := runFor(t, Config{
		VideoCount:            3,
		UserCount:             10,
		MaxConcurrentSessions: 6,
		TimeCompression:       2000,
		Seed:                  42,
	}, 2*time.Second)
	require.NotEmpty(t, events, "compressed run should emit events")

	type sess struct {
		start, end *event.ViewerEvent
	}
	sessions := make(map[string]*sess)
	for i := range events {
		ev := events[i]
		st, ok := sessions[ev.SessionID]
		if !ok {
			st = &sess{}
			sessions[ev.SessionID] = st
		}
		switch ev.EventType {
		case event.SegmentStart:
			require.Nil(t, st.start, "session %s has a doubled START", ev.SessionID)
			require.Nil(t, st.end, "session %s saw END before START", ev.SessionID)
			st.start = &ev
		case event.SegmentEnd:
			require.Nil(t, st.end, "session %s has a doubled END", ev.SessionID)
			st.end = &ev
		}
	}

	for id, st := range sessions {
		require.NotNil(t, st.start, "session %s is an orphan END", id)
		require.NotNil(t, st.end, "session %s is an orphan START", id)
		assert.True(t, st.end.EventTimestamp.After(st.start.EventTimestamp),
			"session %s END timestamp must be strictly later", id)
		assert.Greater(t, st.end.VideoTimeSec, st.start.VideoTimeSec,
			"session %s must close at a later playback second", id)
		assert.Equal(t, st.start.VideoID, st.end.VideoID)
		assert.Equal(t, st.start.UserID, st.end.UserID)
	}
}

func TestEventsAreWellFormed(t *testing.T) {
	s, events := runFor(t, Config{
		VideoCount:            2,
		UserCount:             5,
		MaxConcurrentSessions: 4,
		TimeCompression:       2000,
		Seed:                  7,
	}, 1500*time.Millisecond)
	require.NotEmpty(t, events)

	for _, ev := range events {
		require.NoError(t, ev.Validate())
		dur, ok := s.DurationOf(ev.VideoID)
		require.True(t, ok, "events must reference catalog videos")
		assert.LessOrEqual(t, ev.VideoTimeSec, dur)
		assert.Contains(t, ev.Attributes, "archetype")
	}
}

func TestZeroConfigGetsDefaults(t *testing.T) {
	s := New(Config{}, &capturePublisher{})
	assert.Len(t, s.Videos(), 10)
	assert.Equal(t, 8, s.cfg.MaxConcurrentSessions)
	assert.Equal(t, float64(1), s.cfg.TimeCompression)
	assert.Equal(t, 100, s.cfg.UserCount)
}
