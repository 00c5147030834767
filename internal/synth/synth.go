package synth

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	"videoinsight/internal/behavior"
	"videoinsight/internal/event"
	"videoinsight/internal/store"
	"videoinsight/internal/transport"
)

// Config controls the simulated load shape.
type Config struct {
	VideoCount int
	UserCount  int
	// MaxConcurrentSessions bounds each batch of newly started sessions
	// (the original load shape is 1..8 per batch).
	MaxConcurrentSessions int
	// TimeCompression divides every wall-clock wait: 1 is real time, 60
	// plays a minute of video per second.
	TimeCompression float64
	Seed            int64
}

// Synthesizer drives many independent simulated viewing sessions and
// publishes their SEGMENT_START/SEGMENT_END delta events. It is
// write-only: it never reads aggregator state.
type Synthesizer struct {
	cfg       Config
	pub       transport.Publisher
	videos    []store.Video
	durations map[string]int
	users     []string
}

// New builds a synthesizer together with its simulated video catalog and
// user population.
func New(cfg Config, pub transport.Publisher) *Synthesizer {
	if cfg.VideoCount < 1 {
		cfg.VideoCount = 10
	}
	if cfg.UserCount < 1 {
		cfg.UserCount = 100
	}
	if cfg.MaxConcurrentSessions < 1 {
		cfg.MaxConcurrentSessions = 8
	}
	if cfg.TimeCompression < 1 {
		cfg.TimeCompression = 1
	}
	r := rand.New(rand.NewSource(cfg.Seed))

	s := &Synthesizer{cfg: cfg, pub: pub, durations: make(map[string]int)}
	for i := 0; i < cfg.VideoCount; i++ {
		v := store.Video{
			ID:          uuid.NewString(),
			Title:       fmt.Sprintf("Video %02d", i+1),
			DurationSec: 30 + r.Intn(1771),
			Popularity:  0.1 + 0.9*r.Float64(),
		}
		s.videos = append(s.videos, v)
		s.durations[v.ID] = v.DurationSec
	}
	for i := 0; i < cfg.UserCount; i++ {
		s.users = append(s.users, uuid.NewString())
	}
	return s
}

// Videos returns the simulated catalog for seeding the store.
func (s *Synthesizer) Videos() []store.Video { return s.videos }

// DurationOf resolves a catalog video's duration; the aggregator uses it
// for completion accounting.
func (s *Synthesizer) DurationOf(videoID string) (int, bool) {
	d, ok := s.durations[videoID]
	return d, ok
}

// Run starts batches of concurrent sessions until ctx is cancelled, then
// waits for every in-flight session to close cleanly. Each session worker
// owns its own rand source and session state; workers share nothing
// mutable.
func (s *Synthesizer) Run(ctx context.Context) {
	r := rand.New(rand.NewSource(s.cfg.Seed + 1))
	var wg sync.WaitGroup

	log.Printf("synth: starting simulation, %d videos, %d users, compression %.0fx",
		len(s.videos), len(s.users), s.cfg.TimeCompression)

	for ctx.Err() == nil {
		batch := 1 + r.Intn(s.cfg.MaxConcurrentSessions)
		for i := 0; i < batch; i++ {
			wg.Add(1)
			seed := r.Int63()
			go func() {
				defer wg.Done()
				s.runSession(ctx, rand.New(rand.NewSource(seed)))
			}()
			if !s.sleep(ctx, s.scaledDur(time.Duration(500+r.Intn(2500))*time.Millisecond)) {
				break
			}
		}
		// Pause between batches: new viewers arriving.
		if !s.sleep(ctx, s.scaledDur(time.Duration(5+r.Intn(10))*time.Second)) {
			break
		}
	}

	wg.Wait()
	log.Printf("synth: simulation stopped")
}

// runSession simulates one viewer: weighted video choice, archetype
// sampling, then one emitted session per presence interval. The skipper
// archetype yields several short sessions this way; every other archetype
// yields one.
func (s *Synthesizer) runSession(ctx context.Context, r *rand.Rand) {
	video := s.pickVideo(r)
	userID := s.users[r.Intn(len(s.users))]
	archetype := behavior.Pick(r)
	intervals := behavior.Sample(r, video.DurationSec, archetype)

	observeSessionStarted(archetype.String())
	cursor := 0
	for _, iv := range intervals {
		if !s.sleep(ctx, s.scaled(iv.StartSec-cursor)) {
			return
		}
		if !s.emitInterval(ctx, r, video, userID, archetype, iv) {
			return
		}
		cursor = iv.EndSec
	}
}

// emitInterval publishes the START/END pair for one presence interval
// under a fresh session_id. Cancellation mid-watch still emits the
// closing END (at the playback second actually reached), so no orphan
// START ever leaves the synthesizer. Returns false when ctx is done.
func (s *Synthesizer) emitInterval(ctx context.Context, r *rand.Rand, video store.Video, userID string, archetype behavior.Archetype, iv behavior.Interval) bool {
	sessionID := uuid.NewString()
	attrs := datatypes.JSONMap{"archetype": archetype.String()}

	start := event.New(video.ID, userID, sessionID, event.SegmentStart, iv.StartSec, time.Now())
	start.Attributes = attrs
	if !s.publish(ctx, start) {
		return false
	}
	observeLive(1)
	defer observeLive(-1)

	watchBegan := time.Now()
	endSec := iv.EndSec
	if !s.sleep(ctx, s.scaled(iv.EndSec-iv.StartSec)) {
		// Cancelled mid-watch: the viewer leaves at whatever playback
		// second the scaled clock reached, clamped inside the interval.
		elapsed := int(time.Since(watchBegan).Seconds() * s.cfg.TimeCompression)
		endSec = iv.StartSec + elapsed
		if endSec <= iv.StartSec {
			endSec = iv.StartSec + 1
		}
		if endSec > iv.EndSec {
			endSec = iv.EndSec
		}
	}

	ts := time.Now()
	if !ts.After(start.EventTimestamp) {
		ts = start.EventTimestamp.Add(time.Millisecond)
	}
	end := event.New(video.ID, userID, sessionID, event.SegmentEnd, endSec, ts)
	end.Attributes = attrs

	// The closing END is published even when ctx is already cancelled,
	// on a short grace context, so the session never stays half-emitted.
	graceCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.publish(graceCtx, end)
	return ctx.Err() == nil
}

// publish delivers one event with bounded retry and backoff; transport
// hiccups are logged, never fatal.
func (s *Synthesizer) publish(ctx context.Context, ev event.ViewerEvent) bool {
	backoff := 100 * time.Millisecond
	for attempt := 0; attempt < 5; attempt++ {
		err := s.pub.Publish(ctx, ev)
		if err == nil {
			observePublished(string(ev.EventType))
			return true
		}
		if ctx.Err() != nil {
			return false
		}
		log.Printf("synth: publish %s failed (attempt %d): %v", ev.EventType, attempt+1, err)
		if !s.sleep(ctx, backoff) {
			return false
		}
		backoff *= 2
	}
	return false
}

func (s *Synthesizer) pickVideo(r *rand.Rand) store.Video {
	total := 0.0
	for _, v := range s.videos {
		total += v.Popularity
	}
	x := r.Float64() * total
	for _, v := range s.videos {
		x -= v.Popularity
		if x <= 0 {
			return v
		}
	}
	return s.videos[len(s.videos)-1]
}

// scaled converts playback seconds to compressed wall-clock time.
func (s *Synthesizer) scaled(playbackSec int) time.Duration {
	if playbackSec <= 0 {
		return 0
	}
	return time.Duration(float64(playbackSec) / s.cfg.TimeCompression * float64(time.Second))
}

// scaledDur compresses a wall-clock pause the same way playback waits
// are compressed.
func (s *Synthesizer) scaledDur(d time.Duration) time.Duration {
	return time.Duration(float64(d) / s.cfg.TimeCompression)
}

// sleep waits for d or until ctx is done; reports whether the full wait
// completed.
func (s *Synthesizer) sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
