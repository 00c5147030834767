package aggregate

import (
	"hash/fnv"
	"log"
	"sync"
	"sync/atomic"

	"videoinsight/internal/event"
	"videoinsight/internal/store"
)

const (
	shardCount = 16
	// seenCap bounds the per-shard dedup set. Two generations are kept,
	// so an event_id is remembered for at least seenCap arrivals on its
	// shard before it can be forgotten.
	seenCap = 100_000
)

type deltaKey struct {
	videoID string
	sec     int
	date    string
}

type openSession struct {
	startSec int
}

type engStat struct {
	users             map[string]struct{}
	sessions          int64
	completedSessions int64
	watchedSec        int64
	events            int64
}

// shard owns every piece of mutable state for a subset of videos. Events
// for one video always land on the same shard, so session pairing and
// dedup need no cross-shard coordination.
type shard struct {
	mu       sync.Mutex
	deltas   map[deltaKey]int64
	seen     map[string]struct{}
	seenPrev map[string]struct{}
	open     map[string]openSession
	eng      map[string]*engStat
}

// Aggregator folds the raw delta stream into mergeable partial sums per
// (video, playback second, date). It never computes an absolute viewer
// count; that is the curve reconstructor's job at read time. Folding is
// plain integer addition, so partials drained from the shards can be
// merged with stored state in any order.
type Aggregator struct {
	shards     [shardCount]*shard
	durationOf func(videoID string) (int, bool)

	duplicates         atomic.Int64
	orderingViolations atomic.Int64
	malformedDropped   atomic.Int64
}

// New creates an aggregator. durationOf resolves a video's length for
// completion-rate accounting; it may report false for unknown videos.
func New(durationOf func(videoID string) (int, bool)) *Aggregator {
	if durationOf == nil {
		durationOf = func(string) (int, bool) { return 0, false }
	}
	a := &Aggregator{durationOf: durationOf}
	for i := range a.shards {
		a.shards[i] = &shard{
			deltas:   make(map[deltaKey]int64),
			seen:     make(map[string]struct{}),
			seenPrev: make(map[string]struct{}),
			open:     make(map[string]openSession),
			eng:      make(map[string]*engStat),
		}
	}
	return a
}

func (a *Aggregator) shardFor(videoID string) *shard {
	h := fnv.New32a()
	h.Write([]byte(videoID))
	return a.shards[int(h.Sum32())%shardCount]
}

// Ingest folds one event. Non-segment events are ignored; malformed and
// duplicate events are dropped and counted, never folded.
func (a *Aggregator) Ingest(ev event.ViewerEvent) {
	if !ev.Countable() {
		return
	}
	if err := ev.Validate(); err != nil {
		a.malformedDropped.Add(1)
		observeDropped("malformed")
		log.Printf("aggregate: dropping malformed event %s: %v", ev.EventID, err)
		return
	}

	s := a.shardFor(ev.VideoID)
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.isDuplicate(ev.EventID) {
		a.duplicates.Add(1)
		observeDropped("duplicate")
		return
	}
	s.remember(ev.EventID)

	// The delta is folded unconditionally: addition stays commutative and
	// associative only if every non-duplicate event contributes exactly
	// once, regardless of which partition or order it arrives in. Session
	// pairing below is bookkeeping for data quality and engagement, never
	// a gate on the sum; a broken producer shows up in the violation
	// counter (and, at worst, as a clamped negative at read time).
	k := deltaKey{
		videoID: ev.VideoID,
		sec:     ev.VideoTimeSec,
		date:    ev.EventTimestamp.UTC().Format("2006-01-02"),
	}
	s.deltas[k] += int64(ev.DeltaViewers)
	observeFolded()

	eg := s.eng[ev.VideoID]
	if eg == nil {
		eg = &engStat{users: make(map[string]struct{})}
		s.eng[ev.VideoID] = eg
	}
	eg.events++

	switch ev.EventType {
	case event.SegmentStart:
		if _, already := s.open[ev.SessionID]; already {
			a.orderingViolations.Add(1)
			observeOrdering()
			return
		}
		s.open[ev.SessionID] = openSession{startSec: ev.VideoTimeSec}
		if ev.UserID != "" {
			eg.users[ev.UserID] = struct{}{}
		}
		eg.sessions++
	case event.SegmentEnd:
		o, ok := s.open[ev.SessionID]
		if !ok {
			a.orderingViolations.Add(1)
			observeOrdering()
			return
		}
		delete(s.open, ev.SessionID)
		if watched := ev.VideoTimeSec - o.startSec; watched > 0 {
			eg.watchedSec += int64(watched)
		}
		if dur, known := a.durationOf(ev.VideoID); known && ev.VideoTimeSec >= dur {
			eg.completedSessions++
		}
	}
}

func (s *shard) isDuplicate(eventID string) bool {
	if _, ok := s.seen[eventID]; ok {
		return true
	}
	_, ok := s.seenPrev[eventID]
	return ok
}

func (s *shard) remember(eventID string) {
	if len(s.seen) >= seenCap {
		s.seenPrev = s.seen
		s.seen = make(map[string]struct{})
	}
	s.seen[eventID] = struct{}{}
}

// DrainDeltas atomically takes the accumulated partial sums, leaving the
// shards empty. The returned rows are mergeable: the caller adds them
// into stored state (or back into the aggregator via Merge on failure).
func (a *Aggregator) DrainDeltas() []store.RetentionDelta {
	var out []store.RetentionDelta
	for _, s := range a.shards {
		s.mu.Lock()
		drained := s.deltas
		s.deltas = make(map[deltaKey]int64)
		s.mu.Unlock()
		for k, d := range drained {
			if d == 0 {
				continue
			}
			out = append(out, store.RetentionDelta{
				VideoID:      k.videoID,
				VideoTimeSec: k.sec,
				EventDate:    k.date,
				Delta:        d,
			})
		}
	}
	return out
}

// Merge folds externally held partial sums back in. Addition is
// commutative and associative, so the order and grouping of Merge and
// Ingest calls never changes the drained totals.
func (a *Aggregator) Merge(rows []store.RetentionDelta) {
	for _, r := range rows {
		s := a.shardFor(r.VideoID)
		k := deltaKey{videoID: r.VideoID, sec: r.VideoTimeSec, date: r.EventDate}
		s.mu.Lock()
		s.deltas[k] += r.Delta
		s.mu.Unlock()
	}
}

// EngagementSnapshot returns the cumulative per-video engagement state.
func (a *Aggregator) EngagementSnapshot() []store.EngagementStat {
	var out []store.EngagementStat
	for _, s := range a.shards {
		s.mu.Lock()
		for videoID, eg := range s.eng {
			out = append(out, store.EngagementStat{
				VideoID:           videoID,
				UniqueViewers:     int64(len(eg.users)),
				Sessions:          eg.sessions,
				CompletedSessions: eg.completedSessions,
				WatchedSecTotal:   eg.watchedSec,
				EventCount:        eg.events,
			})
		}
		s.mu.Unlock()
	}
	return out
}

// Quality is the data-quality counter snapshot surfaced at /v1/quality.
type Quality struct {
	DuplicateEvents    int64 `json:"duplicate_events"`
	OrderingViolations int64 `json:"ordering_violations"`
	MalformedDropped   int64 `json:"malformed_dropped"`
}

func (a *Aggregator) Quality() Quality {
	return Quality{
		DuplicateEvents:    a.duplicates.Load(),
		OrderingViolations: a.orderingViolations.Load(),
		MalformedDropped:   a.malformedDropped.Load(),
	}
}
