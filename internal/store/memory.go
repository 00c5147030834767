package store

import (
	"context"
	"sort"
	"sync"

	"videoinsight/internal/event"
)

type deltaKey struct {
	videoID string
	sec     int
	date    string
}

// Memory is an in-process Store used by tests and by brokerless demo runs
// (no APP_DATABASE_URL). It mirrors the semantics of the Postgres store.
type Memory struct {
	mu         sync.RWMutex
	videos     map[string]Video
	events     []event.ViewerEvent
	deltas     map[deltaKey]int64
	engagement map[string]EngagementStat
}

func NewMemory() *Memory {
	return &Memory{
		videos:     make(map[string]Video),
		deltas:     make(map[deltaKey]int64),
		engagement: make(map[string]EngagementStat),
	}
}

func (m *Memory) UpsertVideos(_ context.Context, videos []Video) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, v := range videos {
		m.videos[v.ID] = v
	}
	return nil
}

func (m *Memory) Videos(_ context.Context) ([]Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Video, 0, len(m.videos))
	for _, v := range m.videos {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) VideoByID(_ context.Context, id string) (Video, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.videos[id]
	if !ok {
		return Video{}, ErrNotFound
	}
	return v, nil
}

func (m *Memory) AppendEvents(_ context.Context, evs []event.ViewerEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, evs...)
	return nil
}

// EventLog returns a copy of the raw log, oldest first. Test helper; the
// Postgres store keeps the log in viewer_event_records instead.
func (m *Memory) EventLog() []event.ViewerEvent {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]event.ViewerEvent, len(m.events))
	copy(out, m.events)
	return out
}

func (m *Memory) MergeRetentionDeltas(_ context.Context, rows []RetentionDelta) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		k := deltaKey{videoID: r.VideoID, sec: r.VideoTimeSec, date: r.EventDate}
		m.deltas[k] += r.Delta
	}
	return nil
}

func (m *Memory) RetentionDeltas(_ context.Context, videoID string) ([]RetentionDelta, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []RetentionDelta
	for k, d := range m.deltas {
		if k.videoID != videoID {
			continue
		}
		out = append(out, RetentionDelta{VideoID: k.videoID, VideoTimeSec: k.sec, EventDate: k.date, Delta: d})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].VideoTimeSec != out[j].VideoTimeSec {
			return out[i].VideoTimeSec < out[j].VideoTimeSec
		}
		return out[i].EventDate < out[j].EventDate
	})
	return out, nil
}

func (m *Memory) UpsertEngagement(_ context.Context, rows []EngagementStat) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range rows {
		m.engagement[r.VideoID] = r
	}
	return nil
}

func (m *Memory) EngagementByVideo(_ context.Context, videoID string) (EngagementStat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.engagement[videoID]
	if !ok {
		return EngagementStat{}, ErrNotFound
	}
	return s, nil
}
