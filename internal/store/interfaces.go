package store

import (
	"context"
	"errors"

	"videoinsight/internal/event"
)

var ErrNotFound = errors.New("store: not found")

// Video is a simulated catalog entry. Duration drives interval sampling
// and completion-rate computation; popularity weights video selection.
type Video struct {
	ID          string  `json:"video_id"`
	Title       string  `json:"title"`
	DurationSec int     `json:"duration_sec"`
	Popularity  float64 `json:"popularity"`
}

// RetentionDelta is one mergeable partial sum: the algebraic sum of
// viewer deltas folded so far at (video, playback second, event date).
// It is never an absolute viewer count; merging any two rows for the
// same key is plain addition.
type RetentionDelta struct {
	VideoID      string
	VideoTimeSec int
	EventDate    string // YYYY-MM-DD, UTC
	Delta        int64
}

// EngagementStat is the per-video engagement accumulator snapshot kept
// alongside the retention partials.
type EngagementStat struct {
	VideoID           string
	UniqueViewers     int64
	Sessions          int64
	CompletedSessions int64
	WatchedSecTotal   int64
	EventCount        int64
}

// Store is the durable state behind the pipeline: the raw event log
// (source of truth for replay/audit) plus the aggregator-owned mergeable
// sums. The curve reconstructor only reads; the aggregator's flush worker
// is the only writer of retention and engagement rows.
type Store interface {
	UpsertVideos(ctx context.Context, videos []Video) error
	Videos(ctx context.Context) ([]Video, error)
	VideoByID(ctx context.Context, id string) (Video, error)

	AppendEvents(ctx context.Context, evs []event.ViewerEvent) error

	// MergeRetentionDeltas adds each row's delta into the stored sum for
	// its key, creating the row lazily on first touch.
	MergeRetentionDeltas(ctx context.Context, rows []RetentionDelta) error
	RetentionDeltas(ctx context.Context, videoID string) ([]RetentionDelta, error)

	UpsertEngagement(ctx context.Context, rows []EngagementStat) error
	EngagementByVideo(ctx context.Context, videoID string) (EngagementStat, error)
}
