package db

import (
	"time"

	"gorm.io/datatypes"
)

// ViewerEventRecord is the raw event log row, the source of truth for
// replay and audit. Aggregate state is derivable from it; nothing reads
// it on the query path.
type ViewerEventRecord struct {
	ID uint `gorm:"primaryKey"`

	CreatedAt time.Time

	// ExpiresAt is when this row becomes eligible for deletion by the
	// retention worker. Aggregate sums survive raw-log expiry.
	ExpiresAt *time.Time `gorm:"index"`

	EventID   string `gorm:"index"`
	VideoID   string `gorm:"index"`
	UserID    string `gorm:"index"`
	SessionID string `gorm:"index"`

	EventTimestamp time.Time
	EventType      string
	VideoTimeSec   int
	DeltaViewers   int

	// Attributes carries free-form emission metadata (archetype, ...)
	// without schema changes.
	Attributes datatypes.JSONMap `gorm:"type:json"`
}

// RetentionPointRecord stores one mergeable partial sum per
// (video, playback second, event date). CumulativeDelta is only ever
// added to; it is never an absolute viewer count.
type RetentionPointRecord struct {
	ID uint `gorm:"primaryKey"`

	VideoID      string `gorm:"uniqueIndex:idx_retention_point_unique,priority:1;not null"`
	VideoTimeSec int    `gorm:"uniqueIndex:idx_retention_point_unique,priority:2;not null"`
	EventDate    string `gorm:"uniqueIndex:idx_retention_point_unique,priority:3;not null"` // YYYY-MM-DD (UTC)

	CumulativeDelta int64 `gorm:"not null"`
}

// VideoRecord is a simulated catalog entry.
type VideoRecord struct {
	ID uint `gorm:"primaryKey"`

	VideoID     string `gorm:"uniqueIndex;not null"`
	Title       string
	DurationSec int
	Popularity  float64
}

// EngagementRecord is the flushed per-video engagement snapshot.
type EngagementRecord struct {
	ID uint `gorm:"primaryKey"`

	VideoID string `gorm:"uniqueIndex;not null"`

	UniqueViewers     int64
	Sessions          int64
	CompletedSessions int64
	WatchedSecTotal   int64
	EventCount        int64
}
