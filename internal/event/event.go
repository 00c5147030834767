package event

import (
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Type enumerates the viewer event kinds the aggregator folds. Anything
// else on the wire (PAUSE, SEEK, ...) is ignored downstream, not an error.
type Type string

const (
	SegmentStart Type = "SEGMENT_START"
	SegmentEnd   Type = "SEGMENT_END"
)

// ViewerEvent is the only persisted fact in the system: a signed unit
// change in viewer presence at one playback second of one video.
type ViewerEvent struct {
	EventID        string            `json:"event_id"`
	VideoID        string            `json:"video_id"`
	UserID         string            `json:"user_id"`
	SessionID      string            `json:"session_id"`
	EventTimestamp time.Time         `json:"event_timestamp"`
	EventType      Type              `json:"event_type"`
	VideoTimeSec   int               `json:"video_time_sec"`
	DeltaViewers   int               `json:"delta_viewers"`
	Attributes     datatypes.JSONMap `json:"attributes,omitempty"`
}

// New builds a ViewerEvent with a fresh event_id and the delta implied by
// the event type (+1 for SEGMENT_START, -1 for SEGMENT_END).
func New(videoID, userID, sessionID string, typ Type, videoTimeSec int, ts time.Time) ViewerEvent {
	delta := 0
	switch typ {
	case SegmentStart:
		delta = 1
	case SegmentEnd:
		delta = -1
	}
	return ViewerEvent{
		EventID:        uuid.NewString(),
		VideoID:        videoID,
		UserID:         userID,
		SessionID:      sessionID,
		EventTimestamp: ts,
		EventType:      typ,
		VideoTimeSec:   videoTimeSec,
		DeltaViewers:   delta,
	}
}

var (
	ErrMissingField = errors.New("viewer event missing required field")
	ErrBadDelta     = errors.New("viewer event delta outside {+1,-1}")
)

// Validate checks the structural invariants the aggregator relies on. A
// delta whose magnitude is not one would corrupt the running sums, so it
// is rejected here rather than folded.
func (e ViewerEvent) Validate() error {
	if e.EventID == "" || e.VideoID == "" || e.SessionID == "" {
		return ErrMissingField
	}
	if e.VideoTimeSec < 0 || e.EventTimestamp.IsZero() {
		return ErrMissingField
	}
	switch e.EventType {
	case SegmentStart:
		if e.DeltaViewers != 1 {
			return ErrBadDelta
		}
	case SegmentEnd:
		if e.DeltaViewers != -1 {
			return ErrBadDelta
		}
	}
	return nil
}

// Countable reports whether the event participates in retention
// aggregation at all.
func (e ViewerEvent) Countable() bool {
	return e.EventType == SegmentStart || e.EventType == SegmentEnd
}
