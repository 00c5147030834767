package curve

import (
	"log"
	"sync/atomic"

	"videoinsight/internal/store"
)

// Point is one sample of the reconstructed retention curve.
type Point struct {
	VideoTimeSec int     `json:"video_time_sec"`
	ViewerCount  int64   `json:"viewer_count"`
	RetentionPct float64 `json:"retention_pct"`
}

// Dropoff marks an adjacent-second pair whose relative viewer decrease
// exceeded the caller's threshold.
type Dropoff struct {
	VideoTimeSec    int     `json:"video_time_sec"`
	PreviousViewers int64   `json:"previous_viewers"`
	CurrentViewers  int64   `json:"current_viewers"`
	DropCount       int64   `json:"drop_off_count"`
	DropPct         float64 `json:"drop_off_percentage"`
}

// Engagement is the derived per-video summary.
type Engagement struct {
	UniqueViewers   int64   `json:"unique_viewers"`
	CompletionRate  float64 `json:"completion_rate"`
	AvgWatchTimeSec float64 `json:"avg_watch_time_sec"`
}

var negativeClamps atomic.Int64

// NegativeClamps reports how many curve samples had to be clamped up to
// zero. A non-zero value means an aggregation or generation bug upstream;
// the clamp keeps reads sane but the signal is never hidden.
func NegativeClamps() int64 { return negativeClamps.Load() }

// Reconstruct turns a video's stored partial sums into the absolute
// retention curve. Rows for the same second across different dates are
// merged first (the same addition the aggregator performs at write time),
// then a prefix sum over ascending seconds yields the viewer count at
// each second. Negative prefix sums are clamped to zero and counted.
//
// The call is a pure read: it recomputes from current aggregate state
// every time and holds no cursor.
func Reconstruct(videoID string, rows []store.RetentionDelta) []Point {
	if len(rows) == 0 {
		return nil
	}

	maxSec := 0
	bySec := make(map[int]int64)
	for _, r := range rows {
		bySec[r.VideoTimeSec] += r.Delta
		if r.VideoTimeSec > maxSec {
			maxSec = r.VideoTimeSec
		}
	}

	points := make([]Point, 0, maxSec+1)
	var running, peak int64
	for sec := 0; sec <= maxSec; sec++ {
		running += bySec[sec]
		count := running
		if count < 0 {
			negativeClamps.Add(1)
			observeClamp()
			log.Printf("curve: negative viewer count %d at video=%s sec=%d, clamping to 0", count, videoID, sec)
			count = 0
		}
		if count > peak {
			peak = count
		}
		points = append(points, Point{VideoTimeSec: sec, ViewerCount: count})
	}

	if peak > 0 {
		for i := range points {
			points[i].RetentionPct = float64(points[i].ViewerCount) * 100.0 / float64(peak)
		}
	}
	return points
}

// Dropoffs scans adjacent seconds of a reconstructed curve and returns
// every point whose relative decrease exceeds thresholdPct percent.
// Seconds where nobody was watching are skipped; a flat curve yields
// nothing.
func Dropoffs(points []Point, thresholdPct float64) []Dropoff {
	var out []Dropoff
	for i := 1; i < len(points); i++ {
		prev := points[i-1].ViewerCount
		cur := points[i].ViewerCount
		if prev <= 0 || cur >= prev {
			continue
		}
		dropPct := float64(prev-cur) * 100.0 / float64(prev)
		if dropPct <= thresholdPct {
			continue
		}
		out = append(out, Dropoff{
			VideoTimeSec:    points[i].VideoTimeSec,
			PreviousViewers: prev,
			CurrentViewers:  cur,
			DropCount:       prev - cur,
			DropPct:         dropPct,
		})
	}
	return out
}

// Summarize derives the engagement numbers from the aggregator's
// per-video accumulator. Completion rate is completed sessions over all
// sessions; average watch time is total watched seconds per session.
func Summarize(stat store.EngagementStat) Engagement {
	e := Engagement{UniqueViewers: stat.UniqueViewers}
	if stat.Sessions > 0 {
		e.CompletionRate = float64(stat.CompletedSessions) / float64(stat.Sessions)
		e.AvgWatchTimeSec = float64(stat.WatchedSecTotal) / float64(stat.Sessions)
	}
	return e
}
