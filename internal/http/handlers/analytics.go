package handlers

import (
	"errors"
	"strconv"

	"github.com/valyala/fasthttp"

	"videoinsight/internal/aggregate"
	"videoinsight/internal/config"
	"videoinsight/internal/curve"
	"videoinsight/internal/store"
)

// Videos lists the simulated catalog with per-video viewer and event
// totals.
func Videos(st store.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		videos, err := st.Videos(ctx)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query videos")
			return
		}

		rows := make([]map[string]any, 0, len(videos))
		for _, v := range videos {
			row := map[string]any{
				"video_id":     v.ID,
				"title":        v.Title,
				"duration_sec": v.DurationSec,
			}
			if stat, err := st.EngagementByVideo(ctx, v.ID); err == nil {
				row["unique_viewers"] = stat.UniqueViewers
				row["total_events"] = stat.EventCount
			}
			rows = append(rows, row)
		}
		jsonResponse(ctx, map[string]any{"videos": rows})
	}
}

// RetentionCurve reconstructs the per-second viewer curve for one video
// from its stored partial sums. A pure read; nothing is mutated.
func RetentionCurve(st store.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		videoID, ok := videoIDParam(ctx)
		if !ok {
			return
		}
		if _, err := st.VideoByID(ctx, videoID); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				errResponse(ctx, fasthttp.StatusNotFound, "unknown video")
				return
			}
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query video")
			return
		}

		rows, err := st.RetentionDeltas(ctx, videoID)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query retention points")
			return
		}
		points := curve.Reconstruct(videoID, rows)

		resp := map[string]any{
			"video_id":    videoID,
			"data_points": points,
		}
		if stat, err := st.EngagementByVideo(ctx, videoID); err == nil {
			resp["total_unique_viewers"] = stat.UniqueViewers
		}
		jsonResponse(ctx, resp)
	}
}

// Dropoffs flags adjacent-second viewer decreases above the threshold
// (query param "threshold", percent; falls back to the configured
// default).
func Dropoffs(st store.Store, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		videoID, ok := videoIDParam(ctx)
		if !ok {
			return
		}
		threshold := cfg.DropoffThresholdPct
		if s := string(ctx.QueryArgs().Peek("threshold")); s != "" {
			f, err := strconv.ParseFloat(s, 64)
			if err != nil || f <= 0 {
				errResponse(ctx, fasthttp.StatusBadRequest, "invalid threshold")
				return
			}
			threshold = f
		}

		rows, err := st.RetentionDeltas(ctx, videoID)
		if err != nil {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query retention points")
			return
		}
		drops := curve.Dropoffs(curve.Reconstruct(videoID, rows), threshold)
		jsonResponse(ctx, map[string]any{
			"video_id":      videoID,
			"threshold_pct": threshold,
			"drop_offs":     drops,
		})
	}
}

// Engagement returns the derived per-video summary: unique viewers,
// completion rate and average watch time.
func Engagement(st store.Store) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		videoID, ok := videoIDParam(ctx)
		if !ok {
			return
		}
		stat, err := st.EngagementByVideo(ctx, videoID)
		if err != nil && !errors.Is(err, store.ErrNotFound) {
			errResponse(ctx, fasthttp.StatusInternalServerError, "failed to query engagement")
			return
		}
		summary := curve.Summarize(stat)
		jsonResponse(ctx, map[string]any{
			"video_id":           videoID,
			"unique_viewers":     summary.UniqueViewers,
			"completion_rate":    summary.CompletionRate,
			"avg_watch_time_sec": summary.AvgWatchTimeSec,
		})
	}
}

// Quality surfaces the data-quality counters: nothing in the pipeline
// hard-fails, it degrades into these numbers instead.
func Quality(agg *aggregate.Aggregator) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		q := agg.Quality()
		jsonResponse(ctx, map[string]any{
			"duplicate_events":    q.DuplicateEvents,
			"ordering_violations": q.OrderingViolations,
			"malformed_dropped":   q.MalformedDropped,
			"negative_clamps":     curve.NegativeClamps(),
		})
	}
}
