package handlers

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valyala/fasthttp"

	"videoinsight/internal/aggregate"
	"videoinsight/internal/config"
	"videoinsight/internal/event"
	"videoinsight/internal/store"
	"videoinsight/internal/transport"
)

func doGet(t *testing.T, h fasthttp.RequestHandler, uri string, params map[string]any) (int, map[string]any) {
	t.Helper()
	var req fasthttp.Request
	req.SetRequestURI(uri)
	var ctx fasthttp.RequestCtx
	ctx.Init(&req, nil, nil)
	for k, v := range params {
		ctx.SetUserValue(k, v)
	}
	h(&ctx)

	body := map[string]any{}
	if len(ctx.Response.Body()) > 0 && ctx.Response.StatusCode() == fasthttp.StatusOK {
		require.NoError(t, json.Unmarshal(ctx.Response.Body(), &body))
	}
	return ctx.Response.StatusCode(), body
}

// seedStore feeds the two-session scenario through a real aggregator so
// the handlers read the same state the pipeline produces.
func seedStore(t *testing.T) store.Store {
	t.Helper()
	mem := store.NewMemory()
	require.NoError(t, mem.UpsertVideos(context.Background(), []store.Video{
		{ID: "vid-1", Title: "Video 01", DurationSec: 100, Popularity: 0.9},
	}))

	agg := aggregate.New(func(string) (int, bool) { return 100, true })
	ts := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	for _, ev := range []event.ViewerEvent{
		event.New("vid-1", "alice", "sess-a", event.SegmentStart, 0, ts),
		event.New("vid-1", "bob", "sess-b", event.SegmentStart, 10, ts.Add(10*time.Second)),
		event.New("vid-1", "bob", "sess-b", event.SegmentEnd, 50, ts.Add(50*time.Second)),
		event.New("vid-1", "alice", "sess-a", event.SegmentEnd, 100, ts.Add(100*time.Second)),
	} {
		agg.Ingest(ev)
	}
	require.NoError(t, mem.MergeRetentionDeltas(context.Background(), agg.DrainDeltas()))
	require.NoError(t, mem.UpsertEngagement(context.Background(), agg.EngagementSnapshot()))
	return mem
}

func TestRetentionCurveHandler(t *testing.T) {
	st := seedStore(t)

	status, body := doGet(t, RetentionCurve(st), "/v1/videos/vid-1/retention-curve", map[string]any{"id": "vid-1"})
	require.Equal(t, fasthttp.StatusOK, status)
	assert.Equal(t, "vid-1", body["video_id"])
	assert.EqualValues(t, 2, body["total_unique_viewers"])

	points, ok := body["data_points"].([]any)
	require.True(t, ok)
	require.Len(t, points, 101)

	first := points[0].(map[string]any)
	assert.EqualValues(t, 1, first["viewer_count"])
	mid := points[20].(map[string]any)
	assert.EqualValues(t, 2, mid["viewer_count"])
	assert.EqualValues(t, 100, mid["retention_pct"])
	last := points[100].(map[string]any)
	assert.EqualValues(t, 0, last["viewer_count"])
}

func TestRetentionCurveUnknownVideo(t *testing.T) {
	st := seedStore(t)
	status, _ := doGet(t, RetentionCurve(st), "/v1/videos/nope/retention-curve", map[string]any{"id": "nope"})
	assert.Equal(t, fasthttp.StatusNotFound, status)
}

func TestDropoffsHandler(t *testing.T) {
	st := seedStore(t)
	cfg := &config.Config{DropoffThresholdPct: 10}

	status, body := doGet(t, Dropoffs(st, cfg), "/v1/videos/vid-1/dropoffs?threshold=30", map[string]any{"id": "vid-1"})
	require.Equal(t, fasthttp.StatusOK, status)
	drops, ok := body["drop_offs"].([]any)
	require.True(t, ok)
	// 2 -> 1 at sec 50 (50%) and 1 -> 0 at sec 100 (100%).
	require.Len(t, drops, 2)
	first := drops[0].(map[string]any)
	assert.EqualValues(t, 50, first["video_time_sec"])
	assert.EqualValues(t, 50, first["drop_off_percentage"])

	status, _ = doGet(t, Dropoffs(st, cfg), "/v1/videos/vid-1/dropoffs?threshold=bogus", map[string]any{"id": "vid-1"})
	assert.Equal(t, fasthttp.StatusBadRequest, status)
}

func TestEngagementHandler(t *testing.T) {
	st := seedStore(t)

	status, body := doGet(t, Engagement(st), "/v1/videos/vid-1/engagement", map[string]any{"id": "vid-1"})
	require.Equal(t, fasthttp.StatusOK, status)
	assert.EqualValues(t, 2, body["unique_viewers"])
	assert.EqualValues(t, 0.5, body["completion_rate"])
	assert.EqualValues(t, 70, body["avg_watch_time_sec"])
}

func TestVideosHandler(t *testing.T) {
	st := seedStore(t)

	status, body := doGet(t, Videos(st), "/v1/videos", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	videos, ok := body["videos"].([]any)
	require.True(t, ok)
	require.Len(t, videos, 1)
	v := videos[0].(map[string]any)
	assert.Equal(t, "vid-1", v["video_id"])
	assert.EqualValues(t, 100, v["duration_sec"])
	assert.EqualValues(t, 2, v["unique_viewers"])
	assert.EqualValues(t, 4, v["total_events"])
}

func TestQualityHandler(t *testing.T) {
	agg := aggregate.New(nil)
	// An END with no START and a duplicate delivery.
	end := event.New("vid-1", "u", "sess-x", event.SegmentEnd, 5, time.Now())
	agg.Ingest(end)
	start := event.New("vid-1", "u", "sess-y", event.SegmentStart, 0, time.Now())
	agg.Ingest(start)
	agg.Ingest(start)

	status, body := doGet(t, Quality(agg), "/v1/quality", nil)
	require.Equal(t, fasthttp.StatusOK, status)
	assert.EqualValues(t, 1, body["ordering_violations"])
	assert.EqualValues(t, 1, body["duplicate_events"])
	assert.EqualValues(t, 0, body["malformed_dropped"])
}

// The full in-process pipeline: transport bus feeding the aggregator,
// flushed into the store, read back through the handlers.
func TestPipelineEndToEnd(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.UpsertVideos(context.Background(), []store.Video{
		{ID: "vid-9", Title: "Video 09", DurationSec: 100},
	}))

	agg := aggregate.New(func(string) (int, bool) { return 100, true })
	bus := transport.NewBus(4, 64)
	bus.Subscribe(func(ev event.ViewerEvent) {
		assert.NoError(t, mem.AppendEvents(context.Background(), []event.ViewerEvent{ev}))
		agg.Ingest(ev)
	})

	ts := time.Now().UTC()
	for _, ev := range []event.ViewerEvent{
		event.New("vid-9", "u1", "s1", event.SegmentStart, 0, ts),
		event.New("vid-9", "u2", "s2", event.SegmentStart, 10, ts.Add(time.Second)),
		event.New("vid-9", "u2", "s2", event.SegmentEnd, 50, ts.Add(2*time.Second)),
		event.New("vid-9", "u1", "s1", event.SegmentEnd, 100, ts.Add(3*time.Second)),
	} {
		require.NoError(t, bus.Publish(context.Background(), ev))
	}
	bus.Close()

	require.NoError(t, mem.MergeRetentionDeltas(context.Background(), agg.DrainDeltas()))
	require.NoError(t, mem.UpsertEngagement(context.Background(), agg.EngagementSnapshot()))

	assert.Len(t, mem.EventLog(), 4, "every published event reaches the raw log")

	status, body := doGet(t, RetentionCurve(mem), "/v1/videos/vid-9/retention-curve", map[string]any{"id": "vid-9"})
	require.Equal(t, fasthttp.StatusOK, status)
	points := body["data_points"].([]any)
	require.Len(t, points, 101)
	assert.EqualValues(t, 2, points[30].(map[string]any)["viewer_count"])
	assert.EqualValues(t, 1, points[60].(map[string]any)["viewer_count"])
}
