package db

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"videoinsight/internal/config"
	"videoinsight/internal/event"
	"videoinsight/internal/store"
)

// Store is the Postgres-backed store.Store: the raw event log plus the
// aggregator's flushed partial sums and engagement snapshots.
type Store struct {
	db            *gorm.DB
	retentionDays int
}

func NewStore(gdb *gorm.DB, cfg *config.Config) *Store {
	return &Store{db: gdb, retentionDays: cfg.RetentionDays}
}

func (s *Store) UpsertVideos(ctx context.Context, videos []store.Video) error {
	if len(videos) == 0 {
		return nil
	}
	rows := make([]VideoRecord, 0, len(videos))
	for _, v := range videos {
		rows = append(rows, VideoRecord{
			VideoID:     v.ID,
			Title:       v.Title,
			DurationSec: v.DurationSec,
			Popularity:  v.Popularity,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns([]string{"title", "duration_sec", "popularity"}),
	}).Create(&rows).Error
}

func (s *Store) Videos(ctx context.Context) ([]store.Video, error) {
	var rows []VideoRecord
	if err := s.db.WithContext(ctx).Order("video_id").Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.Video, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.Video{ID: r.VideoID, Title: r.Title, DurationSec: r.DurationSec, Popularity: r.Popularity})
	}
	return out, nil
}

func (s *Store) VideoByID(ctx context.Context, id string) (store.Video, error) {
	var row VideoRecord
	err := s.db.WithContext(ctx).Where("video_id = ?", id).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.Video{}, store.ErrNotFound
	}
	if err != nil {
		return store.Video{}, err
	}
	return store.Video{ID: row.VideoID, Title: row.Title, DurationSec: row.DurationSec, Popularity: row.Popularity}, nil
}

func (s *Store) AppendEvents(ctx context.Context, evs []event.ViewerEvent) error {
	if len(evs) == 0 {
		return nil
	}
	now := time.Now()
	var expiresAt *time.Time
	if s.retentionDays > 0 {
		t := now.Add(time.Duration(s.retentionDays) * 24 * time.Hour)
		expiresAt = &t
	}
	rows := make([]ViewerEventRecord, 0, len(evs))
	for _, ev := range evs {
		rows = append(rows, ViewerEventRecord{
			CreatedAt:      now,
			ExpiresAt:      expiresAt,
			EventID:        ev.EventID,
			VideoID:        ev.VideoID,
			UserID:         ev.UserID,
			SessionID:      ev.SessionID,
			EventTimestamp: ev.EventTimestamp,
			EventType:      string(ev.EventType),
			VideoTimeSec:   ev.VideoTimeSec,
			DeltaViewers:   ev.DeltaViewers,
			Attributes:     ev.Attributes,
		})
	}
	return s.db.WithContext(ctx).Create(&rows).Error
}

// MergeRetentionDeltas adds each drained partial into the stored sum for
// its key, creating rows lazily. The ON CONFLICT addition is what keeps
// concurrent partial aggregations mergeable without a global lock.
func (s *Store) MergeRetentionDeltas(ctx context.Context, deltas []store.RetentionDelta) error {
	if len(deltas) == 0 {
		return nil
	}
	rows := make([]RetentionPointRecord, 0, len(deltas))
	for _, d := range deltas {
		rows = append(rows, RetentionPointRecord{
			VideoID:         d.VideoID,
			VideoTimeSec:    d.VideoTimeSec,
			EventDate:       d.EventDate,
			CumulativeDelta: d.Delta,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "video_id"}, {Name: "video_time_sec"}, {Name: "event_date"}},
		DoUpdates: clause.Assignments(map[string]interface{}{
			"cumulative_delta": gorm.Expr("retention_point_records.cumulative_delta + EXCLUDED.cumulative_delta"),
		}),
	}).Create(&rows).Error
}

func (s *Store) RetentionDeltas(ctx context.Context, videoID string) ([]store.RetentionDelta, error) {
	var rows []RetentionPointRecord
	if err := s.db.WithContext(ctx).
		Where("video_id = ?", videoID).
		Order("video_time_sec, event_date").
		Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]store.RetentionDelta, 0, len(rows))
	for _, r := range rows {
		out = append(out, store.RetentionDelta{
			VideoID:      r.VideoID,
			VideoTimeSec: r.VideoTimeSec,
			EventDate:    r.EventDate,
			Delta:        r.CumulativeDelta,
		})
	}
	return out, nil
}

func (s *Store) UpsertEngagement(ctx context.Context, stats []store.EngagementStat) error {
	if len(stats) == 0 {
		return nil
	}
	rows := make([]EngagementRecord, 0, len(stats))
	for _, st := range stats {
		rows = append(rows, EngagementRecord{
			VideoID:           st.VideoID,
			UniqueViewers:     st.UniqueViewers,
			Sessions:          st.Sessions,
			CompletedSessions: st.CompletedSessions,
			WatchedSecTotal:   st.WatchedSecTotal,
			EventCount:        st.EventCount,
		})
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "video_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"unique_viewers", "sessions", "completed_sessions", "watched_sec_total", "event_count",
		}),
	}).Create(&rows).Error
}

func (s *Store) EngagementByVideo(ctx context.Context, videoID string) (store.EngagementStat, error) {
	var row EngagementRecord
	err := s.db.WithContext(ctx).Where("video_id = ?", videoID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return store.EngagementStat{}, store.ErrNotFound
	}
	if err != nil {
		return store.EngagementStat{}, err
	}
	return store.EngagementStat{
		VideoID:           row.VideoID,
		UniqueViewers:     row.UniqueViewers,
		Sessions:          row.Sessions,
		CompletedSessions: row.CompletedSessions,
		WatchedSecTotal:   row.WatchedSecTotal,
		EventCount:        row.EventCount,
	}, nil
}
