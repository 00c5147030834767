package db

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// runRetentionOnce deletes raw event rows whose ExpiresAt has passed.
// Retention points are untouched: the aggregate sums outlive the raw log.
func runRetentionOnce(gdb *gorm.DB) error {
	now := time.Now()
	return gdb.Where("expires_at IS NOT NULL AND expires_at <= ?", now).Delete(&ViewerEventRecord{}).Error
}

// StartRetentionWorker launches a background goroutine that prunes the
// raw event log once at startup and then once per day.
func StartRetentionWorker(gdb *gorm.DB) {
	go func() {
		if err := runRetentionOnce(gdb); err != nil {
			log.Printf("raw log retention error (startup): %v", err)
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := runRetentionOnce(gdb); err != nil {
				log.Printf("raw log retention error: %v", err)
			}
		}
	}()
}
