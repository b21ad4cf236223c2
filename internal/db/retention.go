package db

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// runKeyPurgeOnce performs a single pass of retention cleanup, removing
// soft-deleted keys whose deletion is older than the retention window.
func runKeyPurgeOnce(db *gorm.DB, retentionDays int) error {
	cutoff := time.Now().AddDate(0, 0, -retentionDays)
	if err := db.Where("deleted = ? AND deleted_at IS NOT NULL AND deleted_at <= ?", true, cutoff).
		Delete(&Key{}).Error; err != nil {
		return err
	}
	return nil
}

// StartKeyPurgeWorker launches a background goroutine that runs the
// purge once at startup and then once per day.
func StartKeyPurgeWorker(db *gorm.DB, retentionDays int) {
	go func() {
		if err := runKeyPurgeOnce(db, retentionDays); err != nil {
			log.Printf("key purge error (startup): %v", err)
		}

		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		for range ticker.C {
			if err := runKeyPurgeOnce(db, retentionDays); err != nil {
				log.Printf("key purge error: %v", err)
			}
		}
	}()
}
