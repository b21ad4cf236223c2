package db

import (
	"log"
	"time"

	"gorm.io/gorm"
)

// runOrderAggregationOnce aggregates orders created in the given hour
// (bucketStart to bucketStart+1h) into OrderBucket rows per provider.
// Call with bucketStart = time in UTC truncated to hour. Re-running a
// bucket refreshes it, so late status transitions are picked up.
func runOrderAggregationOnce(db *gorm.DB, bucketStart time.Time) error {
	bucketEnd := bucketStart.Add(time.Hour)

	type row struct {
		ProviderID uint
		Status     OrderStatus
	}
	var rows []row
	if err := db.Model(&Order{}).
		Select("services.provider_id AS provider_id, orders.status AS status").
		Joins("JOIN services ON services.id = orders.service_id").
		Where("orders.created_at >= ? AND orders.created_at < ?", bucketStart, bucketEnd).
		Scan(&rows).Error; err != nil {
		return err
	}

	type counts struct {
		total     int64
		completed int64
		partial   int64
		failed    int64
	}
	groups := make(map[uint]*counts)
	for _, r := range rows {
		c := groups[r.ProviderID]
		if c == nil {
			c = &counts{}
			groups[r.ProviderID] = c
		}
		c.total++
		switch r.Status {
		case OrderCompleted:
			c.completed++
		case OrderPartial:
			c.partial++
		case OrderFailed, OrderCancelled:
			c.failed++
		}
	}

	for providerID, c := range groups {
		bucket := OrderBucket{
			ProviderID:     providerID,
			BucketStart:    bucketStart,
			TotalCount:     c.total,
			CompletedCount: c.completed,
			PartialCount:   c.partial,
			FailedCount:    c.failed,
		}
		var existing OrderBucket
		err := db.Where("provider_id = ? AND bucket_start = ?", providerID, bucketStart).First(&existing).Error
		if err == gorm.ErrRecordNotFound {
			err = db.Create(&bucket).Error
		} else if err == nil {
			err = db.Model(&existing).Updates(map[string]interface{}{
				"total_count":     bucket.TotalCount,
				"completed_count": bucket.CompletedCount,
				"partial_count":   bucket.PartialCount,
				"failed_count":    bucket.FailedCount,
			}).Error
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// StartOrderAggregationWorker runs aggregation for the last 24 completed
// hours at startup, then refreshes the previous few hours every hour so
// reconciled outcomes land in their creation bucket. Buckets are in UTC.
func StartOrderAggregationWorker(db *gorm.DB) {
	go func() {
		now := time.Now().UTC()
		for i := 1; i <= 24; i++ {
			bucketStart := now.Truncate(time.Hour).Add(-time.Duration(i) * time.Hour)
			if err := runOrderAggregationOnce(db, bucketStart); err != nil {
				log.Printf("order aggregation error (startup) for %s: %v", bucketStart.Format(time.RFC3339), err)
			}
		}

		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for t := range ticker.C {
			for i := 1; i <= 6; i++ {
				bucketStart := t.UTC().Truncate(time.Hour).Add(-time.Duration(i) * time.Hour)
				if err := runOrderAggregationOnce(db, bucketStart); err != nil {
					log.Printf("order aggregation error for %s: %v", bucketStart.Format(time.RFC3339), err)
				}
			}
		}
	}()
}
