package handlers

import (
	"strconv"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "keyflow/internal/db"
)

// Stats returns an admin summary: key counts, order counts by status,
// and provider counts.
func Stats(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var totalKeys, usedKeys, deletedKeys int64
		if err := db.Model(&dbpkg.Key{}).Count(&totalKeys).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to count keys")
			return
		}
		db.Model(&dbpkg.Key{}).Where("used = ?", true).Count(&usedKeys)
		db.Model(&dbpkg.Key{}).Where("deleted = ?", true).Count(&deletedKeys)

		type statusCount struct {
			Status dbpkg.OrderStatus
			Count  int64
		}
		var orderCounts []statusCount
		if err := db.Model(&dbpkg.Order{}).
			Select("status, COUNT(*) AS count").
			Group("status").
			Scan(&orderCounts).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to count orders")
			return
		}
		orders := make(map[string]int64, len(orderCounts))
		for _, c := range orderCounts {
			orders[string(c.Status)] = c.Count
		}

		var providers int64
		db.Model(&dbpkg.Provider{}).Count(&providers)
		var services int64
		db.Model(&dbpkg.Service{}).Where("active = ?", true).Count(&services)

		writeJSON(ctx, fasthttp.StatusOK, map[string]interface{}{
			"keys": map[string]int64{
				"total":   totalKeys,
				"used":    usedKeys,
				"deleted": deletedKeys,
			},
			"orders":          orders,
			"providers":       providers,
			"active_services": services,
		})
	}
}

// StatsSeries returns the hourly order-outcome buckets for the last N
// hours (default 24, max 168), per provider.
func StatsSeries(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		hours := 24
		if v := string(ctx.QueryArgs().Peek("hours")); v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 && n <= 168 {
				hours = n
			}
		}
		since := time.Now().UTC().Truncate(time.Hour).Add(-time.Duration(hours) * time.Hour)

		var buckets []dbpkg.OrderBucket
		if err := db.Where("bucket_start >= ?", since).
			Order("bucket_start").
			Find(&buckets).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to load series")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, buckets)
	}
}
