package handlers

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "keyflow/internal/db"
)

// ListServices returns catalog entries, optionally filtered by provider
// or platform tag.
func ListServices(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		q := db.Preload("Provider").Order("id")
		if providerID := string(ctx.QueryArgs().Peek("provider_id")); providerID != "" {
			q = q.Where("provider_id = ?", providerID)
		}
		if platform := string(ctx.QueryArgs().Peek("platform")); platform != "" {
			q = q.Where("platform ILIKE ?", "%"+platform+"%")
		}

		var services []dbpkg.Service
		if err := q.Find(&services).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to list services")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, services)
	}
}

// SetServiceActive toggles a catalog entry. Inactive entries reject
// redemptions.
func SetServiceActive(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := pathID(ctx, "id")
		if !ok {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_id", "invalid service ID")
			return
		}
		activeStr := string(ctx.PostArgs().Peek("active"))
		if activeStr != "true" && activeStr != "false" {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_active", "active (true|false) required")
			return
		}

		var service dbpkg.Service
		if err := db.First(&service, id).Error; err != nil {
			writeError(ctx, fasthttp.StatusNotFound, "service_not_found", "service not found")
			return
		}

		if err := db.Model(&service).Update("active", activeStr == "true").Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to update service")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, service)
	}
}
