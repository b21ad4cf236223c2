package handlers

import (
	"errors"
	"log"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "keyflow/internal/db"
	"keyflow/internal/engine"
)

// OrderStatusHandler returns one order. Non-terminal orders are
// refreshed against the provider first; a refresh failure degrades to
// the last confirmed state instead of an error, since the next poll can
// retry.
func OrderStatusHandler(eng *engine.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := pathID(ctx, "id")
		if !ok {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_id", "invalid order ID")
			return
		}

		order, err := eng.Refresh(id)
		if err != nil {
			if errors.Is(err, engine.ErrOrderNotFound) {
				writeEngineError(ctx, err)
				return
			}
			if order == nil {
				writeEngineError(ctx, err)
				return
			}
			log.Printf("order %d refresh: %v", id, err)
		}

		writeJSON(ctx, fasthttp.StatusOK, order)
	}
}

// RefreshOrder forces a reconciliation pass for one order (admin).
// Unlike the public status endpoint, refresh failures surface as errors.
func RefreshOrder(eng *engine.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := pathID(ctx, "id")
		if !ok {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_id", "invalid order ID")
			return
		}

		order, err := eng.Refresh(id)
		if err != nil {
			if errors.Is(err, engine.ErrRefreshFailed) {
				writeError(ctx, fasthttp.StatusBadGateway, "refresh_failed", err.Error())
				return
			}
			writeEngineError(ctx, err)
			return
		}

		writeJSON(ctx, fasthttp.StatusOK, order)
	}
}

// ListOrders returns recent orders, optionally filtered by status (admin).
func ListOrders(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		q := db.Preload("Service").Order("id DESC").Limit(200)
		if status := string(ctx.QueryArgs().Peek("status")); status != "" {
			q = q.Where("status = ?", status)
		}

		var orders []dbpkg.Order
		if err := q.Find(&orders).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to list orders")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, orders)
	}
}
