package handlers

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"strings"
	"time"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"keyflow/internal/config"
	dbpkg "keyflow/internal/db"
)

const maxGenerateCount = 1000

func generateKeyValue() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "kf_" + base64.URLEncoding.EncodeToString(b), nil
}

type generateKeysRequest struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	ServiceID    uint   `json:"service_id"`
	MaxQuantity  int    `json:"max_quantity"`
	ValidityDays int    `json:"validity_days"`
	Count        int    `json:"count"`
}

// GenerateKeys bulk-creates keys from one template: N keys sharing
// name, category, service binding, capacity and validity window.
func GenerateKeys(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req generateKeysRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_body", "invalid JSON body")
			return
		}

		if req.Count <= 0 {
			req.Count = 1
		}
		if req.Count > maxGenerateCount {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_count", "count exceeds the generation limit")
			return
		}
		if req.MaxQuantity < 1 {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_max_quantity", "max_quantity must be at least 1")
			return
		}
		if req.ServiceID == 0 {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_service", "service_id required")
			return
		}
		var svcCount int64
		if err := db.Model(&dbpkg.Service{}).Where("id = ?", req.ServiceID).Count(&svcCount).Error; err != nil || svcCount == 0 {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_service", "unknown service_id")
			return
		}
		if req.ValidityDays <= 0 {
			req.ValidityDays = cfg.DefaultValidityDays
		}

		keys := make([]dbpkg.Key, 0, req.Count)
		for i := 0; i < req.Count; i++ {
			value, err := generateKeyValue()
			if err != nil {
				writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to generate key value")
				return
			}
			keys = append(keys, dbpkg.Key{
				Name:         req.Name,
				Category:     req.Category,
				Value:        value,
				ServiceID:    req.ServiceID,
				MaxQuantity:  req.MaxQuantity,
				ValidityDays: req.ValidityDays,
			})
		}

		if err := db.Create(&keys).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to create keys")
			return
		}

		writeJSON(ctx, fasthttp.StatusCreated, map[string]interface{}{
			"count": len(keys),
			"keys":  keys,
		})
	}
}

// ListKeys returns keys, optionally filtered by category. Soft-deleted
// keys are excluded.
func ListKeys(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		q := db.Where("deleted = ?", false).Order("id DESC").Limit(500)
		if category := string(ctx.QueryArgs().Peek("category")); category != "" {
			q = q.Where("category = ?", category)
		}

		var keys []dbpkg.Key
		if err := q.Find(&keys).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to list keys")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, keys)
	}
}

// DeleteKey soft-deletes a key. The purge worker removes the row for
// good after the retention window.
func DeleteKey(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := pathID(ctx, "id")
		if !ok {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_id", "invalid key ID")
			return
		}

		var key dbpkg.Key
		if err := db.First(&key, id).Error; err != nil {
			writeError(ctx, fasthttp.StatusNotFound, "key_not_found", "key not found")
			return
		}

		now := time.Now()
		if err := db.Model(&key).Updates(map[string]interface{}{
			"deleted":    true,
			"deleted_at": now,
		}).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to delete key")
			return
		}

		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "deleted"})
	}
}

// MarkKeyUsed administratively retires a key: the used flag is set
// regardless of remaining capacity and further redemptions are rejected
// as exhausted.
func MarkKeyUsed(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := pathID(ctx, "id")
		if !ok {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_id", "invalid key ID")
			return
		}

		var key dbpkg.Key
		if err := db.First(&key, id).Error; err != nil {
			writeError(ctx, fasthttp.StatusNotFound, "key_not_found", "key not found")
			return
		}

		if err := dbpkg.MarkUsed(db, key.ID); err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to mark key used")
			return
		}
		key.Used = true
		writeJSON(ctx, fasthttp.StatusOK, key)
	}
}

// ExportKeys writes a newline-delimited list of redemption values for
// one category. Pure read; nothing is mutated or marked.
func ExportKeys(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		category := string(ctx.QueryArgs().Peek("category"))
		if category == "" {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_category", "category required")
			return
		}

		var values []string
		if err := db.Model(&dbpkg.Key{}).
			Where("category = ? AND deleted = ?", category, false).
			Order("id").
			Pluck("value", &values).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to export keys")
			return
		}

		ctx.SetContentType("text/plain; charset=utf-8")
		ctx.SetBodyString(strings.Join(values, "\n"))
	}
}
