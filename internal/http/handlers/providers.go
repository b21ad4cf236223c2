package handlers

import (
	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	dbpkg "keyflow/internal/db"
	"keyflow/internal/engine"
)

// CreateProvider registers an external fulfillment provider.
func CreateProvider(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		name := string(ctx.PostArgs().Peek("name"))
		baseURL := string(ctx.PostArgs().Peek("base_url"))
		apiKey := string(ctx.PostArgs().Peek("api_key"))

		if name == "" || baseURL == "" || apiKey == "" {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_provider", "name, base_url and api_key required")
			return
		}

		provider := &dbpkg.Provider{
			Name:    name,
			BaseURL: baseURL,
			APIKey:  apiKey,
			Active:  true,
		}
		if err := db.Create(provider).Error; err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_provider", "failed to create provider (name may already exist)")
			return
		}

		writeJSON(ctx, fasthttp.StatusCreated, provider)
	}
}

// ListProviders returns all provider registrations.
func ListProviders(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var providers []dbpkg.Provider
		if err := db.Order("id").Find(&providers).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to list providers")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, providers)
	}
}

// SetProviderActive toggles a provider. Deactivation blocks dispatch for
// every catalog entry bound to it.
func SetProviderActive(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := pathID(ctx, "id")
		if !ok {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_id", "invalid provider ID")
			return
		}
		activeStr := string(ctx.PostArgs().Peek("active"))
		if activeStr != "true" && activeStr != "false" {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_active", "active (true|false) required")
			return
		}

		var provider dbpkg.Provider
		if err := db.First(&provider, id).Error; err != nil {
			writeError(ctx, fasthttp.StatusNotFound, "provider_not_found", "provider not found")
			return
		}

		if err := db.Model(&provider).Update("active", activeStr == "true").Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to update provider")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, provider)
	}
}

// DeleteProvider removes a provider registration. Services bound to it
// become unresolvable until rebound or re-imported.
func DeleteProvider(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := pathID(ctx, "id")
		if !ok {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_id", "invalid provider ID")
			return
		}

		var provider dbpkg.Provider
		if err := db.First(&provider, id).Error; err != nil {
			writeError(ctx, fasthttp.StatusNotFound, "provider_not_found", "provider not found")
			return
		}

		if err := db.Delete(&provider).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to delete provider")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "deleted"})
	}
}

// ImportServices pulls a provider's catalog and upserts bound entries.
func ImportServices(eng *engine.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		id, ok := pathID(ctx, "id")
		if !ok {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_id", "invalid provider ID")
			return
		}

		result, err := eng.ImportCatalog(id)
		if err != nil {
			writeEngineError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, result)
	}
}

// RebindServices re-runs the import-time provider binding heuristic over
// catalog entries that lost their provider.
func RebindServices(eng *engine.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		bound, err := eng.RebindServices()
		if err != nil {
			writeEngineError(ctx, err)
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]int{"bound": bound})
	}
}
