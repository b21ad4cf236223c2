package handlers

import (
	"encoding/json"
	"errors"
	"strconv"

	"github.com/valyala/fasthttp"

	dbpkg "keyflow/internal/db"
	"keyflow/internal/engine"
	httpctx "keyflow/internal/http/ctx"
)

// MustUser returns the current user from context, or sends 401 and returns (nil, false).
func MustUser(ctx *fasthttp.RequestCtx) (*dbpkg.User, bool) {
	user, ok := httpctx.UserFromCtx(ctx)
	if !ok || user == nil {
		writeError(ctx, fasthttp.StatusUnauthorized, "unauthorized", "unauthorized")
		return nil, false
	}
	return user, true
}

func writeJSON(ctx *fasthttp.RequestCtx, status int, v interface{}) {
	body, err := json.Marshal(v)
	if err != nil {
		ctx.SetStatusCode(fasthttp.StatusInternalServerError)
		ctx.SetBodyString("encoding error")
		return
	}
	ctx.SetStatusCode(status)
	ctx.SetContentType("application/json")
	ctx.SetBody(body)
}

func writeError(ctx *fasthttp.RequestCtx, status int, code, message string) {
	writeJSON(ctx, status, map[string]string{
		"error":   code,
		"message": message,
	})
}

// writeEngineError maps engine/ledger errors onto HTTP responses. Key
// and configuration errors are 4xx (the caller needs a different key or
// an admin fix); provider transport errors are 502 and safely retryable
// because the reservation was already compensated.
func writeEngineError(ctx *fasthttp.RequestCtx, err error) {
	switch {
	case errors.Is(err, dbpkg.ErrKeyNotFound):
		writeError(ctx, fasthttp.StatusNotFound, "key_not_found", err.Error())
	case errors.Is(err, dbpkg.ErrKeyDeleted):
		writeError(ctx, fasthttp.StatusGone, "key_deleted", err.Error())
	case errors.Is(err, dbpkg.ErrKeyExpired):
		writeError(ctx, fasthttp.StatusGone, "key_expired", err.Error())
	case errors.Is(err, dbpkg.ErrKeyExhausted):
		writeError(ctx, fasthttp.StatusConflict, "key_exhausted", err.Error())
	case errors.Is(err, engine.ErrKeyServiceMismatch):
		writeError(ctx, fasthttp.StatusUnprocessableEntity, "key_service_mismatch", err.Error())
	case errors.Is(err, engine.ErrInvalidQuantity):
		writeError(ctx, fasthttp.StatusBadRequest, "invalid_quantity", err.Error())
	case errors.Is(err, engine.ErrInvalidTarget):
		writeError(ctx, fasthttp.StatusBadRequest, "invalid_target", err.Error())
	case errors.Is(err, engine.ErrServiceNotFound):
		writeError(ctx, fasthttp.StatusNotFound, "service_not_found", err.Error())
	case errors.Is(err, engine.ErrOrderNotFound):
		writeError(ctx, fasthttp.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, engine.ErrProviderNotFound):
		writeError(ctx, fasthttp.StatusNotFound, "provider_not_found", err.Error())
	case errors.Is(err, engine.ErrUnresolvedProvider):
		writeError(ctx, fasthttp.StatusUnprocessableEntity, "unresolved_provider", err.Error())
	case errors.Is(err, engine.ErrProviderSubmission):
		writeError(ctx, fasthttp.StatusBadGateway, "provider_submission_failed", err.Error())
	case errors.Is(err, engine.ErrProviderUnavailable):
		writeError(ctx, fasthttp.StatusBadGateway, "provider_unavailable", err.Error())
	default:
		writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "internal error")
	}
}

// pathID extracts a positive integer path parameter set by the router.
func pathID(ctx *fasthttp.RequestCtx, name string) (uint, bool) {
	v, ok := ctx.UserValue(name).(string)
	if !ok || v == "" {
		return 0, false
	}
	id, err := strconv.Atoi(v)
	if err != nil || id <= 0 {
		return 0, false
	}
	return uint(id), true
}
