package handlers

import (
	"encoding/json"

	"github.com/valyala/fasthttp"

	"keyflow/internal/engine"
)

type redeemRequest struct {
	Key       string `json:"key"`
	ServiceID uint   `json:"service_id,omitempty"`
	Target    string `json:"target"`
	Quantity  int    `json:"quantity"`
}

// Redeem accepts a customer redemption: key value, target and quantity,
// plus an optional catalog entry when the key is not bound to one. On
// success the created order is returned in processing state.
func Redeem(eng *engine.Engine) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var req redeemRequest
		if err := json.Unmarshal(ctx.PostBody(), &req); err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_body", "invalid JSON body")
			return
		}
		if req.Key == "" {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_key", "key required")
			return
		}

		order, err := eng.Redeem(engine.RedeemInput{
			KeyValue:  req.Key,
			ServiceID: req.ServiceID,
			Target:    req.Target,
			Quantity:  req.Quantity,
		})
		if err != nil {
			writeEngineError(ctx, err)
			return
		}

		writeJSON(ctx, fasthttp.StatusCreated, order)
	}
}
