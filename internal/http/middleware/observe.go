package middleware

import (
	"strconv"

	"github.com/valyala/fasthttp"

	"keyflow/internal/metrics"
)

// Observe counts every handled request in the engine's own Prometheus
// metrics. The /metrics and /healthz endpoints are skipped to keep the
// series from observing themselves.
func Observe() func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			next(ctx)

			path := string(ctx.Path())
			if path == "/metrics" || path == "/healthz" {
				return
			}

			metrics.HTTPRequestsTotal.WithLabelValues(
				path,
				string(ctx.Method()),
				strconv.Itoa(ctx.Response.StatusCode()),
			).Inc()
		}
	}
}
