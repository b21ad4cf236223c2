package middleware

import (
	"bytes"
	"strings"

	"github.com/valyala/fasthttp"
	"gorm.io/gorm"

	"keyflow/internal/config"
	dbpkg "keyflow/internal/db"
	httpctx "keyflow/internal/http/ctx"
)

// AdminAuth guards the admin surface. Browser callers authenticate with
// the session cookie set by /login; CLI callers may instead send the
// configured admin API token as a Bearer header. The resolved user is
// set on the request context.
func AdminAuth(db *gorm.DB, cfg *config.Config) func(fasthttp.RequestHandler) fasthttp.RequestHandler {
	return func(next fasthttp.RequestHandler) fasthttp.RequestHandler {
		return func(ctx *fasthttp.RequestCtx) {
			if token := bearerToken(ctx); token != "" {
				if cfg.AdminAPIToken == "" || token != cfg.AdminAPIToken {
					unauthorized(ctx, "invalid admin token")
					return
				}
				var admin dbpkg.User
				if err := db.Where("username = ?", cfg.AdminUser).First(&admin).Error; err != nil {
					unauthorized(ctx, "admin user not provisioned")
					return
				}
				admin.IsAdmin = true
				httpctx.SetUser(ctx, &admin)
				next(ctx)
				return
			}

			cookie := ctx.Request.Header.Cookie("session_user")
			if len(cookie) == 0 {
				unauthorized(ctx, "authentication required")
				return
			}
			username := string(cookie)

			var user dbpkg.User
			if err := db.Where("username = ?", username).First(&user).Error; err != nil {
				unauthorized(ctx, "authentication required")
				return
			}

			if user.Username == cfg.AdminUser {
				user.IsAdmin = true
			}

			httpctx.SetUser(ctx, &user)
			next(ctx)
		}
	}
}

func bearerToken(ctx *fasthttp.RequestCtx) string {
	auth := ctx.Request.Header.Peek("Authorization")
	const prefix = "Bearer "
	if !bytes.HasPrefix(auth, []byte(prefix)) {
		return ""
	}
	return strings.TrimSpace(string(auth[len(prefix):]))
}

func unauthorized(ctx *fasthttp.RequestCtx, msg string) {
	ctx.SetStatusCode(fasthttp.StatusUnauthorized)
	ctx.SetContentType("application/json")
	ctx.SetBodyString(`{"error":"unauthorized","message":"` + msg + `"}`)
}
