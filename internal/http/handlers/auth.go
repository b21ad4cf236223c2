package handlers

import (
	"errors"

	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	dbpkg "keyflow/internal/db"
)

// Login authenticates an admin-panel user with form credentials and sets
// the session cookie.
func Login(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		username := string(ctx.PostArgs().Peek("username"))
		password := string(ctx.PostArgs().Peek("password"))

		var user dbpkg.User
		if err := db.Where("username = ?", username).First(&user).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				writeError(ctx, fasthttp.StatusUnauthorized, "invalid_credentials", "invalid username or password")
				return
			}
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "database error")
			return
		}

		if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
			writeError(ctx, fasthttp.StatusUnauthorized, "invalid_credentials", "invalid username or password")
			return
		}

		var c fasthttp.Cookie
		c.SetKey("session_user")
		c.SetValue(username)
		c.SetPath("/")
		c.SetHTTPOnly(true)
		ctx.Response.Header.SetCookie(&c)

		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	}
}

// Logout clears the session cookie.
func Logout() fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		var c fasthttp.Cookie
		c.SetKey("session_user")
		c.SetValue("")
		c.SetPath("/")
		c.SetMaxAge(-1)
		ctx.Response.Header.SetCookie(&c)

		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	}
}
