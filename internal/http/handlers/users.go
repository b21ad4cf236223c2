package handlers

import (
	"github.com/valyala/fasthttp"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"keyflow/internal/config"
	dbpkg "keyflow/internal/db"
)

// CreateUser adds an admin-panel account.
func CreateUser(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		if !user.IsAdmin {
			writeError(ctx, fasthttp.StatusForbidden, "forbidden", "admin required")
			return
		}

		username := string(ctx.PostArgs().Peek("username"))
		password := string(ctx.PostArgs().Peek("password"))
		isAdmin := string(ctx.PostArgs().Peek("is_admin")) == "true"

		if username == "" || password == "" {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_user", "username and password required")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to hash password")
			return
		}

		created := &dbpkg.User{
			Username:     username,
			PasswordHash: string(hash),
			IsAdmin:      isAdmin,
		}
		if err := db.Create(created).Error; err != nil {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_user", "failed to create user (username may already exist)")
			return
		}

		writeJSON(ctx, fasthttp.StatusCreated, map[string]interface{}{
			"id":       created.ID,
			"username": created.Username,
			"is_admin": created.IsAdmin,
		})
	}
}

// ResetPassword sets a new password for a user (admin only).
func ResetPassword(db *gorm.DB) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		if !user.IsAdmin {
			writeError(ctx, fasthttp.StatusForbidden, "forbidden", "admin required")
			return
		}

		id, okID := pathID(ctx, "id")
		if !okID {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_id", "invalid user ID")
			return
		}
		password := string(ctx.PostArgs().Peek("password"))
		if password == "" {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_password", "password required")
			return
		}

		var target dbpkg.User
		if err := db.First(&target, id).Error; err != nil {
			writeError(ctx, fasthttp.StatusNotFound, "user_not_found", "user not found")
			return
		}

		hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
		if err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to hash password")
			return
		}

		if err := db.Model(&target).Update("password_hash", string(hash)).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to update password")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "ok"})
	}
}

// DeleteUser removes an admin-panel account. The bootstrap admin cannot
// be deleted.
func DeleteUser(db *gorm.DB, cfg *config.Config) fasthttp.RequestHandler {
	return func(ctx *fasthttp.RequestCtx) {
		user, ok := MustUser(ctx)
		if !ok {
			return
		}
		if !user.IsAdmin {
			writeError(ctx, fasthttp.StatusForbidden, "forbidden", "admin required")
			return
		}

		id, okID := pathID(ctx, "id")
		if !okID {
			writeError(ctx, fasthttp.StatusBadRequest, "invalid_id", "invalid user ID")
			return
		}

		var target dbpkg.User
		if err := db.First(&target, id).Error; err != nil {
			writeError(ctx, fasthttp.StatusNotFound, "user_not_found", "user not found")
			return
		}
		if target.Username == cfg.AdminUser {
			writeError(ctx, fasthttp.StatusForbidden, "forbidden", "cannot delete bootstrap admin user")
			return
		}

		if err := db.Delete(&target).Error; err != nil {
			writeError(ctx, fasthttp.StatusInternalServerError, "internal_error", "failed to delete user")
			return
		}
		writeJSON(ctx, fasthttp.StatusOK, map[string]string{"status": "deleted"})
	}
}
