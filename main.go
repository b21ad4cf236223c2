package main

import (
	"log"

	"github.com/fasthttp/router"
	"github.com/joho/godotenv"
	"github.com/valyala/fasthttp"

	"keyflow/internal/config"
	"keyflow/internal/db"
	"keyflow/internal/engine"
	"keyflow/internal/http/handlers"
	appmw "keyflow/internal/http/middleware"
	"keyflow/internal/metrics"
	"keyflow/internal/provider"
)

func main() {
	_ = godotenv.Load()
	cfg := config.Load()

	sqlDB, err := db.Connect(cfg)
	if err != nil {
		log.Fatalf("failed to connect database: %v", err)
	}

	if err := db.EnsureBootstrapAdmin(sqlDB, cfg); err != nil {
		log.Fatalf("failed to ensure bootstrap admin: %v", err)
	}

	metrics.Init()

	client := provider.NewClient(cfg.ProviderTimeout)
	eng := engine.New(db.NewStore(sqlDB), client)

	eng.StartReconcileWorker(cfg.ReconcileInterval)
	db.StartKeyPurgeWorker(sqlDB, cfg.KeyRetentionDays)
	db.StartOrderAggregationWorker(sqlDB)

	r := router.New()

	r.GET("/healthz", func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(fasthttp.StatusOK)
		ctx.SetBodyString("ok")
	})

	r.POST("/login", handlers.Login(sqlDB))
	r.POST("/logout", handlers.Logout())

	// Customer-facing surface.
	r.POST("/v1/redeem", handlers.Redeem(eng))
	r.GET("/v1/orders/{id}", handlers.OrderStatusHandler(eng))

	admin := appmw.AdminAuth(sqlDB, cfg)

	r.POST("/admin/keys/generate", admin(handlers.GenerateKeys(sqlDB, cfg)))
	r.GET("/admin/keys", admin(handlers.ListKeys(sqlDB)))
	r.POST("/admin/keys/{id}/delete", admin(handlers.DeleteKey(sqlDB)))
	r.POST("/admin/keys/{id}/mark-used", admin(handlers.MarkKeyUsed(sqlDB)))
	r.GET("/admin/keys/export", admin(handlers.ExportKeys(sqlDB)))

	r.POST("/admin/providers/create", admin(handlers.CreateProvider(sqlDB)))
	r.GET("/admin/providers", admin(handlers.ListProviders(sqlDB)))
	r.POST("/admin/providers/{id}/set-active", admin(handlers.SetProviderActive(sqlDB)))
	r.POST("/admin/providers/{id}/delete", admin(handlers.DeleteProvider(sqlDB)))
	r.POST("/admin/providers/{id}/import", admin(handlers.ImportServices(eng)))

	r.GET("/admin/services", admin(handlers.ListServices(sqlDB)))
	r.POST("/admin/services/{id}/set-active", admin(handlers.SetServiceActive(sqlDB)))
	r.POST("/admin/services/rebind", admin(handlers.RebindServices(eng)))

	r.GET("/admin/orders", admin(handlers.ListOrders(sqlDB)))
	r.POST("/admin/orders/{id}/refresh", admin(handlers.RefreshOrder(eng)))

	r.GET("/admin/stats", admin(handlers.Stats(sqlDB)))
	r.GET("/admin/stats/series", admin(handlers.StatsSeries(sqlDB)))

	r.POST("/admin/users/create", admin(handlers.CreateUser(sqlDB)))
	r.POST("/admin/users/{id}/reset-password", admin(handlers.ResetPassword(sqlDB)))
	r.POST("/admin/users/{id}/delete", admin(handlers.DeleteUser(sqlDB, cfg)))

	r.GET("/metrics", admin(handlers.MetricsHandler()))

	handler := appmw.Observe()(r.Handler)

	log.Printf("keyflow listening on %s", cfg.ListenAddr)
	if err := fasthttp.ListenAndServe(cfg.ListenAddr, handler); err != nil {
		log.Fatalf("server error: %v", err)
	}
}
