package server

import (
	"context"
	"net/http"

	"fabrica/internal/handlers"
	applog "fabrica/internal/log"
)

func newRouter() http.Handler {
	mux := http.NewServeMux()
	applog.Debug(context.Background(), "registering http routes")
	mux.HandleFunc("/healthz", handlers.Health)
	applog.Debug(context.Background(), "route registered", "path", "/healthz")
	mux.HandleFunc("/api/login", handlers.Login)
	applog.Debug(context.Background(), "route registered", "path", "/api/login")
	mux.HandleFunc("/api/logout", handlers.Logout)
	applog.Debug(context.Background(), "route registered", "path", "/api/logout")

	protected := map[string]http.HandlerFunc{
		"/api/orders":            handlers.Orders,
		"/api/orders/":           handlers.Orders,
		"/api/boms":              handlers.Boms,
		"/api/boms/":             handlers.Boms,
		"/api/bom-items/":        handlers.BomItems,
		"/api/product-units/":    handlers.ProductUnitFlags,
		"/api/analytics/summary": handlers.Analytics,
	}
	for path, handler := range protected {
		mux.Handle(path, handlers.RequireAuthentication(handler))
		applog.Debug(context.Background(), "route registered", "path", path, "protected", true)
	}
	return mux
}
