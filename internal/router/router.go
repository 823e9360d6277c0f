package router

import (
	"github.com/fasthttp/router"
	"github.com/valyala/fasthttp"

	apiHandler "github.com/fastygo/sessions/api/handler"
)

// Middleware wraps a request handler.
type Middleware func(fasthttp.RequestHandler) fasthttp.RequestHandler

type Handlers struct {
	Auth    *apiHandler.AuthHandler
	Session *apiHandler.SessionHandler
	Health  *apiHandler.HealthHandler
	// Metrics is optional.
	Metrics fasthttp.RequestHandler
}

// New mounts the API. sessionAuth guards every route except login, health and metrics;
// admin additionally guards /api/v1/admin.
func New(handlers Handlers, sessionAuth Middleware, admin Middleware) *router.Router {
	r := router.New()

	r.GET("/health", handlers.Health.Check)
	if handlers.Metrics != nil {
		r.GET("/metrics", handlers.Metrics)
	}

	// Auth routes
	r.POST("/api/v1/auth/login", handlers.Auth.Login)
	r.POST("/api/v1/auth/refresh", sessionAuth(handlers.Auth.Refresh))
	r.POST("/api/v1/auth/logout", sessionAuth(handlers.Auth.Logout))
	r.POST("/api/v1/auth/logout-all", sessionAuth(handlers.Auth.LogoutAll))

	// Protected routes
	r.GET("/api/v1/sessions", sessionAuth(handlers.Session.List))

	adminOnly := func(h fasthttp.RequestHandler) fasthttp.RequestHandler {
		return sessionAuth(admin(h))
	}
	r.GET("/api/v1/admin/users/{id}/sessions", adminOnly(handlers.Session.ListForUser))
	r.DELETE("/api/v1/admin/users/{id}/sessions", adminOnly(handlers.Session.RevokeForUser))

	return r
}
