// Package router assembles the gin engine of the ETL control API.
package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/auth"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/infrastructure/logger"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/handler"
	"github.com/Juliiscoding/MercuriosAIgoinglive/internal/interfaces/http/middleware"
)

// RouteRegistrar defines the interface for registering routes
type RouteRegistrar interface {
	RegisterRoutes(rg *gin.RouterGroup)
}

// Router manages HTTP route registration
type Router struct {
	engine     *gin.Engine
	apiVersion string
	registrars []RouteRegistrar
}

// RouterOption is a functional option for Router configuration
type RouterOption func(*Router)

// WithAPIVersion sets the API version prefix (e.g., "v1", "v2")
func WithAPIVersion(version string) RouterOption {
	return func(r *Router) {
		r.apiVersion = version
	}
}

// NewRouter creates a new Router instance
func NewRouter(engine *gin.Engine, opts ...RouterOption) *Router {
	r := &Router{
		engine:     engine,
		apiVersion: "v1",
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Register adds a RouteRegistrar to be registered later
func (r *Router) Register(registrar RouteRegistrar) *Router {
	r.registrars = append(r.registrars, registrar)
	return r
}

// Setup registers all routes under /api/<version>
func (r *Router) Setup() {
	api := r.engine.Group("/api/" + r.apiVersion)
	for _, registrar := range r.registrars {
		registrar.RegisterRoutes(api)
	}
}

// DomainGroup creates a route group for a specific domain
type DomainGroup struct {
	name       string
	prefix     string
	routes     []routeDefinition
	middleware []gin.HandlerFunc
}

type routeDefinition struct {
	method   string
	path     string
	handlers []gin.HandlerFunc
}

// NewDomainGroup creates a new domain-specific route group
func NewDomainGroup(name, prefix string) *DomainGroup {
	return &DomainGroup{name: name, prefix: prefix}
}

// Use adds middleware to this group
func (dg *DomainGroup) Use(middleware ...gin.HandlerFunc) *DomainGroup {
	dg.middleware = append(dg.middleware, middleware...)
	return dg
}

// GET registers a GET route
func (dg *DomainGroup) GET(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodGet, path, handlers)
}

// POST registers a POST route
func (dg *DomainGroup) POST(path string, handlers ...gin.HandlerFunc) *DomainGroup {
	return dg.handle(http.MethodPost, path, handlers)
}

func (dg *DomainGroup) handle(method, path string, handlers []gin.HandlerFunc) *DomainGroup {
	dg.routes = append(dg.routes, routeDefinition{method: method, path: path, handlers: handlers})
	return dg
}

// RegisterRoutes implements RouteRegistrar interface
func (dg *DomainGroup) RegisterRoutes(rg *gin.RouterGroup) {
	group := rg.Group(dg.prefix)
	if len(dg.middleware) > 0 {
		group.Use(dg.middleware...)
	}
	for _, route := range dg.routes {
		group.Handle(route.method, route.path, route.handlers...)
	}
}

// Name returns the group name
func (dg *DomainGroup) Name() string {
	return dg.name
}

// Prefix returns the group prefix
func (dg *DomainGroup) Prefix() string {
	return dg.prefix
}

// Config holds what the control API engine is built from
type Config struct {
	Sync    *handler.SyncHandler
	Health  *handler.HealthHandler
	Logger  *zap.Logger
	Tracing middleware.TracingConfig
	// JWT protects the /etl group when it has a secret
	JWT *auth.JWTService
}

// New builds the gin engine with the middleware chain, /health and the
// /api/v1/etl routes.
func New(cfg Config) *gin.Engine {
	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		logger.Recovery(cfg.Logger),
		logger.GinMiddleware(cfg.Logger),
		middleware.Secure(),
		middleware.TracingWithConfig(cfg.Tracing),
		middleware.SpanAttributes(),
	)

	engine.GET("/health", cfg.Health.Health)

	etlGroup := NewDomainGroup("etl", "/etl")
	readScope, triggerScope := noScope, noScope
	if cfg.JWT != nil && cfg.JWT.Enabled() {
		etlGroup.Use(middleware.JWTAuthMiddlewareWithConfig(middleware.JWTMiddlewareConfig{
			JWTService: cfg.JWT,
			Logger:     cfg.Logger,
		}))
		readScope = middleware.RequireScope(auth.ScopeSyncRead)
		triggerScope = middleware.RequireScope(auth.ScopeSyncTrigger)
	}
	etlGroup.
		POST("/sync-full", triggerScope, cfg.Sync.SyncFull).
		POST("/sync-incremental", triggerScope, cfg.Sync.SyncIncremental).
		GET("/stats", readScope, cfg.Sync.Stats).
		GET("/status", readScope, cfg.Sync.Status)

	NewRouter(engine).Register(etlGroup).Setup()
	return engine
}

func noScope(c *gin.Context) {
	c.Next()
}
