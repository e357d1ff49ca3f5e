// Package router registers the API routes and their middleware.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/recital-program/internal/auth"
	"github.com/iliyamo/recital-program/internal/handler"
	"github.com/iliyamo/recital-program/internal/middleware"
)

// Handlers groups the route handlers.
type Handlers struct {
	Health  *handler.HealthHandler
	Catalog *handler.CatalogHandler
	Session *handler.SessionHandler
	Live    *handler.LiveHandler
	Auth    *handler.AuthHandler
}

// Middleware groups the optional cross-cutting middleware.  The rate
// limiter runs after token verification so buckets can key on the session.
type Middleware struct {
	Cache     echo.MiddlewareFunc
	RateLimit echo.MiddlewareFunc
}

func (m Middleware) chain(mw ...echo.MiddlewareFunc) []echo.MiddlewareFunc {
	out := append([]echo.MiddlewareFunc(nil), mw...)
	if m.RateLimit != nil {
		out = append(out, m.RateLimit)
	}
	return out
}

// RegisterRoutes registers every route on e.
func RegisterRoutes(e *echo.Echo, h Handlers, iss *auth.Issuer, m Middleware) {
	e.GET("/healthz", h.Health.Health)

	RegisterAuth(e, h.Auth, iss, m)
	RegisterCatalog(e, h.Catalog, m)
	RegisterSession(e, h.Session, iss, m)
	RegisterLive(e, h.Live, iss, m)
}

// RegisterAuth registers sign-in, token refresh and logout.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, iss *auth.Issuer, m Middleware) {
	g := e.Group("/v1/auth", m.chain()...)
	g.POST("/anonymous", a.Anonymous)
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	g.POST("/logout", a.Logout, middleware.OptionalJWT(iss))
	g.GET("/google/login", a.GoogleLogin)
	g.GET("/google/callback", a.GoogleCallback)
}

// RegisterCatalog registers the public program data.  These responses only
// depend on the URL, so they go through the response cache.
func RegisterCatalog(e *echo.Echo, p *handler.CatalogHandler, m Middleware) {
	mw := m.chain()
	if m.Cache != nil {
		mw = append(mw, m.Cache)
	}
	g := e.Group("/v1/shows", mw...)
	g.GET("", p.ListShows)
	g.GET("/:key", p.GetShow)
	g.GET("/:key/search/performers", p.SearchPerformers)
	g.GET("/:key/search/acts", p.SearchActs)
}

// RegisterSession registers per-session endpoints.
func RegisterSession(e *echo.Echo, s *handler.SessionHandler, iss *auth.Issuer, m Middleware) {
	e.GET("/v1/shows/:key/program", s.Program, m.chain(middleware.OptionalJWT(iss))...)

	me := e.Group("/v1/me", m.chain(middleware.JWTAuth(iss))...)
	me.GET("", s.Me)
	me.GET("/favorites", s.ListFavorites)
	me.POST("/favorites/toggle", s.ToggleFavorite)
	me.GET("/theme", s.GetTheme)
	me.PUT("/theme", s.PutTheme)

	e.GET("/v1/shows/:key/favorites", s.ShowFavorites, m.chain(middleware.JWTAuth(iss))...)
}

// RegisterLive registers the live status snapshot, stream and mutations.
func RegisterLive(e *echo.Echo, l *handler.LiveHandler, iss *auth.Issuer, m Middleware) {
	e.GET("/v1/shows/:key/live", l.Snapshot, m.chain()...)
	e.GET("/v1/shows/:key/live/stream", l.Stream)

	w := e.Group("/v1/shows/:key/live", m.chain(middleware.JWTAuth(iss))...)
	w.POST("/act", l.SetAct)
	w.POST("/step", l.Step)
	w.POST("/toggle", l.Toggle)
}
