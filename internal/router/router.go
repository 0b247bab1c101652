// Package router registers the HTTP routes of the API on an echo instance.
package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/real-estate-listings/internal/handler"
	"github.com/iliyamo/real-estate-listings/internal/middleware"
	"github.com/iliyamo/real-estate-listings/internal/model"
)

// RegisterRoutes registers routes that need no handler state.
func RegisterRoutes(e *echo.Echo) {
	e.GET("/healthz", handler.Health)
	e.GET("/v1/plans", handler.Plans)
}

// RegisterAuth registers session endpoints under /v1/auth and the identity
// endpoint /v1/me.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, jwtSecret string) {
	g := e.Group("/v1/auth")
	g.POST("/register", a.Register)
	g.POST("/login", a.Login)
	g.POST("/refresh", a.Refresh)
	// a bearer token is optional: without a refresh_token in the body it
	// signs the user out everywhere
	g.POST("/logout", a.Logout, middleware.OptionalJWT(jwtSecret))

	e.GET("/v1/me", a.Me,
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)
}

// RegisterPublic registers the unauthenticated browse endpoints. cache, when
// non-nil, wraps the list endpoints only; the detail and contact endpoints
// count every hit.
func RegisterPublic(e *echo.Echo, p *handler.PublicHandler, cache echo.MiddlewareFunc) {
	var mw []echo.MiddlewareFunc
	if cache != nil {
		mw = append(mw, cache)
	}
	e.GET("/v1/listings", p.Search, mw...)
	e.GET("/v1/listings/featured", p.Featured, mw...)
	e.GET("/v1/listings/:id", p.Get)
	e.POST("/v1/listings/:id/contact", p.Contact)
}
