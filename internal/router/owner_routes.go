package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/real-estate-listings/internal/handler"
	"github.com/iliyamo/real-estate-listings/internal/middleware"
	"github.com/iliyamo/real-estate-listings/internal/model"
)

// RegisterOwner registers the signed-in user's endpoints under /v1/me.
// Admins use them too, and may act on any listing.
func RegisterOwner(e *echo.Echo, o *handler.OwnerHandler, f *handler.FavoriteHandler, jwtSecret string) {
	g := e.Group(
		"/v1/me",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleUser, model.RoleAdmin),
	)

	g.GET("/quota", o.Quota)

	// ---- Listings ----
	g.GET("/listings", o.List)
	g.POST("/listings", o.Create)
	g.GET("/listings/:id", o.Get)
	g.PUT("/listings/:id", o.Update)
	g.POST("/listings/:id/sold", o.MarkSold)
	g.POST("/listings/:id/available", o.MarkAvailable)
	g.POST("/listings/:id/toggle-sold", o.ToggleSold)
	g.POST("/listings/:id/images", o.AddImages)
	g.DELETE("/listings/:id/images", o.DeleteImages)
	g.GET("/listings/:id/stats", o.Stats)

	// ---- Favorites ----
	g.GET("/favorites", f.List)
	g.POST("/favorites/:id/toggle", f.Toggle)
}

// RegisterAdmin registers moderation endpoints under /v1/admin.
func RegisterAdmin(e *echo.Echo, a *handler.AdminHandler, jwtSecret string) {
	g := e.Group(
		"/v1/admin",
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(model.RoleAdmin),
	)

	g.GET("/listings", a.Queue)
	g.POST("/listings/:id/approve", a.Approve)
	g.POST("/listings/:id/reject", a.Reject)
	g.POST("/listings/:id/feature", a.Feature)
	g.POST("/listings/:id/unfeature", a.Unfeature)

	g.POST("/users/:id/ban", a.Ban)
	g.POST("/users/:id/unban", a.Unban)
	g.PUT("/users/:id/plan", a.SetPlan)
}
