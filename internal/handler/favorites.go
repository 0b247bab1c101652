package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/real-estate-listings/internal/middleware"
	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/repository"
)

// FavoriteHandler manages a user's saved listings.
type FavoriteHandler struct {
	Favorites *repository.FavoriteRepo
	Listings  *repository.ListingRepo
	Stats     *repository.StatRepo
	Now       func() time.Time
	Log       *slog.Logger
}

func NewFavoriteHandler(favs *repository.FavoriteRepo, listings *repository.ListingRepo, stats *repository.StatRepo, log *slog.Logger) *FavoriteHandler {
	if favs == nil || listings == nil || stats == nil {
		panic("nil repository passed to NewFavoriteHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &FavoriteHandler{Favorites: favs, Listings: listings, Stats: stats, Now: time.Now, Log: log}
}

// Toggle saves or unsaves an approved listing. Owners cannot save their
// own listings. A save counts toward the listing's daily stats.
func (h *FavoriteHandler) Toggle(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()

	l, err := h.Listings.GetByID(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if l.Status != model.StatusApproved {
		return fail(c, h.Log, repository.ErrListingNotFound)
	}
	if l.OwnerID == uid {
		return c.JSON(http.StatusForbidden, echo.Map{"error": "cannot save your own listing"})
	}
	now := h.Now().UTC()
	saved, err := h.Favorites.Toggle(ctx, uid, id, now)
	if err != nil {
		return fail(c, h.Log, err)
	}
	if saved {
		if err := h.Stats.Increment(ctx, id, repository.StatSaves, now); err != nil {
			h.Log.Warn("count save failed", "listing_id", id, "err", err)
		}
	}
	return c.JSON(http.StatusOK, echo.Map{"listing_id": id, "saved": saved})
}

// List returns the caller's saved listings, most recently saved first.
func (h *FavoriteHandler) List(c echo.Context) error {
	uid, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	items, err := h.Favorites.ListByUser(ctx, uid)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": publicViews(items, h.Now().UTC())})
}
