package handler

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/repository"
)

const (
	browsePageSize = 20
	featuredLimit  = 12
)

// PublicHandler serves the unauthenticated browse API. Only approved
// listings are ever visible here.
type PublicHandler struct {
	Listings *repository.ListingRepo
	Images   *repository.ImageRepo
	Stats    *repository.StatRepo
	Files    Linker
	Now      func() time.Time
	Log      *slog.Logger
}

func NewPublicHandler(listings *repository.ListingRepo, images *repository.ImageRepo, stats *repository.StatRepo, files Linker, log *slog.Logger) *PublicHandler {
	if listings == nil || images == nil || stats == nil {
		panic("nil repository passed to NewPublicHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &PublicHandler{Listings: listings, Images: images, Stats: stats, Files: files, Now: time.Now, Log: log}
}

func (h *PublicHandler) now() time.Time { return h.Now().UTC() }

// Search lists approved, unsold listings. Query parameters: city, type
// (sale|rent), min_price, max_price and page.
func (h *PublicHandler) Search(c echo.Context) error {
	f := repository.SearchFilter{
		City:  strings.TrimSpace(c.QueryParam("city")),
		Limit: browsePageSize,
	}
	switch t := strings.ToLower(c.QueryParam("type")); t {
	case "", model.TypeSale, model.TypeRent:
		f.Type = t
	default:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "type must be sale or rent"})
	}
	var ok bool
	if f.MinPrice, ok = priceParam(c, "min_price"); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid min_price"})
	}
	if f.MaxPrice, ok = priceParam(c, "max_price"); !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid max_price"})
	}
	page := 1
	if p, err := strconv.Atoi(c.QueryParam("page")); err == nil && p > 1 {
		page = p
	}
	f.Offset = (page - 1) * browsePageSize

	ctx, cancel := dbContext(c)
	defer cancel()
	now := h.now()
	items, total, err := h.Listings.Search(ctx, f, now)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"items": publicViews(items, now),
		"page":  page,
		"pages": max(1, (total+browsePageSize-1)/browsePageSize),
		"total": total,
	})
}

func priceParam(c echo.Context, name string) (float64, bool) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, true
	}
	v, err := strconv.ParseFloat(raw, 64)
	return v, err == nil && v >= 0
}

// Featured returns listings whose promotion window is open.
func (h *PublicHandler) Featured(c echo.Context) error {
	ctx, cancel := dbContext(c)
	defer cancel()
	now := h.now()
	items, err := h.Listings.ListFeatured(ctx, now, featuredLimit)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": publicViews(items, now)})
}

// Get returns an approved listing with its images and counts a view.
func (h *PublicHandler) Get(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	l, err := h.visible(c, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	imgs, err := h.Images.ListByListing(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	now := h.now()
	if err := h.Stats.Increment(ctx, id, repository.StatViews, now); err != nil {
		h.Log.Warn("count view failed", "listing_id", id, "err", err)
	}
	v := publicView(l, now)
	v.Images = imageViews(ctx, h.Files, h.Log, imgs)
	return c.JSON(http.StatusOK, v)
}

// Contact counts a click on the owner's contact details.
func (h *PublicHandler) Contact(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	if _, err := h.visible(c, id); err != nil {
		return fail(c, h.Log, err)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if err := h.Stats.Increment(ctx, id, repository.StatContactClicks, h.now()); err != nil {
		return fail(c, h.Log, err)
	}
	return c.NoContent(http.StatusNoContent)
}

// visible loads a listing the public may see. Anything not approved reads
// as missing.
func (h *PublicHandler) visible(c echo.Context, id uint64) (model.Listing, error) {
	ctx, cancel := dbContext(c)
	defer cancel()
	l, err := h.Listings.GetByID(ctx, id)
	if err != nil {
		return model.Listing{}, err
	}
	if l.Status != model.StatusApproved {
		return model.Listing{}, repository.ErrListingNotFound
	}
	return l, nil
}
