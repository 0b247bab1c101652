package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/real-estate-listings/internal/listing"
	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/plan"
	"github.com/iliyamo/real-estate-listings/internal/quota"
	"github.com/iliyamo/real-estate-listings/internal/repository"
)

// OwnerHandler serves the signed-in user's own listings under /v1/me.
type OwnerHandler struct {
	Service  *listing.Service
	Guard    *quota.Guard
	Images   *repository.ImageRepo
	StatRepo *repository.StatRepo
	Files    Linker
	Now      func() time.Time
	Log      *slog.Logger
}

// NewOwnerHandler panics if a required dependency is nil. files may be nil,
// in which case image URLs are left empty.
func NewOwnerHandler(svc *listing.Service, guard *quota.Guard, images *repository.ImageRepo, stats *repository.StatRepo, files Linker, log *slog.Logger) *OwnerHandler {
	if svc == nil || guard == nil || images == nil || stats == nil {
		panic("nil dependency passed to NewOwnerHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &OwnerHandler{Service: svc, Guard: guard, Images: images, StatRepo: stats, Files: files, Now: time.Now, Log: log}
}

func (h *OwnerHandler) now() time.Time { return h.Now().UTC() }

// Quota reports the plan, its limits and how many listings are active.
func (h *OwnerHandler) Quota(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	dec, err := h.Guard.Usage(ctx, actor.UserID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"plan":       dec.Plan,
		"limit":      dec.Limit,
		"active":     dec.Active,
		"remaining":  dec.Remaining(),
		"can_create": dec.Allowed,
		"max_images": plan.LimitsFor(dec.Plan).MaxImages,
	})
}

func (h *OwnerHandler) List(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	items, err := h.Service.ListMine(ctx, actor.UserID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"items": ownerViews(items, h.now())})
}

// Get returns one of the caller's listings with its images.
func (h *OwnerHandler) Get(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	l, err := h.Service.Get(ctx, actor, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return h.withImages(ctx, c, l)
}

// Create accepts a multipart form with the listing fields and optional
// images[] files. The listing starts pending moderation.
func (h *OwnerHandler) Create(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	var d listing.Draft
	if err := c.Bind(&d); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	files, err := readUploads(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid upload"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), uploadTimeout)
	defer cancel()
	l, res, err := h.Service.Create(ctx, actor, d, files)
	if err != nil {
		return fail(c, h.Log, err)
	}
	v := ownerView(l, h.now())
	v.Images = imageViews(ctx, h.Files, h.Log, res.Stored)
	return c.JSON(http.StatusCreated, echo.Map{
		"listing": v,
		"images":  attachSummary(res),
	})
}

// Update replaces the descriptive fields of a listing.
func (h *OwnerHandler) Update(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	var d listing.Draft
	if err := c.Bind(&d); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	l, err := h.Service.UpdateDetails(ctx, actor, id, d)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, ownerView(l, h.now()))
}

func (h *OwnerHandler) MarkSold(c echo.Context) error {
	return h.soldAction(c, h.Service.MarkSold)
}

// MarkAvailable answers 409 with the plan figures when the listing would
// exceed the owner's active limit.
func (h *OwnerHandler) MarkAvailable(c echo.Context) error {
	return h.soldAction(c, h.Service.MarkAvailable)
}

func (h *OwnerHandler) ToggleSold(c echo.Context) error {
	return h.soldAction(c, h.Service.ToggleSold)
}

func (h *OwnerHandler) soldAction(c echo.Context, op func(context.Context, listing.Actor, uint64) (model.Listing, error)) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	l, err := op(ctx, actor, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, ownerView(l, h.now()))
}

// AddImages attaches images[] files. Files beyond the plan's image limit are
// dropped and reported, not refused.
func (h *OwnerHandler) AddImages(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	files, err := readUploads(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid upload"})
	}
	if len(files) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "images[] required"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), uploadTimeout)
	defer cancel()
	res, err := h.Service.AttachImages(ctx, actor, id, files)
	if err != nil {
		return fail(c, h.Log, err)
	}
	out := attachSummary(res)
	out["items"] = imageViews(ctx, h.Files, h.Log, res.Stored)
	return c.JSON(http.StatusOK, out)
}

type deleteImagesReq struct {
	ImageIDs []uint64 `json:"image_ids"`
}

func (h *OwnerHandler) DeleteImages(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	var req deleteImagesReq
	if err := c.Bind(&req); err != nil || len(req.ImageIDs) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "image_ids required"})
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	n, err := h.Service.DeleteImages(ctx, actor, id, req.ImageIDs)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"deleted": n})
}

// Stats returns the listing's daily counters to its owner or an admin.
func (h *OwnerHandler) Stats(c echo.Context) error {
	actor, ok := actorOf(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	if _, err := h.Service.Get(ctx, actor, id); err != nil {
		return fail(c, h.Log, err)
	}
	stats, err := h.StatRepo.ListByListing(ctx, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	type day struct {
		Date          string `json:"date"`
		Views         int    `json:"views"`
		Saves         int    `json:"saves"`
		ContactClicks int    `json:"contact_clicks"`
	}
	days := make([]day, 0, len(stats))
	var total day
	for _, s := range stats {
		days = append(days, day{Date: s.Date.Format("2006-01-02"), Views: s.Views, Saves: s.Saves, ContactClicks: s.ContactClicks})
		total.Views += s.Views
		total.Saves += s.Saves
		total.ContactClicks += s.ContactClicks
	}
	return c.JSON(http.StatusOK, echo.Map{
		"listing_id": id,
		"days":       days,
		"totals":     echo.Map{"views": total.Views, "saves": total.Saves, "contact_clicks": total.ContactClicks},
	})
}

func (h *OwnerHandler) withImages(ctx context.Context, c echo.Context, l model.Listing) error {
	imgs, err := h.Images.ListByListing(ctx, l.ID)
	if err != nil {
		return fail(c, h.Log, err)
	}
	v := ownerView(l, h.now())
	v.Images = imageViews(ctx, h.Files, h.Log, imgs)
	return c.JSON(http.StatusOK, v)
}

func attachSummary(res listing.AttachResult) echo.Map {
	return echo.Map{"stored": len(res.Stored), "skipped": res.Skipped, "dropped": res.Dropped}
}

// readUploads collects the images[] files of a multipart request. Each file
// is read up to one byte past the size cap so oversized files are still
// recognized as such. A non-multipart request has no files.
func readUploads(c echo.Context) ([]listing.Upload, error) {
	form, err := c.MultipartForm()
	if errors.Is(err, http.ErrNotMultipart) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	headers := append(form.File["images[]"], form.File["images"]...)
	out := make([]listing.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			return nil, err
		}
		data, err := io.ReadAll(io.LimitReader(f, listing.MaxImageBytes+1))
		_ = f.Close()
		if err != nil {
			return nil, err
		}
		out = append(out, listing.Upload{Name: fh.Filename, Data: data})
	}
	return out, nil
}
