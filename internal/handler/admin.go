package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/real-estate-listings/internal/middleware"
	"github.com/iliyamo/real-estate-listings/internal/model"
	"github.com/iliyamo/real-estate-listings/internal/moderation"
)

// AdminHandler exposes the moderation workflow to ADMIN users.
type AdminHandler struct {
	Workflow *moderation.Workflow
	Now      func() time.Time
	Log      *slog.Logger
}

func NewAdminHandler(w *moderation.Workflow, log *slog.Logger) *AdminHandler {
	if w == nil {
		panic("nil workflow passed to NewAdminHandler")
	}
	if log == nil {
		log = slog.Default()
	}
	return &AdminHandler{Workflow: w, Now: time.Now, Log: log}
}

// Queue pages through listings. ?status=all|pending|approved|rejected,
// default pending; ?page starts at 1.
func (h *AdminHandler) Queue(c echo.Context) error {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	ctx, cancel := dbContext(c)
	defer cancel()
	q, err := h.Workflow.Queue(ctx, strings.ToLower(strings.TrimSpace(c.QueryParam("status"))), page)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"status": q.Status,
		"page":   q.Page,
		"pages":  q.Pages,
		"total":  q.Total,
		"items":  ownerViews(q.Items, h.Now().UTC()),
	})
}

func (h *AdminHandler) Approve(c echo.Context) error {
	return h.listingAction(c, h.Workflow.Approve)
}

// Reject also ends any promotion of the listing.
func (h *AdminHandler) Reject(c echo.Context) error {
	return h.listingAction(c, h.Workflow.Reject)
}

type featureReq struct {
	Days int `json:"days" query:"days" form:"days"`
}

// Feature promotes an approved listing for "days" days, from the JSON body
// or the query string. Missing, malformed or out-of-range values mean the
// default.
func (h *AdminHandler) Feature(c echo.Context) error {
	var req featureReq
	if err := c.Bind(&req); err != nil {
		req.Days = 0
	}
	if req.Days == 0 {
		req.Days, _ = strconv.Atoi(c.QueryParam("days"))
	}
	return h.listingAction(c, func(ctx context.Context, adminID, id uint64) (model.Listing, error) {
		return h.Workflow.Feature(ctx, adminID, id, req.Days)
	})
}

func (h *AdminHandler) Unfeature(c echo.Context) error {
	return h.listingAction(c, h.Workflow.Unfeature)
}

func (h *AdminHandler) listingAction(c echo.Context, op func(ctx context.Context, adminID, id uint64) (model.Listing, error)) error {
	adminID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	l, err := op(ctx, adminID, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, ownerView(l, h.Now().UTC()))
}

func (h *AdminHandler) Ban(c echo.Context) error {
	return h.userAction(c, h.Workflow.Ban)
}

func (h *AdminHandler) Unban(c echo.Context) error {
	return h.userAction(c, h.Workflow.Unban)
}

func (h *AdminHandler) userAction(c echo.Context, op func(ctx context.Context, adminID, userID uint64) (model.User, error)) error {
	adminID, ok := middleware.UserID(c)
	if !ok {
		return unauthorized(c)
	}
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	u, err := op(ctx, adminID, id)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, userView(u))
}

type setPlanReq struct {
	Plan string `json:"plan"`
}

// SetPlan changes a user's plan. It takes effect on the user's next quota
// check; existing listings are left alone.
func (h *AdminHandler) SetPlan(c echo.Context) error {
	id, ok := parseID(c, "id")
	if !ok {
		return badID(c)
	}
	var req setPlanReq
	if err := c.Bind(&req); err != nil || strings.TrimSpace(req.Plan) == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "plan required"})
	}
	ctx, cancel := dbContext(c)
	defer cancel()
	p, err := h.Workflow.SetPlan(ctx, id, req.Plan)
	if err != nil {
		return fail(c, h.Log, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"user_id": id, "plan": p})
}
