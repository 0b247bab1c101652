package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/real-estate-listings/internal/billing"
	"github.com/iliyamo/real-estate-listings/internal/listing"
	"github.com/iliyamo/real-estate-listings/internal/middleware"
	"github.com/iliyamo/real-estate-listings/internal/moderation"
	"github.com/iliyamo/real-estate-listings/internal/repository"
)

const (
	dbTimeout     = 5 * time.Second
	uploadTimeout = 30 * time.Second
)

// Linker turns a storage key into a URL clients can fetch.
type Linker interface {
	URL(ctx context.Context, key string) (string, error)
}

func dbContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// parseID reads a positive numeric path parameter.
func parseID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func badID(c echo.Context) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
}

func actorOf(c echo.Context) (listing.Actor, bool) {
	id, ok := middleware.UserID(c)
	return listing.Actor{UserID: id, Admin: middleware.IsAdmin(c)}, ok
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

// fail maps domain errors to status codes. Anything unrecognized is logged
// and reported as a database error.
func fail(c echo.Context, log *slog.Logger, err error) error {
	var (
		qe *listing.QuotaError
		ve *listing.ValidationError
	)
	switch {
	case errors.As(err, &qe):
		return c.JSON(http.StatusConflict, echo.Map{
			"error":  listing.ErrQuotaExceeded.Error(),
			"plan":   qe.Decision.Plan,
			"limit":  qe.Decision.Limit,
			"active": qe.Decision.Active,
		})
	case errors.As(err, &ve):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": listing.ErrInvalidDraft.Error(), "fields": ve.Fields})
	case errors.Is(err, listing.ErrBanned):
		return c.JSON(http.StatusForbidden, echo.Map{"error": err.Error()})
	case errors.Is(err, listing.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrListingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "listing not found"})
	case errors.Is(err, repository.ErrUserNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "user not found"})
	case errors.Is(err, moderation.ErrNotApproved), errors.Is(err, moderation.ErrSelfBan):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflicting request, retry"})
	case errors.Is(err, billing.ErrUnknownPlan):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	if log == nil {
		log = slog.Default()
	}
	log.Error("request failed", "method", c.Request().Method, "path", c.Path(), "err", err)
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
}
