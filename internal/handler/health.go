package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/real-estate-listings/internal/plan"
)

// Health is used by load balancers to check the process is up.
func Health(c echo.Context) error {
	return c.String(http.StatusOK, "ok")
}

// Plans lists the subscription tiers and their limits.
func Plans(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"items": plan.All()})
}
