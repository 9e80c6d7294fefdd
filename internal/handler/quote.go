package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/driveshare/rental-booking/internal/workflow"
)

// Quote prices a rental from the catalog query (price, pickup, return)
// without creating a draft. It is public and cached.
func Quote(c echo.Context) error {
	d := workflow.SeedFromQuery(c.QueryParams())
	if _, err := workflow.ParseDate(d.PickupDate); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "pickup must be a date"})
	}
	if _, err := workflow.ParseDate(d.ReturnDate); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "return must be a date"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"price_per_day": d.PricePerDay,
		"rental_days":   d.RentalDays(),
		"total_price":   d.TotalPrice(),
	})
}
