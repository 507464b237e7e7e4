package httpapi

import (
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/i474232898/aeroimpact/internal/impact"
	"github.com/i474232898/aeroimpact/internal/store"
	"github.com/i474232898/aeroimpact/internal/telemetry"
)

const (
	defaultListLimit    = 50
	maxListLimit        = 500
	defaultAnalyzeLimit = 10
	maxAnalyzeLimit     = 100
)

// impactRequest is the body of POST /api/impacts.
type impactRequest struct {
	FlightID  string    `json:"flight_id" validate:"required"`
	Callsign  *string   `json:"callsign"`
	Latitude  *float64  `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64  `json:"longitude" validate:"required,gte=-180,lte=180"`
	Altitude  float64   `json:"altitude"`
	Speed     *float64  `json:"speed"`
	Heading   *float64  `json:"heading"`
	Timestamp time.Time `json:"timestamp"`
}

func (r impactRequest) position() telemetry.FlightPosition {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	return telemetry.FlightPosition{
		FlightID:  r.FlightID,
		Callsign:  r.Callsign,
		Latitude:  *r.Latitude,
		Longitude: *r.Longitude,
		Altitude:  r.Altitude,
		Speed:     r.Speed,
		Heading:   r.Heading,
		Timestamp: ts,
	}
}

func registerImpactRoutes(api fiber.Router, d Deps) {
	api.Get("/health", func(c *fiber.Ctx) error {
		if err := d.Store.Ping(c.UserContext()); err != nil {
			return newError(fiber.StatusServiceUnavailable, "impact store unavailable", err)
		}
		return c.JSON(fiber.Map{"status": "ok"})
	})

	api.Post("/impacts", func(c *fiber.Ctx) error {
		var req impactRequest
		if err := c.BodyParser(&req); err != nil {
			return newError(fiber.StatusBadRequest, "invalid request body", err)
		}
		if err := validate.Struct(req); err != nil {
			return newError(fiber.StatusBadRequest, "invalid flight position", err)
		}

		imp, err := d.Impacts.Assess(c.UserContext(), req.position())
		if err != nil {
			return impactError(err)
		}
		return c.Status(fiber.StatusCreated).JSON(imp)
	})

	api.Get("/impacts", func(c *fiber.Ctx) error {
		limit, err := queryLimit(c, defaultListLimit, maxListLimit)
		if err != nil {
			return newError(fiber.StatusBadRequest, "invalid limit", err)
		}
		items, err := d.Store.List(c.UserContext(), limit)
		if err != nil {
			return newError(fiber.StatusInternalServerError, "failed to list impacts", err)
		}
		return c.JSON(items)
	})

	api.Get("/impacts/:id", func(c *fiber.Ctx) error {
		imp, err := d.Store.Get(c.UserContext(), c.Params("id"))
		if err != nil {
			return storeError(err)
		}
		return c.JSON(imp)
	})

	api.Delete("/impacts/:id", func(c *fiber.Ctx) error {
		if err := d.Store.Delete(c.UserContext(), c.Params("id")); err != nil {
			return storeError(err)
		}
		return c.SendStatus(fiber.StatusNoContent)
	})

	api.Post("/analyze-flights", func(c *fiber.Ctx) error {
		limit, err := queryLimit(c, defaultAnalyzeLimit, maxAnalyzeLimit)
		if err != nil {
			return newError(fiber.StatusBadRequest, "invalid limit", err)
		}
		res, err := d.Impacts.AnalyzeFlights(c.UserContext(), limit)
		if err != nil {
			return impactError(err)
		}
		return c.JSON(res)
	})

	api.Get("/stats", func(c *fiber.Ctx) error {
		st, err := d.Store.Stats(c.UserContext())
		if err != nil {
			return newError(fiber.StatusInternalServerError, "failed to compute stats", err)
		}
		return c.JSON(st)
	})
}

func impactError(err error) error {
	switch {
	case errors.Is(err, telemetry.ErrTelemetryUnavailable):
		return newError(fiber.StatusBadGateway, "OpenSky request failed", err)
	case errors.Is(err, impact.ErrSignalUnavailable):
		return newError(fiber.StatusBadGateway, "risk signal unavailable", err)
	case errors.Is(err, impact.ErrInvalidSignal):
		return newError(fiber.StatusBadGateway, "risk provider returned an invalid signal", err)
	default:
		return newError(fiber.StatusInternalServerError, "impact computation failed", err)
	}
}

func storeError(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return newError(fiber.StatusNotFound, "impact not found", nil)
	}
	return newError(fiber.StatusInternalServerError, "impact store failure", err)
}

func queryLimit(c *fiber.Ctx, def, upper int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 || n > upper {
		return 0, errors.New("limit must be an integer between 1 and " + strconv.Itoa(upper))
	}
	return n, nil
}
