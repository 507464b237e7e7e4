package httpapi

import (
	"context"
	"crypto/subtle"
	"errors"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/i474232898/aeroimpact/internal/impact"
	"github.com/i474232898/aeroimpact/internal/metrics"
	"github.com/i474232898/aeroimpact/internal/store"
	"github.com/i474232898/aeroimpact/internal/telemetry"
)

var validate = validator.New()

const internalTokenHeader = "X-Internal-Token"

// FlightSource serves the normalized flight list.
type FlightSource interface {
	GetFlights(ctx context.Context, filter telemetry.Filter) ([]telemetry.FlightPosition, error)
	Status() telemetry.SnapshotStatus
}

// ImpactService computes and persists impacts.
type ImpactService interface {
	Assess(ctx context.Context, pos telemetry.FlightPosition) (impact.Impact, error)
	AnalyzeFlights(ctx context.Context, limit int) (impact.AnalysisResult, error)
}

// Deps are the collaborators the HTTP surface is built on.
type Deps struct {
	Flights FlightSource
	Impacts ImpactService
	Store   store.ImpactStore
	Metrics *metrics.Metrics

	// InternalToken, when set, must be sent as X-Internal-Token on /api.
	InternalToken string
	// RateLimitPerMinute caps /api requests per client IP; 0 disables it.
	RateLimitPerMinute int
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, d Deps) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status":   "ok",
			"service":  "aeroimpact",
			"snapshot": d.Flights.Status(),
		})
	})

	app.Get("/flights", func(c *fiber.Ctx) error {
		filter, err := parseFilter(c)
		if err != nil {
			return newError(fiber.StatusBadRequest, "invalid flight filter", err)
		}

		flights, err := d.Flights.GetFlights(c.UserContext(), filter)
		if err != nil {
			return newError(fiber.StatusBadGateway, "OpenSky request failed", err)
		}
		if flights == nil {
			flights = []telemetry.FlightPosition{}
		}
		return c.JSON(flights)
	})

	if d.Metrics != nil {
		app.Get("/metrics", func(c *fiber.Ctx) error {
			c.Set(fiber.HeaderContentType, metrics.ContentType)
			return d.Metrics.WriteText(c)
		})
	}

	api := app.Group("/api", requestid.New())
	if d.InternalToken != "" {
		api.Use(requireToken(d.InternalToken))
	}
	if d.RateLimitPerMinute > 0 {
		api.Use(limiter.New(limiter.Config{
			Max:        d.RateLimitPerMinute,
			Expiration: time.Minute,
			LimitReached: func(c *fiber.Ctx) error {
				return newError(fiber.StatusTooManyRequests, "rate limit exceeded", nil)
			},
		}))
	}
	registerImpactRoutes(api, d)
}

func requireToken(token string) fiber.Handler {
	want := []byte(token)
	return func(c *fiber.Ctx) error {
		got := []byte(c.Get(internalTokenHeader))
		if subtle.ConstantTimeCompare(got, want) != 1 {
			return newError(fiber.StatusUnauthorized, "invalid or missing internal token", nil)
		}
		return c.Next()
	}
}

var bboxParams = [...]string{"lamin", "lomin", "lamax", "lomax"}

// parseFilter reads the optional bounding box and extended flag.
// The bounding box must be given as all four parameters or not at all.
func parseFilter(c *fiber.Ctx) (telemetry.Filter, error) {
	var filter telemetry.Filter

	var coords [len(bboxParams)]float64
	present := 0
	for i, name := range bboxParams {
		raw := c.Query(name)
		if raw == "" {
			continue
		}
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return filter, errors.New(name + " must be a number")
		}
		coords[i] = v
		present++
	}

	switch present {
	case 0:
	case len(bboxParams):
		bbox := &telemetry.BoundingBox{LaMin: coords[0], LoMin: coords[1], LaMax: coords[2], LoMax: coords[3]}
		if err := validate.Struct(bbox); err != nil {
			return filter, err
		}
		filter.BBox = bbox
	default:
		return filter, errors.New("lamin, lomin, lamax and lomax must be given together")
	}

	if raw := c.Query("extended"); raw != "" {
		ext, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New("extended must be 0, 1, true or false")
		}
		filter.Extended = ext
	}
	return filter, nil
}
