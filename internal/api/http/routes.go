package httpapi

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/i474232898/umbrella-rain-service/internal/reading"
	"github.com/i474232898/umbrella-rain-service/internal/trafficgen"
)

var validate = newValidator()

// Pinger reports whether a backing dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// TrafficRunner produces one batch of synthetic readings.
type TrafficRunner interface {
	Run(ctx context.Context) trafficgen.Batch
}

// Options tunes the HTTP surface.
type Options struct {
	// CompatErrors answers every ingest failure with 200 {"error": ...}.
	CompatErrors bool
	// Ready is checked by /readyz. Nil means always ready.
	Ready  Pinger
	Logger *slog.Logger
}

// RegisterRoutes wires the HTTP handlers into the Fiber app.
func RegisterRoutes(app *fiber.App, service *reading.Service, traffic TrafficRunner, opts Options) {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	app.Post("/sendData", func(c *fiber.Ctx) error {
		in := reading.Input{
			DeviceID:    firstNonEmpty(c.FormValue("device_id"), c.FormValue("umbrella_id")),
			Temperature: c.FormValue("temperature"),
			Humidity:    c.FormValue("humidity"),
		}

		res, err := service.Ingest(c.UserContext(), in)
		if err != nil {
			if !reading.IsValidation(err) {
				logger.Error("ingest failed", "device_id", in.DeviceID, "error", err)
			}
			if opts.CompatErrors {
				return c.JSON(fiber.Map{"error": err.Error()})
			}
			if reading.IsValidation(err) {
				return fiber.NewError(fiber.StatusBadRequest, err.Error())
			}
			return fiber.NewError(fiber.StatusInternalServerError, "failed to score reading")
		}

		return c.JSON(res)
	})

	app.Get("/getPrediction", func(c *fiber.Ctx) error {
		q, err := parseDeviceQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		latest, err := service.Latest(c.UserContext(), q.DeviceID)
		if err != nil {
			if errors.Is(err, reading.ErrNotFound) {
				return fiber.NewError(fiber.StatusNotFound, "No data found for the given device_id")
			}
			logger.Error("latest lookup failed", "device_id", q.DeviceID, "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch prediction")
		}

		return c.JSON(latest)
	})

	app.Get("/getHistoricalData", func(c *fiber.Ctx) error {
		q, err := parseDeviceQuery(c)
		if err != nil {
			return fiber.NewError(fiber.StatusBadRequest, err.Error())
		}

		points, err := service.History(c.UserContext(), q.DeviceID)
		if err != nil {
			logger.Error("history lookup failed", "device_id", q.DeviceID, "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to fetch historical data")
		}

		return c.JSON(points)
	})

	deleteAll := func(c *fiber.Ctx) error {
		n, err := service.DeleteAll(c.UserContext())
		if err != nil {
			logger.Error("delete all failed", "error", err)
			return fiber.NewError(fiber.StatusInternalServerError, "failed to delete documents")
		}
		return c.JSON(fiber.Map{
			"status":  "success",
			"message": fmt.Sprintf("%d documents deleted.", n),
		})
	}
	app.Get("/delete_all", deleteAll)
	app.Delete("/delete_all", deleteAll)

	app.Get("/insertTestData", func(c *fiber.Ctx) error {
		if traffic == nil {
			return fiber.NewError(fiber.StatusServiceUnavailable, "synthetic traffic is not configured")
		}
		return c.JSON(traffic.Run(c.UserContext()))
	})

	app.Get("/readyz", func(c *fiber.Ctx) error {
		if opts.Ready != nil {
			if err := opts.Ready.Ping(c.UserContext()); err != nil {
				logger.Warn("readiness check failed", "error", err)
				return fiber.NewError(fiber.StatusServiceUnavailable, "event store unreachable")
			}
		}
		return c.JSON(fiber.Map{"status": "ready"})
	})

	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
}

// ErrorHandler renders every error as {"error": message}.
func ErrorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "internal server error"
	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}
	return c.Status(code).JSON(fiber.Map{"error": msg})
}

// deviceQuery holds the query parameters identifying a device.
type deviceQuery struct {
	DeviceID string `query:"device_id" validate:"required"`
}

// parseDeviceQuery reads device_id, falling back to the legacy umbrella_id.
func parseDeviceQuery(c *fiber.Ctx) (deviceQuery, error) {
	var q deviceQuery

	q.DeviceID = strings.TrimSpace(firstNonEmpty(c.Query("device_id"), c.Query("umbrella_id")))

	if err := validate.Struct(q); err != nil {
		return q, describe(err)
	}

	return q, nil
}

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("query"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return v
}

// describe turns validator output into a client-facing message.
func describe(err error) error {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) || len(verrs) == 0 {
		return err
	}
	fe := verrs[0]
	if fe.Tag() == "required" {
		return fmt.Errorf("%s is required", fe.Field())
	}
	return fmt.Errorf("%s is invalid", fe.Field())
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
