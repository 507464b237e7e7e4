package httpapi

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// apiError is rendered as {"error": Message, "details": Details}.
type apiError struct {
	Status  int
	Message string
	Details string
}

func (e *apiError) Error() string {
	if e.Details == "" {
		return e.Message
	}
	return e.Message + ": " + e.Details
}

func newError(status int, msg string, cause error) *apiError {
	e := &apiError{Status: status, Message: msg}
	if cause != nil {
		e.Details = cause.Error()
	}
	return e
}

// ErrorHandler is the fiber error handler shared by every route.
func ErrorHandler(c *fiber.Ctx, err error) error {
	body := fiber.Map{}
	status := fiber.StatusInternalServerError

	var ae *apiError
	var fe *fiber.Error
	switch {
	case errors.As(err, &ae):
		status = ae.Status
		body["error"] = ae.Message
		if ae.Details != "" {
			body["details"] = ae.Details
		}
	case errors.As(err, &fe):
		status = fe.Code
		body["error"] = fe.Message
	default:
		body["error"] = "internal server error"
		body["details"] = err.Error()
	}

	if status >= fiber.StatusInternalServerError {
		slog.Error("http: request failed",
			"method", c.Method(),
			"path", c.Path(),
			"status", status,
			"err", err)
	}
	return c.Status(status).JSON(body)
}
