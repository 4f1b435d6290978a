package handlers

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v2"
)

// ErrorHandler answers every unhandled error with the failure envelope so
// callers always receive well-formed JSON
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		var fe *fiber.Error
		if errors.As(err, &fe) {
			code = fe.Code
		}

		errCode := "ERR_REQUEST"
		if code >= fiber.StatusInternalServerError {
			errCode = "ERR_INTERNAL"
			logger.Error("request failed", "path", c.Path(), "error", err)
		}
		return errorResponse(c, code, err.Error(), errCode)
	}
}
