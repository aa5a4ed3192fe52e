package middlewares

import (
	"net/http"

	"github.com/gabofunebre/backuper/models"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// ErrorHandler turns typed service errors into JSON responses. Every error
// kind maps to a fixed status; anything untyped is a 500 with a generic
// message so internals never leak.
func ErrorHandler() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			err := next(c)
			if err == nil {
				return nil
			}
			if httpErr, ok := err.(*echo.HTTPError); ok {
				return httpErr
			}
			kind := models.KindOf(err)
			if kind == "" {
				logrus.Error("Error request: ", err)
				return c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "Failed to process request"})
			}
			return c.JSON(statusFor(kind), map[string]interface{}{
				"error":   string(kind),
				"message": err.Error(),
			})
		}
	}
}

func statusFor(kind models.ErrorKind) int {
	switch kind {
	case models.ErrNotFound:
		return http.StatusNotFound
	case models.ErrInvalidSettings:
		return http.StatusBadRequest
	case models.ErrAuthRejected:
		return http.StatusUnauthorized
	case models.ErrAlreadyRunning:
		return http.StatusConflict
	case models.ErrUnvalidatedCredentials:
		return http.StatusUnprocessableEntity
	case models.ErrNotSupported:
		return http.StatusNotImplemented
	case models.ErrTimeout:
		return http.StatusGatewayTimeout
	case models.ErrUnreachable, models.ErrUnsupportedVersion,
		models.ErrIntegrityMismatch, models.ErrBackendUnavailable:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
