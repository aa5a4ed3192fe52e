package middlewares

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"
)

// Recovery handles panics and returns a 500 error
func Recovery() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				if err := recover(); err != nil {
					logrus.Errorf("Panic recovered: %v", err)
					c.JSON(http.StatusInternalServerError, map[string]interface{}{"error": "Internal server error"})
				}
			}()
			return next(c)
		}
	}
}
