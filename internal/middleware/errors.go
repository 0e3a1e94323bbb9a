package middleware

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/sudo-init-do/peerledger/internal/apperr"
)

// ErrorHandler renders ledger errors as {"error", "code", "field"} and echo errors as
// {"error"}. Anything unclassified is logged and reported as a 500 without details.
func ErrorHandler(logger *zap.Logger) echo.HTTPErrorHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		status := http.StatusInternalServerError
		body := echo.Map{"error": "internal server error"}

		var httpErr *echo.HTTPError
		var appErr *apperr.Error
		switch {
		case errors.As(err, &httpErr):
			status = httpErr.Code
			body["error"] = http.StatusText(status)
			if msg, ok := httpErr.Message.(string); ok {
				body["error"] = msg
			}
		case errors.As(err, &appErr) && appErr.Kind != apperr.KindInternal:
			status = apperr.HTTPStatus(appErr)
			body["error"] = appErr.Error()
			body["code"] = appErr.Code
			if appErr.Field != "" {
				body["field"] = appErr.Field
			}
		}

		if status >= http.StatusInternalServerError {
			logger.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}

		var writeErr error
		if c.Request().Method == http.MethodHead {
			writeErr = c.NoContent(status)
		} else {
			writeErr = c.JSON(status, body)
		}
		if writeErr != nil {
			logger.Warn("write error response", zap.Error(writeErr))
		}
	}
}
