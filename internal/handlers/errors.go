package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/Anuj5504/cloudbox/internal/apperr"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

type errorResponse struct {
	Error string      `json:"error"`
	Code  apperr.Kind `json:"code"`
}

// ErrorHandler renders every handler error as {"error", "code"} with the
// status of its kind.
func ErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			status int
			body   errorResponse
		)
		var he *echo.HTTPError
		if errors.As(err, &he) {
			status = he.Code
			body = errorResponse{Error: fmt.Sprint(he.Message), Code: kindForStatus(he.Code)}
		} else {
			kind := apperr.KindOf(err)
			status = apperr.HTTPStatus(kind)
			body = errorResponse{Error: apperr.PublicMessage(err), Code: kind}
		}

		if status >= http.StatusInternalServerError {
			log.Error("Request failed",
				zap.Error(err),
				zap.Int("status", status),
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
			)
		}

		if c.Request().Method == http.MethodHead {
			err = c.NoContent(status)
		} else {
			err = c.JSON(status, body)
		}
		if err != nil {
			log.Error("Failed to send error response", zap.Error(err))
		}
	}
}

func kindForStatus(status int) apperr.Kind {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return apperr.KindUnauthorized
	case http.StatusNotFound, http.StatusMethodNotAllowed:
		return apperr.KindNotFound
	case http.StatusBadRequest, http.StatusRequestEntityTooLarge, http.StatusUnsupportedMediaType:
		return apperr.KindInvalidInput
	case http.StatusConflict:
		return apperr.KindConflict
	case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return apperr.KindUpstream
	default:
		return apperr.KindInternal
	}
}

// RequestValidator plugs go-playground/validator into echo's c.Validate.
type RequestValidator struct {
	validate *validator.Validate
}

func NewRequestValidator() *RequestValidator {
	return &RequestValidator{validate: validator.New(validator.WithRequiredStructEnabled())}
}

func (v *RequestValidator) Validate(i interface{}) error {
	if err := v.validate.Struct(i); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return apperr.InvalidInput(fmt.Sprintf("field %s failed the %q check", fe.Field(), fe.Tag()))
		}
		return apperr.InvalidInput("invalid request")
	}
	return nil
}
