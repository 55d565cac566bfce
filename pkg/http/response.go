package http

import (
	"errors"
	"net/http"

	"OrgTrader/pkg/http/middleware"

	"github.com/labstack/echo/v4"
)

// APIResponse is the envelope of every API response. The transport status is always 200;
// Status carries the outcome.
type APIResponse struct {
	Status  int         `json:"status"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ValidationError describes one rejected request field.
type ValidationError struct {
	Code    string                 `json:"code,omitempty"`
	Field   string                 `json:"field,omitempty"`
	Message string                 `json:"message,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
}

// DataResponse writes the envelope and records status for the metrics and logging
// middleware.
func DataResponse(c echo.Context, status int, data interface{}) error {
	c.Set(middleware.StatusKey, status)
	return c.JSON(http.StatusOK, APIResponse{Status: status, Message: http.StatusText(status), Data: data})
}

func SuccessResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusOK, data)
}

func BadRequestResponse(c echo.Context, data interface{}) error {
	return DataResponse(c, http.StatusBadRequest, data)
}

// AppErrorResponse writes an AppError with its status. Any other error becomes an opaque 500.
func AppErrorResponse(c echo.Context, err error) error {
	var appErr *AppError
	if !errors.As(err, &appErr) {
		appErr = InternalError("Something went wrong").WithError(err)
	}
	if appErr.Status >= http.StatusInternalServerError && appErr.Err != nil {
		c.Set(middleware.ErrorKey, appErr.Err)
	}
	return DataResponse(c, appErr.Status, []*AppError{appErr})
}
