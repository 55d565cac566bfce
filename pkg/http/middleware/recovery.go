package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	applogger "OrgTrader/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover turns a handler panic into a 500 envelope and logs the stack.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}
				cause := fmt.Errorf("panic: %v", r)
				if l != nil {
					l.Error("http handler panic",
						applogger.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
						applogger.String("route", c.Path()),
						applogger.Error(cause),
						applogger.String("stack", string(debug.Stack())),
					)
				}
				c.Set(StatusKey, http.StatusInternalServerError)
				c.Set(ErrorKey, cause)
				if !c.Response().Committed {
					err = c.JSON(http.StatusInternalServerError, map[string]interface{}{
						"status":  http.StatusInternalServerError,
						"message": http.StatusText(http.StatusInternalServerError),
					})
				}
			}()
			return next(c)
		}
	}
}
