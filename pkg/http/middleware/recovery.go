package middleware

import (
	"fmt"
	"log"
	"net/http"
	"runtime/debug"

	applogger "FinCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// Recover keeps a panicking handler from taking the process down. The
// client gets a 500 with the standard status/message body; the stack goes
// to the application logger when one is configured.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				if l != nil {
					l.Error("panic recovered",
						applogger.String("path", c.Request().RequestURI),
						applogger.Error(err),
						applogger.String("stack", string(debug.Stack())),
					)
				} else {
					log.Printf("PANIC: %v\n%s", err, debug.Stack())
				}
				_ = c.JSON(http.StatusInternalServerError, echo.Map{
					"status":  "error",
					"message": "internal server error",
				})
			}()
			return next(c)
		}
	}
}
