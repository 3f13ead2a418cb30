// Package middleware holds the gin middleware of the central API.
package middleware

import (
	"errors"
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"

	"coopsync/internal/core/apperror"
	"coopsync/internal/metrics"
	"coopsync/pkg/logger"
)

// Recovery turns a handler panic into a 500. It writes the response itself:
// a panic unwinds past ErrorHandler.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if err, ok := rec.(error); ok && errors.Is(err, http.ErrAbortHandler) {
				panic(rec)
			}

			metrics.HTTPPanicsTotal.Inc()
			logger.Error(c.Request.Context(), "panic recovered",
				"route", c.FullPath(),
				"panic", rec,
				"stack", string(debug.Stack()),
			)
			if c.Writer.Written() {
				c.Abort()
				return
			}
			writeError(c, apperror.NewInternal(fmt.Errorf("panic: %v", rec)))
		}()
		c.Next()
	}
}
