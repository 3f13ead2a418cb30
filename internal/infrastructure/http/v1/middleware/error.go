package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"coopsync/internal/core/apperror"
	"coopsync/internal/infrastructure/http/v1/dto"
	"coopsync/pkg/logger"
)

// ErrorHandler renders the last error a handler attached with c.Error as a
// dto.ErrorResponse. Causes are logged, never sent.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}
		writeError(c, c.Errors.Last().Err)
	}
}

func writeError(c *gin.Context, err error) {
	ctx := c.Request.Context()

	appErr, ok := apperror.AsAppError(err)
	if !ok {
		logger.Error(ctx, "unhandled error", "error", err)
		appErr = apperror.NewInternal(err)
	} else if appErr.Err != nil {
		logger.Error(ctx, "request error", "code", appErr.Code, "cause", appErr.Err)
	}

	body := dto.ErrorResponse{
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}
	status := appErr.HTTPStatus
	if status == 0 {
		status = http.StatusInternalServerError
	}
	if appErr.Code == apperror.CodeInternal {
		// Internal details stay in the log; the client gets the request id to quote.
		body.Message = "Internal server error"
		body.Details = map[string]any{"request_id": c.GetString("request_id")}
	}

	failIdempotency(c, status, body)
	c.AbortWithStatusJSON(status, body)
}
