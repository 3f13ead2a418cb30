package middleware

import (
	"bytes"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"coopsync/internal/core/apperror"
	"coopsync/pkg/zstdjson"
)

const maxCompressedBodyBytes = 16 << 20

// Decompress inflates zstd request bodies so handlers bind plain JSON.
func Decompress() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.EqualFold(c.GetHeader("Content-Encoding"), zstdjson.Encoding) {
			c.Next()
			return
		}

		compressed, err := io.ReadAll(io.LimitReader(c.Request.Body, maxCompressedBodyBytes+1))
		if err != nil {
			_ = c.Error(apperror.NewValidation("unreadable request body").WithCause(err))
			c.Abort()
			return
		}
		if len(compressed) > maxCompressedBodyBytes {
			appErr := apperror.NewValidation("request body too large")
			appErr.HTTPStatus = http.StatusRequestEntityTooLarge
			_ = c.Error(appErr.WithDetail("max_bytes", maxCompressedBodyBytes))
			c.Abort()
			return
		}

		raw, err := zstdjson.Decompress(compressed)
		if err != nil {
			_ = c.Error(apperror.NewValidation("invalid zstd request body").WithCause(err))
			c.Abort()
			return
		}

		c.Request.Body = io.NopCloser(bytes.NewReader(raw))
		c.Request.ContentLength = int64(len(raw))
		c.Request.Header.Del("Content-Encoding")
		c.Next()
	}
}
