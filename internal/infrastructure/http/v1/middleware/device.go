package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	appctx "coopsync/internal/core/context"
)

const (
	HeaderDeviceID = "X-Device-ID"
	HeaderOperator = "X-Operator"
)

// Device puts the calling terminal's identity in the request context.
// Requests without X-Device-ID pass through; handlers that need a device
// fall back to the body and validate there.
func Device() gin.HandlerFunc {
	return func(c *gin.Context) {
		deviceID := strings.TrimSpace(c.GetHeader(HeaderDeviceID))
		if deviceID != "" {
			ctx := appctx.WithDevice(c.Request.Context(), &appctx.DeviceContext{
				DeviceID: deviceID,
				Operator: strings.TrimSpace(c.GetHeader(HeaderOperator)),
			})
			c.Request = c.Request.WithContext(ctx)
			c.Set("device_id", deviceID)
		}
		c.Next()
	}
}
