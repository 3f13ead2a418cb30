package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"coopsync/internal/core/apperror"
	appctx "coopsync/internal/core/context"
	"coopsync/internal/infrastructure/storage/postgres"
)

const HeaderIdempotencyKey = "X-Idempotency-Key"

// Push batches are capped well below this by the handler.
const maxIdempotencyBodyBytes = 16 << 20

const ctxIdempotency = "coopsync.idempotency"

// IdempotencyStore is implemented by *postgres.IdempotencyStore.
type IdempotencyStore interface {
	AcquireKey(ctx context.Context, key postgres.IdempotencyKey, operation, requestHash string) (*postgres.IdempotencyReplay, error)
	CompleteKey(ctx context.Context, key postgres.IdempotencyKey, statusCode int, contentType string, response any) error
	FailKey(ctx context.Context, key postgres.IdempotencyKey, statusCode int, contentType string, response any) error
}

type heldKey struct {
	key   postgres.IdempotencyKey
	store IdempotencyStore
}

// Idempotency replays the first response of a write carrying an already
// seen X-Idempotency-Key from the same device.
func Idempotency(store IdempotencyStore) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader(HeaderIdempotencyKey)
		if raw == "" || !isWrite(c.Request.Method) {
			c.Next()
			return
		}

		requestHash, err := hashBody(c.Request)
		if err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}

		ctx := c.Request.Context()
		key := postgres.IdempotencyKey{DeviceID: appctx.GetDeviceID(ctx), Key: raw}
		operation := c.Request.Method + " " + c.FullPath()

		replay, err := store.AcquireKey(ctx, key, operation, requestHash)
		switch {
		case err != nil:
			if _, ok := apperror.AsAppError(err); !ok {
				err = apperror.NewInternal(err).WithDetail("component", "idempotency")
			}
			_ = c.Error(err)
			c.Abort()
		case replay != nil:
			c.Header("X-Idempotent-Replay", "true")
			c.Data(replay.StatusCode, replay.ContentType, replay.Body)
			c.Abort()
		default:
			c.Set(ctxIdempotency, heldKey{key: key, store: store})
			c.Next()
		}
	}
}

func isWrite(method string) bool {
	return method == http.MethodPost || method == http.MethodPut || method == http.MethodPatch
}

// hashBody reads the body once, restores it for the handler and returns its
// sha256 in hex.
func hashBody(r *http.Request) (string, error) {
	body, _ := io.ReadAll(io.LimitReader(r.Body, maxIdempotencyBodyBytes+1))
	if len(body) > maxIdempotencyBodyBytes {
		appErr := apperror.NewValidation("request body too large for idempotency")
		appErr.HTTPStatus = http.StatusRequestEntityTooLarge
		return "", appErr.WithDetail("max_bytes", maxIdempotencyBodyBytes)
	}
	r.Body = io.NopCloser(bytes.NewReader(body))
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

func held(c *gin.Context) (heldKey, bool) {
	v, ok := c.Get(ctxIdempotency)
	if !ok {
		return heldKey{}, false
	}
	h, ok := v.(heldKey)
	return h, ok && h.store != nil
}

// CompleteIdempotency records a successful response for replay.
func CompleteIdempotency(c *gin.Context, statusCode int, contentType string, response any) {
	if h, ok := held(c); ok {
		_ = h.store.CompleteKey(c.Request.Context(), h.key, statusCode, contentType, response)
	}
}

func failIdempotency(c *gin.Context, statusCode int, body any) {
	if h, ok := held(c); ok {
		_ = h.store.FailKey(c.Request.Context(), h.key, statusCode, "application/json", body)
	}
}
