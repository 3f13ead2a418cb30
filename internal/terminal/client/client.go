// Package client talks to the central sync server on behalf of a terminal.
package client

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	gobreaker "github.com/sony/gobreaker/v2"

	"coopsync/internal/config"
	"coopsync/internal/core/apperror"
	appctx "coopsync/internal/core/context"
	"coopsync/internal/domain/opsync"
	"coopsync/internal/infrastructure/http/v1/dto"
	"coopsync/internal/infrastructure/http/v1/middleware"
	"coopsync/internal/metrics"
	"coopsync/internal/terminal/oplog"
	"coopsync/pkg/logger"
	"coopsync/pkg/zstdjson"
)

const breakerName = "central"

// maxResponseBody bounds what is read from the central server.
const maxResponseBody = 64 << 20

// ErrUnavailable is returned while the breaker refuses calls.
var ErrUnavailable = errors.New("central server unavailable")

// Client is an HTTP client for the central API guarded by a circuit breaker.
type Client struct {
	baseURL  string
	deviceID string
	timeout  time.Duration
	http     *http.Client
	cb       *gobreaker.CircuitBreaker[[]byte]
}

// New builds a client from terminal settings.
func New(cfg config.TerminalConfig) *Client {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	failures := cfg.BreakerFailures
	if failures == 0 {
		failures = 5
	}
	openFor := cfg.BreakerTimeout
	if openFor <= 0 {
		openFor = 30 * time.Second
	}

	metrics.CircuitBreakerState.WithLabelValues(breakerName).Set(0)

	cb := gobreaker.NewCircuitBreaker[[]byte](gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: 1,
		Timeout:     openFor,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= failures
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Info(context.Background(), "circuit breaker state change",
				"name", name, "from", from.String(), "to", to.String())
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateValue(to))
		},
		// Answers from a reachable server, even refusals, are not outages.
		IsSuccessful: func(err error) bool {
			if err == nil {
				return true
			}
			if appErr, ok := apperror.AsAppError(err); ok {
				return appErr.HTTPStatus < http.StatusInternalServerError
			}
			return false
		},
	})

	return &Client{
		baseURL:  strings.TrimRight(cfg.CentralURL, "/"),
		deviceID: cfg.DeviceID,
		timeout:  timeout,
		http:     &http.Client{},
		cb:       cb,
	}
}

func stateValue(s gobreaker.State) float64 {
	switch s {
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return 0
	}
}

// State reports the breaker state ("closed", "half-open", "open").
func (c *Client) State() string {
	return c.cb.State().String()
}

// Push sends a batch of pending entries. The idempotency key is derived from
// the operation ids so a retried batch replays the stored answer.
func (c *Client) Push(ctx context.Context, entries []oplog.Entry) (*opsync.PushResult, error) {
	req := dto.PushRequest{
		DeviceID:   c.deviceID,
		Operations: make([]dto.OperationDTO, len(entries)),
	}
	ids := make([]string, len(entries))
	for i, e := range entries {
		created := e.CreatedAt
		req.Operations[i] = dto.OperationDTO{
			ID:         e.ID,
			OpType:     e.OpType,
			EntityType: e.EntityType,
			EntityID:   e.EntityID,
			Payload:    e.Payload,
			CreatedAt:  &created,
		}
		ids[i] = e.ID
	}

	body, err := zstdjson.Marshal(&req)
	if err != nil {
		return nil, fmt.Errorf("encode push batch: %w", err)
	}

	headers := http.Header{}
	headers.Set("Content-Type", "application/json")
	headers.Set("Content-Encoding", zstdjson.Encoding)
	headers.Set(middleware.HeaderIdempotencyKey, BatchKey(ids))

	raw, err := c.do(ctx, http.MethodPost, "/api/v1/sync/push", body, headers)
	if err != nil {
		return nil, err
	}

	var result opsync.PushResult
	if err := json.Unmarshal(raw, &result); err != nil {
		return nil, fmt.Errorf("decode push result: %w", err)
	}
	return &result, nil
}

// PullRefs fetches the full reference snapshot as raw JSON.
func (c *Client) PullRefs(ctx context.Context) ([]byte, error) {
	headers := http.Header{}
	headers.Set("Accept-Encoding", zstdjson.Encoding)
	return c.do(ctx, http.MethodGet, "/api/v1/sync/refs", nil, headers)
}

// InventorySummary fetches a session summary as raw JSON.
func (c *Client) InventorySummary(ctx context.Context, sessionID string) ([]byte, error) {
	return c.do(ctx, http.MethodGet, "/api/v1/inventory/sessions/"+url.PathEscape(sessionID)+"/summary", nil, nil)
}

// BatchKey is the idempotency key for a push of the given operation ids.
func BatchKey(ids []string) string {
	sum := sha256.Sum256([]byte(strings.Join(ids, ",")))
	return "push-" + hex.EncodeToString(sum[:16])
}

func (c *Client) do(ctx context.Context, method, path string, body []byte, headers http.Header) ([]byte, error) {
	raw, err := c.cb.Execute(func() ([]byte, error) {
		return c.roundTrip(ctx, method, path, body, headers)
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return raw, err
}

func (c *Client) roundTrip(ctx context.Context, method, path string, body []byte, headers http.Header) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	for k, v := range headers {
		req.Header[k] = v
	}
	req.Header.Set(middleware.HeaderDeviceID, c.deviceID)
	if traceID := appctx.GetTraceID(ctx); traceID != "" {
		req.Header.Set(middleware.HeaderTraceID, traceID)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBody))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.Header.Get("Content-Encoding") == zstdjson.Encoding {
		if raw, err = zstdjson.Decompress(raw); err != nil {
			return nil, fmt.Errorf("decompress response: %w", err)
		}
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, remoteError(resp.StatusCode, raw)
	}
	return raw, nil
}

// remoteError turns an error body from the central server back into an AppError.
func remoteError(status int, raw []byte) *apperror.AppError {
	var body dto.ErrorResponse
	if err := json.Unmarshal(raw, &body); err != nil || body.Code == "" {
		body.Code = apperror.CodeInternal
		body.Message = strings.TrimSpace(string(raw))
		if body.Message == "" {
			body.Message = http.StatusText(status)
		}
	}
	return &apperror.AppError{
		Code:       body.Code,
		Message:    body.Message,
		Details:    body.Details,
		HTTPStatus: status,
	}
}
