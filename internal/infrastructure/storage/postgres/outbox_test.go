package postgres

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestRetryDelay(t *testing.T) {
	assert.Equal(t, time.Minute, retryDelay(0))
	assert.Equal(t, time.Minute, retryDelay(1))
	assert.Equal(t, 2*time.Minute, retryDelay(2))
	assert.Equal(t, 16*time.Minute, retryDelay(5))
	assert.Equal(t, maxOutboxBackoff, retryDelay(6))
	assert.Equal(t, maxOutboxBackoff, retryDelay(80))
}

func TestNewOutboxRelay_DefaultBatch(t *testing.T) {
	r := NewOutboxRelay(nil, 0, nil)
	assert.Equal(t, uint64(50), r.batchSize)
}
