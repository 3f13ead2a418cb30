package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"coopsync/internal/core/id"
)

func TestSummaryKey(t *testing.T) {
	sid := id.MustParse("0190f5a2-7b7e-7c3a-9d8e-123456789abc")
	assert.Equal(t, "coopsync:inventory:summary:0190f5a2-7b7e-7c3a-9d8e-123456789abc", summaryKey(sid))
	assert.Equal(t, "coopsync:inventory:summary-gen:0190f5a2-7b7e-7c3a-9d8e-123456789abc", generationKey(sid))
}

func TestNewSummaryCache_DefaultTTL(t *testing.T) {
	assert.Equal(t, 2*time.Second, NewSummaryCache(nil, 0).ttl)
	assert.Equal(t, time.Second, NewSummaryCache(nil, time.Second).ttl)
}

func TestNewLocker_DefaultTTL(t *testing.T) {
	assert.Equal(t, 5*time.Minute, NewLocker(nil, 0).ttl)
}
