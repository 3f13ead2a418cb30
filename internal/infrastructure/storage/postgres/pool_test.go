package postgres

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"

	"coopsync/internal/config"
)

func TestDefaultPoolConfig(t *testing.T) {
	cfg := DefaultPoolConfig(config.DatabaseConfig{
		URL:      "postgres://localhost/coopsync",
		MaxConns: 12,
		MinConns: 2,
	}, "coopsync-worker")

	assert.Equal(t, "postgres://localhost/coopsync", cfg.DSN)
	assert.Equal(t, "coopsync-worker", cfg.AppName)
	assert.Equal(t, int32(12), cfg.MaxConns)
	assert.Equal(t, int32(2), cfg.MinConns)
	assert.Equal(t, time.Hour, cfg.MaxConnLifetime)
}

func TestPoolCollector_Describe(t *testing.T) {
	c := newPoolCollector(nil)

	ch := make(chan *prometheus.Desc, 16)
	c.Describe(ch)
	close(ch)

	n := 0
	for d := range ch {
		assert.Contains(t, d.String(), "db_pool_")
		n++
	}
	assert.Equal(t, 7, n)
}
