package postgres

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIdempotencyRecord_Replay(t *testing.T) {
	rec := IdempotencyRecord{Response: []byte(`{"ok":true}`)}
	r := rec.replay()
	assert.Equal(t, http.StatusOK, r.StatusCode)
	assert.Equal(t, "application/json", r.ContentType)
	assert.JSONEq(t, `{"ok":true}`, string(r.Body))

	rec = IdempotencyRecord{StatusCode: http.StatusConflict, ContentType: "application/problem+json"}
	r = rec.replay()
	assert.Equal(t, http.StatusConflict, r.StatusCode)
	assert.Equal(t, "application/problem+json", r.ContentType)
}

func TestNewIdempotencyStore_Defaults(t *testing.T) {
	s := NewIdempotencyStore(nil, 0)
	assert.Equal(t, "24h0m0s", s.ttl.String())
	assert.Equal(t, "1m0s", s.staleAfter.String())
}
