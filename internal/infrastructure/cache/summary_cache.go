package cache

import (
	"context"
	"errors"
	"time"

	"github.com/goccy/go-json"
	"github.com/redis/go-redis/v9"

	"coopsync/internal/core/id"
	"coopsync/internal/domain/inventory"
	"coopsync/pkg/logger"
)

const (
	summaryKeyPrefix    = "coopsync:inventory:summary:"
	generationKeyPrefix = "coopsync:inventory:summary-gen:"

	// generationTTL outlives any summary entry by far.
	generationTTL = 24 * time.Hour
)

var _ inventory.SummaryCache = (*SummaryCache)(nil)

// SummaryCache keeps inventory summaries for a short TTL so that terminals
// polling the same session share one computation.
type SummaryCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewSummaryCache(client *redis.Client, ttl time.Duration) *SummaryCache {
	if ttl <= 0 {
		ttl = 2 * time.Second
	}
	return &SummaryCache{client: client, ttl: ttl}
}

func summaryKey(sessionID id.ID) string {
	return summaryKeyPrefix + sessionID.String()
}

func generationKey(sessionID id.ID) string {
	return generationKeyPrefix + sessionID.String()
}

// Get treats every Redis failure as a miss.
func (c *SummaryCache) Get(ctx context.Context, sessionID id.ID) (*inventory.Summary, bool) {
	raw, err := c.client.Get(ctx, summaryKey(sessionID)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			logger.Warn(ctx, "summary cache read failed", "session_id", sessionID, "error", err)
		}
		return nil, false
	}

	var s inventory.Summary
	if err := json.Unmarshal(raw, &s); err != nil {
		logger.Warn(ctx, "summary cache entry corrupt", "session_id", sessionID, "error", err)
		return nil, false
	}
	return &s, true
}

// Generation returns -1 when Redis cannot answer, which no later Set matches.
func (c *SummaryCache) Generation(ctx context.Context, sessionID id.ID) int64 {
	gen, err := readGeneration(ctx, c.client, sessionID)
	if err != nil {
		logger.Warn(ctx, "summary cache generation read failed", "session_id", sessionID, "error", err)
		return -1
	}
	return gen
}

func readGeneration(ctx context.Context, cmd redis.Cmdable, sessionID id.ID) (int64, error) {
	gen, err := cmd.Get(ctx, generationKey(sessionID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	return gen, err
}

// Set writes under WATCH on the generation key, so an Invalidate landing
// between the check and the write aborts it.
func (c *SummaryCache) Set(ctx context.Context, s *inventory.Summary, gen int64) {
	if s == nil || s.Session == nil || gen < 0 {
		return
	}
	raw, err := json.Marshal(s)
	if err != nil {
		logger.Warn(ctx, "summary cache encode failed", "error", err)
		return
	}

	sessionID := s.Session.ID
	err = c.client.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := readGeneration(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if cur != gen {
			return errStaleSummary
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, summaryKey(sessionID), raw, c.ttl)
			return nil
		})
		return err
	}, generationKey(sessionID))

	switch {
	case err == nil:
	case errors.Is(err, errStaleSummary), errors.Is(err, redis.TxFailedErr):
		logger.Debug(ctx, "stale summary not cached", "session_id", sessionID)
	default:
		logger.Warn(ctx, "summary cache write failed", "session_id", sessionID, "error", err)
	}
}

var errStaleSummary = errors.New("summary invalidated while computed")

// Invalidate bumps the generation before dropping the entry.
func (c *SummaryCache) Invalidate(ctx context.Context, sessionID id.ID) {
	_, err := c.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, generationKey(sessionID))
		pipe.Expire(ctx, generationKey(sessionID), generationTTL)
		pipe.Del(ctx, summaryKey(sessionID))
		return nil
	})
	if err != nil {
		logger.Warn(ctx, "summary cache invalidation failed", "session_id", sessionID, "error", err)
	}
}
