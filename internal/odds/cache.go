package odds

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// CachedProvider wraps a primary Provider with a Redis read-through cache.
// The odds-refresh job and cashout valuations hit the same events
// repeatedly; the cache bounds external calls to one per key per TTL.
// Cache failures fall through to the primary — Redis is an optimization,
// never a correctness dependency.
type CachedProvider struct {
	primary Provider
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedProvider creates a cached wrapper around a primary provider.
func NewCachedProvider(primary Provider, rdb *redis.Client, ttl time.Duration) *CachedProvider {
	return &CachedProvider{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

func (c *CachedProvider) GetEventOdds(ctx context.Context, sportKey, externalID string) (*EventOdds, error) {
	key := oddsKey(sportKey, externalID)

	// Try cache.
	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cached EventOdds
		if json.Unmarshal(data, &cached) == nil {
			return &cached, nil
		}
	}

	// Cache miss: fetch from primary.
	out, err := c.primary.GetEventOdds(ctx, sportKey, externalID)
	if err != nil {
		return nil, err
	}
	if out == nil {
		// "No prices" is not cached; the next call may succeed.
		return nil, nil
	}

	if data, err := json.Marshal(out); err == nil {
		c.rdb.Set(ctx, key, data, c.ttl)
	}
	return out, nil
}

func (c *CachedProvider) GetScores(ctx context.Context, sportKey string) ([]EventScore, error) {
	key := scoresKey(sportKey)

	data, err := c.rdb.Get(ctx, key).Bytes()
	if err == nil {
		var cached []EventScore
		if json.Unmarshal(data, &cached) == nil {
			return cached, nil
		}
	}

	scores, err := c.primary.GetScores(ctx, sportKey)
	if err != nil {
		return nil, err
	}

	if data, err := json.Marshal(scores); err == nil {
		c.rdb.Set(ctx, key, data, c.ttl)
	}
	return scores, nil
}

func oddsKey(sport, id string) string { return fmt.Sprintf("odds:%s:%s", sport, id) }
func scoresKey(sport string) string   { return fmt.Sprintf("scores:%s", sport) }
