package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/verifyai/verifyai/internal/models"
)

// VerdictCache fronts the ledger with redis: the latest verdict per digest
// plus a pending marker while a run is in flight. A nil *VerdictCache is
// valid and treats every lookup as a miss, so deployments without redis
// just skip the layer.
type VerdictCache struct {
	client *redis.Client
	ttl    time.Duration
	log    zerolog.Logger
}

type Config struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

func New(ctx context.Context, cfg Config, logger zerolog.Logger) (*VerdictCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	ttl := cfg.TTL
	if ttl == 0 {
		ttl = 10 * time.Minute
	}

	return &VerdictCache{
		client: client,
		ttl:    ttl,
		log:    logger.With().Str("component", "cache").Logger(),
	}, nil
}

func verdictKey(digest string) string { return "verifyai:verdict:" + digest }
func pendingKey(digest string) string { return "verifyai:pending:" + digest }

// GetVerdict returns the cached latest verdict, or (nil, false) on miss.
func (c *VerdictCache) GetVerdict(ctx context.Context, digest string) (*models.Verdict, bool) {
	if c == nil {
		return nil, false
	}

	raw, err := c.client.Get(ctx, verdictKey(digest)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false
	}
	if err != nil {
		c.log.Warn().Err(err).Msg("verdict cache read failed")
		return nil, false
	}

	var verdict models.Verdict
	if err := json.Unmarshal(raw, &verdict); err != nil {
		return nil, false
	}
	return &verdict, true
}

func (c *VerdictCache) SetVerdict(ctx context.Context, verdict *models.Verdict) {
	if c == nil {
		return
	}

	raw, err := json.Marshal(verdict)
	if err != nil {
		return
	}
	if err := c.client.Set(ctx, verdictKey(verdict.Digest), raw, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("verdict cache write failed")
	}
}

// MarkPending records an in-flight run for the digest.
func (c *VerdictCache) MarkPending(ctx context.Context, digest, runID string) {
	if c == nil {
		return
	}
	if err := c.client.Set(ctx, pendingKey(digest), runID, c.ttl).Err(); err != nil {
		c.log.Warn().Err(err).Msg("pending marker write failed")
	}
}

// ClearPending removes the in-flight marker once the run is terminal.
func (c *VerdictCache) ClearPending(ctx context.Context, digest string) {
	if c == nil {
		return
	}
	if err := c.client.Del(ctx, pendingKey(digest)).Err(); err != nil {
		c.log.Warn().Err(err).Msg("pending marker delete failed")
	}
}

// IsPending reports whether a run is known to be in flight.
func (c *VerdictCache) IsPending(ctx context.Context, digest string) bool {
	if c == nil {
		return false
	}
	exists, err := c.client.Exists(ctx, pendingKey(digest)).Result()
	if err != nil {
		return false
	}
	return exists > 0
}

func (c *VerdictCache) Close() error {
	if c == nil {
		return nil
	}
	return c.client.Close()
}
