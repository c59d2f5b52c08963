package cache

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/rueidis"
)

// Client wraps Redis operations using rueidis. All methods are safe on
// a nil receiver so the service degrades gracefully when Redis is not
// configured.
type Client struct {
	redis rueidis.Client
}

// NewClient creates a new Redis client.
func NewClient(ctx context.Context, url string) (*Client, error) {
	opts, err := rueidis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client, err := rueidis.NewClient(opts)
	if err != nil {
		return nil, fmt.Errorf("create redis client: %w", err)
	}

	// Verify connection
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	return &Client{redis: client}, nil
}

// Close closes the Redis client.
func (c *Client) Close() {
	if c == nil {
		return
	}
	c.redis.Close()
}

// Ping checks if Redis is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if c == nil {
		return nil
	}
	return c.redis.Do(ctx, c.redis.B().Ping().Build()).Error()
}

// --- Wallet snapshot cache ---
//
// The wallet row in PostgreSQL is authoritative; this cache only
// shortens the plain read path. Every mutation invalidates eagerly and
// the TTL bounds staleness if an invalidation is lost.

// GetWalletSnapshot retrieves a cached wallet response body. Returns
// nil when absent.
func (c *Client) GetWalletSnapshot(ctx context.Context, walletID string) ([]byte, error) {
	if c == nil {
		return nil, nil
	}
	key := fmt.Sprintf("wallet_snapshot:%s", walletID)
	result, err := c.redis.Do(ctx, c.redis.B().Get().Key(key).Build()).AsBytes()
	if err != nil {
		if rueidis.IsRedisNil(err) {
			return nil, nil
		}
		return nil, err
	}
	return result, nil
}

// SetWalletSnapshot caches a wallet response body with TTL.
func (c *Client) SetWalletSnapshot(ctx context.Context, walletID string, body []byte, ttl time.Duration) error {
	if c == nil {
		return nil
	}
	key := fmt.Sprintf("wallet_snapshot:%s", walletID)
	return c.redis.Do(ctx,
		c.redis.B().Set().Key(key).Value(rueidis.BinaryString(body)).Ex(ttl).Build(),
	).Error()
}

// InvalidateWallet drops the cached snapshot after a mutation.
func (c *Client) InvalidateWallet(ctx context.Context, walletID string) error {
	if c == nil {
		return nil
	}
	key := fmt.Sprintf("wallet_snapshot:%s", walletID)
	return c.redis.Do(ctx, c.redis.B().Del().Key(key).Build()).Error()
}

// --- Rate Limiting ---

// CheckRateLimit checks if a caller has exceeded their rate limit.
// Returns true if the request is allowed, false if rate limited.
func (c *Client) CheckRateLimit(ctx context.Context, caller string, limitPerMinute int) (bool, error) {
	if c == nil {
		return true, nil
	}
	key := fmt.Sprintf("rate_limit:%s", caller)
	now := time.Now().Unix()
	windowStart := now - 60 // 1 minute window

	// Use a Lua script for atomic rate limiting
	script := `
		local key = KEYS[1]
		local now = tonumber(ARGV[1])
		local window_start = tonumber(ARGV[2])
		local limit = tonumber(ARGV[3])

		-- Remove old entries
		redis.call('ZREMRANGEBYSCORE', key, '-inf', window_start)

		-- Count current requests
		local count = redis.call('ZCARD', key)

		if count < limit then
			-- Add current request
			redis.call('ZADD', key, now, now .. ':' .. math.random())
			redis.call('EXPIRE', key, 60)
			return 1
		else
			return 0
		end
	`

	result, err := c.redis.Do(ctx,
		c.redis.B().Eval().Script(script).Numkeys(1).Key(key).Arg(
			fmt.Sprintf("%d", now),
			fmt.Sprintf("%d", windowStart),
			fmt.Sprintf("%d", limitPerMinute),
		).Build(),
	).ToInt64()

	if err != nil {
		return false, fmt.Errorf("check rate limit: %w", err)
	}

	return result == 1, nil
}
