// Package cache remembers topic verdicts in Redis so repeated questions skip
// the moderation call.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const (
	keyPrefix  = "findost:topic:"
	DefaultTTL = 24 * time.Hour
)

// redisAPI is the subset of *redis.Client used here.
type redisAPI interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
}

// Verdicts stores on-topic / off-topic decisions keyed by a digest of the
// normalized message.
type Verdicts struct {
	client redisAPI
	ttl    time.Duration
}

// Dial connects to the Redis instance at url and verifies it answers.
func Dial(ctx context.Context, url string) (*redis.Client, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("cache: redis url must not be empty")
	}
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("cache: parse url: %w", err)
	}
	c := redis.NewClient(opt)
	ctx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := c.Ping(ctx).Err(); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("cache: ping: %w", err)
	}
	return c, nil
}

// NewVerdicts wraps client. A non-positive ttl selects DefaultTTL.
func NewVerdicts(client redisAPI, ttl time.Duration) (*Verdicts, error) {
	if client == nil {
		return nil, errors.New("cache: redis client must not be nil")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Verdicts{client: client, ttl: ttl}, nil
}

// Lookup returns the cached verdict for message. A miss is reported through
// found, not as an error.
func (v *Verdicts) Lookup(ctx context.Context, message string) (onTopic bool, found bool, err error) {
	res, err := v.client.Get(ctx, Key(message)).Result()
	if errors.Is(err, redis.Nil) {
		return false, false, nil
	}
	if err != nil {
		return false, false, fmt.Errorf("cache: get: %w", err)
	}
	switch res {
	case "1":
		return true, true, nil
	case "0":
		return false, true, nil
	default:
		return false, false, fmt.Errorf("cache: unexpected verdict %q", res)
	}
}

func (v *Verdicts) Store(ctx context.Context, message string, onTopic bool) error {
	value := "0"
	if onTopic {
		value = "1"
	}
	if err := v.client.Set(ctx, Key(message), value, v.ttl).Err(); err != nil {
		return fmt.Errorf("cache: set: %w", err)
	}
	return nil
}

// Key returns the Redis key for message. Case and whitespace runs are
// normalized so trivially different spellings share a verdict.
func Key(message string) string {
	normalized := strings.Join(strings.Fields(strings.ToLower(message)), " ")
	sum := sha256.Sum256([]byte(normalized))
	return keyPrefix + hex.EncodeToString(sum[:])
}
