package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/valkey-io/valkey-go"

	"github.com/kjstillabower/climate-anomaly-service/internal/models"
)

// ValkeyCache implements Cache on a Valkey (or Redis-compatible) server.
type ValkeyCache struct {
	client valkey.Client
	prefix string
}

// NewValkeyCache dials addrs (comma-separated) and returns a cache using prefix
// for every key. An empty prefix defaults to "live".
func NewValkeyCache(addrs, prefix string) (*ValkeyCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:6379"}
	}
	client, err := valkey.NewClient(valkey.ClientOption{InitAddress: servers})
	if err != nil {
		return nil, fmt.Errorf("connect valkey: %w", err)
	}
	return NewValkeyCacheWithClient(client, prefix), nil
}

// NewValkeyCacheWithClient wraps an existing client.
func NewValkeyCacheWithClient(client valkey.Client, prefix string) *ValkeyCache {
	if prefix == "" {
		prefix = "live"
	}
	return &ValkeyCache{client: client, prefix: prefix}
}

func (c *ValkeyCache) key(k string) string {
	return fmt.Sprintf("%s:%s", c.prefix, strings.ReplaceAll(k, " ", "_"))
}

// Get implements Cache.Get.
func (c *ValkeyCache) Get(ctx context.Context, key string) (models.LiveObservation, bool, error) {
	payload, err := c.client.Do(ctx, c.client.B().Get().Key(c.key(key)).Build()).ToString()
	if err != nil {
		if valkey.IsValkeyNil(err) {
			return models.LiveObservation{}, false, nil
		}
		return models.LiveObservation{}, false, err
	}
	var obs models.LiveObservation
	if err := json.Unmarshal([]byte(payload), &obs); err != nil {
		return models.LiveObservation{}, false, err
	}
	return obs, true, nil
}

// Set implements Cache.Set. Sub-second TTLs are rounded up to one second.
func (c *ValkeyCache) Set(ctx context.Context, key string, value models.LiveObservation, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	if ttl < time.Second {
		ttl = time.Second
	}
	cmd := c.client.B().Set().Key(c.key(key)).Value(string(raw)).Ex(ttl).Build()
	return c.client.Do(ctx, cmd).Error()
}

// Ping checks if the server is reachable.
func (c *ValkeyCache) Ping(ctx context.Context) error {
	return c.client.Do(ctx, c.client.B().Ping().Build()).Error()
}

// Close releases the client connections.
func (c *ValkeyCache) Close() error {
	c.client.Close()
	return nil
}

var _ Cache = (*ValkeyCache)(nil)
