package cache

import (
	"context"
	"fmt"
	"time"

	olriclib "github.com/olric-data/olric"
	"go.uber.org/zap"
)

// OlricConfig holds configuration for the shared-cache client.
type OlricConfig struct {
	// Servers is a list of Olric server addresses (e.g., ["localhost:3320"]).
	// If empty, defaults to ["localhost:3320"].
	Servers []string

	// DMap is the distributed map holding cached query results.
	// If empty, defaults to "query_cache".
	DMap string

	// Timeout is the timeout for client operations.
	// If zero, defaults to 10 seconds.
	Timeout time.Duration
}

// OlricCache invalidates entries in the deployment-shared Olric cache used
// by gateway-side installs where several clients see the same cached feeds.
type OlricCache struct {
	client  olriclib.Client
	dmap    olriclib.DMap
	timeout time.Duration
	logger  *zap.Logger
}

// NewOlricCache creates an Olric-backed cache client.
func NewOlricCache(cfg OlricConfig, logger *zap.Logger) (*OlricCache, error) {
	servers := cfg.Servers
	if len(servers) == 0 {
		servers = []string{"localhost:3320"}
	}
	name := cfg.DMap
	if name == "" {
		name = "query_cache"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	client, err := olriclib.NewClusterClient(servers)
	if err != nil {
		return nil, fmt.Errorf("failed to create Olric cluster client: %w", err)
	}
	dm, err := client.NewDMap(name)
	if err != nil {
		client.Close(context.Background())
		return nil, fmt.Errorf("failed to open DMap %q: %w", name, err)
	}

	return &OlricCache{
		client:  client,
		dmap:    dm,
		timeout: timeout,
		logger:  logger,
	}, nil
}

// Invalidate deletes key from the shared cache. A missing key is not an
// error.
func (c *OlricCache) Invalidate(ctx context.Context, key string) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if _, err := c.dmap.Delete(ctx, key); err != nil {
		return fmt.Errorf("olric delete failed: %w", err)
	}
	if c.logger != nil {
		c.logger.Debug("invalidated shared cache key", zap.String("key", key))
	}
	return nil
}

// Put stores a value under key in the shared cache.
func (c *OlricCache) Put(ctx context.Context, key string, value []byte) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.dmap.Put(ctx, key, value); err != nil {
		return fmt.Errorf("olric put failed: %w", err)
	}
	return nil
}

// Get returns the value for key from the shared cache.
func (c *OlricCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	gr, err := c.dmap.Get(ctx, key)
	if err != nil {
		if err == olriclib.ErrKeyNotFound {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("olric get failed: %w", err)
	}
	data, err := gr.Byte()
	if err != nil {
		return nil, false, fmt.Errorf("olric value decode failed: %w", err)
	}
	return data, true, nil
}

// Close closes the client connection.
func (c *OlricCache) Close(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	return c.client.Close(ctx)
}
