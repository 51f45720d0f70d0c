// Package redis wraps a standalone go-redis client and exposes the
// distributed lock used to serialize ingest runs against a data root.
package redis

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

var ErrClientClosed = errors.New(errors.CodeInternal, "redis client is closed")

// Client wraps a single standalone redis connection. The ingest lock is the
// only consumer of Redis in this system, so only standalone mode and the
// handful of commands the lock needs are exposed.
type Client struct {
	rdb    *redis.Client
	logger logging.Logger
	mu     sync.RWMutex
	closed bool
}

// NewClient dials addr and verifies connectivity with a ping.
func NewClient(addr string, log logging.Logger) (*Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	client := &Client{rdb: rdb, logger: log}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx); err != nil {
		rdb.Close()
		return nil, errors.Wrap(err, errors.CodeDBConnectionError, "redis connection failed").WithDetail(addr)
	}

	log.Info("redis client connected", logging.String("addr", addr))
	return client, nil
}

func (c *Client) Ping(ctx context.Context) error {
	if c.isClosed() {
		return ErrClientClosed
	}
	return c.rdb.Ping(ctx).Err()
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	err := c.rdb.Close()
	if err != nil {
		c.logger.Error("failed to close redis client", logging.Err(err))
	} else {
		c.logger.Info("closed redis client")
	}
	return err
}

func (c *Client) isClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}
