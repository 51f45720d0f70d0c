// Package opensearch implements the lexical half of hybrid retrieval: a
// single-index BM25 store keyed by chunk_id, built on top of the low-level
// opensearch-go request API.
package opensearch

import (
	"context"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/opensearch-project/opensearch-go/v2"

	"github.com/patentsearch/evidence-engine/internal/infrastructure/monitoring/logging"
	"github.com/patentsearch/evidence-engine/pkg/errors"
)

const defaultHealthCheckInterval = 30 * time.Second

// ClientConfig holds the configuration for the OpenSearch client.
type ClientConfig struct {
	Addresses           []string
	Username            string
	Password            string
	MaxRetries          int
	RetryBackoff        time.Duration
	MaxIdleConnsPerHost int
	HealthCheckInterval time.Duration
}

// Client wraps an opensearch-go client with connectivity health tracking.
type Client struct {
	client  *opensearch.Client
	logger  logging.Logger
	healthy atomic.Bool
	cancel  context.CancelFunc
}

// NewClient dials the cluster at cfg.Addresses, verifies connectivity with a
// ping, and starts a background health-check loop.
func NewClient(cfg ClientConfig, logger logging.Logger) (*Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, errors.New(errors.CodeValidation, "opensearch: at least one address is required")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff == 0 {
		cfg.RetryBackoff = 100 * time.Millisecond
	}
	if cfg.MaxIdleConnsPerHost == 0 {
		cfg.MaxIdleConnsPerHost = 10
	}
	if cfg.HealthCheckInterval == 0 {
		cfg.HealthCheckInterval = defaultHealthCheckInterval
	}

	osCfg := opensearch.Config{
		Addresses:     cfg.Addresses,
		Username:      cfg.Username,
		Password:      cfg.Password,
		MaxRetries:    cfg.MaxRetries,
		RetryBackoff:  func(i int) time.Duration { return cfg.RetryBackoff },
		Transport:     &http.Transport{MaxIdleConnsPerHost: cfg.MaxIdleConnsPerHost},
		RetryOnStatus: []int{502, 503, 504, 429},
	}

	osClient, err := opensearch.NewClient(osCfg)
	if err != nil {
		return nil, errors.Wrap(err, errors.CodeInternal, "failed to create opensearch client")
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Client{client: osClient, logger: logger, cancel: cancel}

	pingCtx, pingCancel := context.WithTimeout(ctx, 5*time.Second)
	defer pingCancel()
	if err := c.Ping(pingCtx); err != nil {
		cancel()
		return nil, errors.Wrap(err, errors.CodeDBConnectionError, "opensearch connection failed")
	}

	go c.runHealthCheck(ctx, cfg.HealthCheckInterval)

	return c, nil
}

// Ping checks connectivity to the cluster.
func (c *Client) Ping(ctx context.Context) error {
	resp, err := c.client.Ping(c.client.Ping.WithContext(ctx))
	if err != nil {
		c.healthy.Store(false)
		return err
	}
	defer resp.Body.Close()

	if resp.IsError() {
		c.healthy.Store(false)
		return errors.New(errors.CodeDBConnectionError, "opensearch ping returned error status")
	}
	c.healthy.Store(true)
	return nil
}

// IsHealthy reports whether the last health check succeeded.
func (c *Client) IsHealthy() bool {
	return c.healthy.Load()
}

// Raw returns the underlying opensearch-go client for request construction.
func (c *Client) Raw() *opensearch.Client {
	return c.client
}

// Close stops the background health-check loop.
func (c *Client) Close() error {
	c.cancel()
	c.logger.Info("opensearch client closed")
	return nil
}

func (c *Client) runHealthCheck(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			prev := c.healthy.Load()
			err := c.Ping(ctx)
			curr := c.healthy.Load()
			if prev && !curr {
				c.logger.Error("opensearch cluster became unhealthy", logging.Err(err))
			} else if !prev && curr {
				c.logger.Info("opensearch cluster recovered")
			}
		}
	}
}
