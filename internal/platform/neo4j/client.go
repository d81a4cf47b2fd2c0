// Package neo4j mirrors committed terms and graph edges into Neo4j so the
// term graph can be explored with Cypher. Postgres remains the source of
// truth; the mirror is written after the fact and may lag.
package neo4j

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/phrazzld/lexis-api/internal/config"
)

// ErrDisabled is returned by NewClient when no URI is configured.
var ErrDisabled = errors.New("neo4j is not configured")

const connectTimeout = 10 * time.Second

// Client wraps a driver bound to one database.
type Client struct {
	driver   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// NewClient opens a driver and verifies connectivity.
func NewClient(ctx context.Context, cfg config.Neo4jConfig, logger *slog.Logger) (*Client, error) {
	if !cfg.Enabled() {
		return nil, ErrDisabled
	}
	if logger == nil {
		logger = slog.Default()
	}

	user := cfg.Username
	if user == "" {
		user = "neo4j"
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(user, cfg.Password, ""),
		func(c *neo4j.Config) {
			c.SocketConnectTimeout = connectTimeout
		})
	if err != nil {
		return nil, fmt.Errorf("neo4j: init driver: %w", err)
	}

	verifyCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j: verify connectivity: %w", err)
	}

	return &Client{
		driver:   driver,
		database: cfg.Database,
		logger:   logger.With(slog.String("component", "neo4j")),
	}, nil
}

// Close releases the driver.
func (c *Client) Close(ctx context.Context) error {
	if c == nil || c.driver == nil {
		return nil
	}
	return c.driver.Close(ctx)
}
