package neo4j

import (
	"context"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
)

// Config configures the pooled Neo4j driver shared by the query executor and
// the vector index.
type Config struct {
	URI            string `split_words:"true" required:"true"`
	Username       string `split_words:"true" default:"neo4j"`
	Password       string `split_words:"true"`
	Database       string `split_words:"true" default:"neo4j"`
	MaxPoolSize    int    `split_words:"true" default:"50"`
	AcquireTimeout int    `split_words:"true" default:"10"`
	DialTimeout    int    `split_words:"true" default:"5"`
}

// New creates the driver and verifies connectivity so the process fails fast
// when the store is unreachable at startup.
func (c *Config) New(ctx context.Context) (neo4j.DriverWithContext, error) {
	driver, err := neo4j.NewDriverWithContext(
		c.URI,
		neo4j.BasicAuth(c.Username, c.Password, ""),
		func(cfg *config.Config) {
			cfg.MaxConnectionPoolSize = c.MaxPoolSize
			cfg.ConnectionAcquisitionTimeout = time.Duration(c.AcquireTimeout) * time.Second
			cfg.SocketConnectTimeout = time.Duration(c.DialTimeout) * time.Second
		},
	)
	if err != nil {
		return nil, err
	}

	verifyCtx, cancel := context.WithTimeout(ctx, time.Duration(c.DialTimeout)*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(verifyCtx); err != nil {
		_ = driver.Close(ctx)
		return nil, err
	}

	return driver, nil
}
