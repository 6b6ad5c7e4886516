// Package redis provides the Redis-backed query cache. Poller
// replicas share it, so a view computed by one replica serves the
// rest until its TTL lapses.
package redis

import (
	"time"
)

// Config contains Redis connection configuration.
type Config struct {
	// Address is the server address (host:port).
	Address string

	// Password authenticates the connection. Empty skips AUTH.
	Password string

	// DB selects the logical database.
	DB int

	// KeyPrefix namespaces every key so one server can carry
	// several deployments.
	KeyPrefix string

	// DialTimeout bounds connection establishment, including the
	// probe NewCache performs.
	DialTimeout time.Duration

	// ReadTimeout bounds socket reads.
	ReadTimeout time.Duration

	// WriteTimeout bounds socket writes.
	WriteTimeout time.Duration

	// MaxRetries bounds command retries inside the client.
	MaxRetries int

	// PoolSize caps the connection pool.
	PoolSize int

	// MinIdleConns keeps warm connections for polling bursts.
	MinIdleConns int
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	return Config{
		Address:      "localhost:6379",
		KeyPrefix:    "tracker:",
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		MaxRetries:   3,
		PoolSize:     10,
		MinIdleConns: 2,
	}
}

// ConfigOption configures the Redis connection.
type ConfigOption func(*Config)

// WithAddress sets the server address.
func WithAddress(addr string) ConfigOption {
	return func(c *Config) {
		c.Address = addr
	}
}

// WithPassword sets the authentication password.
func WithPassword(password string) ConfigOption {
	return func(c *Config) {
		c.Password = password
	}
}

// WithDB selects the logical database.
func WithDB(db int) ConfigOption {
	return func(c *Config) {
		c.DB = db
	}
}

// WithKeyPrefix sets the key namespace.
func WithKeyPrefix(prefix string) ConfigOption {
	return func(c *Config) {
		c.KeyPrefix = prefix
	}
}

// WithMaxRetries bounds command retries inside the client.
func WithMaxRetries(n int) ConfigOption {
	return func(c *Config) {
		c.MaxRetries = n
	}
}

// WithPool sizes the connection pool.
func WithPool(size, minIdle int) ConfigOption {
	return func(c *Config) {
		c.PoolSize = size
		c.MinIdleConns = minIdle
	}
}

// WithTimeouts sets the dial, read, and write timeouts.
func WithTimeouts(dial, read, write time.Duration) ConfigOption {
	return func(c *Config) {
		c.DialTimeout = dial
		c.ReadTimeout = read
		c.WriteTimeout = write
	}
}
