package serve

import (
	"log/slog"
	"time"
)

// Defaults for a Server.
const (
	DefaultHTTPAddress       = "127.0.0.1:8080"
	DefaultWebsocketAddress  = "127.0.0.1:8082"
	DefaultReadHeaderTimeout = 10 * time.Second
	DefaultShutdownTimeout   = 5 * time.Second
	DefaultMaxBodySize       = 10 << 20
)

type serverConfig struct {
	logger            *slog.Logger
	address           string
	configFunc        string
	readHeaderTimeout time.Duration
	shutdownTimeout   time.Duration
	maxBodySize       int64
}

func defaultServerConfig() serverConfig {
	return serverConfig{
		logger:            slog.Default(),
		readHeaderTimeout: DefaultReadHeaderTimeout,
		shutdownTimeout:   DefaultShutdownTimeout,
		maxBodySize:       DefaultMaxBodySize,
	}
}

// Option configures a Server.
type Option func(*serverConfig)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *serverConfig) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithAddress fixes the listen address, overriding the component's own
// config export.
func WithAddress(addr string) Option {
	return func(c *serverConfig) {
		c.address = addr
	}
}

// WithConfigFunc names the component export answering {"address": ...}.
func WithConfigFunc(fn string) Option {
	return func(c *serverConfig) {
		c.configFunc = fn
	}
}

// WithReadHeaderTimeout bounds how long a client may take to send headers.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(c *serverConfig) {
		if d > 0 {
			c.readHeaderTimeout = d
		}
	}
}

// WithShutdownTimeout bounds the graceful drain once serving stops.
func WithShutdownTimeout(d time.Duration) Option {
	return func(c *serverConfig) {
		if d > 0 {
			c.shutdownTimeout = d
		}
	}
}

// WithMaxBodySize caps request bodies in bytes.
func WithMaxBodySize(n int64) Option {
	return func(c *serverConfig) {
		if n > 0 {
			c.maxBodySize = n
		}
	}
}
