package petalstream

import (
	"log/slog"

	"github.com/google/uuid"
)

// Config configures a stream.
type Config struct {
	// Name identifies the stream in logs and observer events.
	// Defaults to "stream-" followed by a short random id.
	Name string

	// Queue is the serial execution context the stream runs on.
	// If nil, the stream gets its own queue.
	Queue *Queue

	// Logger receives debug records about the stream lifecycle.
	// Defaults to slog.Default().
	Logger *slog.Logger

	// Observer, if set, is notified of deliveries, drops and lifecycle changes.
	Observer Observer
}

// Option configures a stream.
type Option func(*Config)

// WithName sets the stream name.
func WithName(name string) Option {
	return func(c *Config) {
		c.Name = name
	}
}

// WithQueue runs the stream on q instead of a private queue.
func WithQueue(q *Queue) Option {
	return func(c *Config) {
		c.Queue = q
	}
}

// WithLogger sets the stream logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithObserver sets the stream observer.
func WithObserver(o Observer) Option {
	return func(c *Config) {
		c.Observer = o
	}
}

// configured is implemented by streams that can hand their logger and
// observer down to derived streams.
type configured interface {
	config() Config
}

func newConfig(opts []Option) Config {
	var cfg Config
	for _, opt := range opts {
		opt(&cfg)
	}
	return withDefaults(cfg)
}

// derivedConfig builds the config of a stream derived from upstream: the
// logger and observer are inherited, name and queue are fresh unless set.
func derivedConfig(upstream any, kind string, opts []Option) Config {
	var cfg Config
	if c, ok := upstream.(configured); ok {
		parent := c.config()
		cfg.Logger = parent.Logger
		cfg.Observer = parent.Observer
		cfg.Name = parent.Name + "." + kind
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return withDefaults(cfg)
}

func withDefaults(cfg Config) Config {
	if cfg.Name == "" {
		cfg.Name = "stream-" + uuid.NewString()[:8]
	}
	if cfg.Queue == nil {
		cfg.Queue = NewQueue()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return cfg
}
