// Package conf holds the runtime configuration for the embedded journal
// transport. Values are read from ALLUXIO_-prefixed environment variables
// and merged on top of compiled-in defaults.
package conf

import (
	"time"

	"dario.cat/mergo"
	"github.com/caarlos0/env/v11"
	"github.com/pkg/errors"
)

// Conf is the top-level configuration container.
type Conf struct {
	// RPC holds settings for the underlying gRPC server runtime.
	RPC RPC `envPrefix:"RPC_"`

	// Journal holds settings for the embedded journal transport.
	Journal Journal `envPrefix:"JOURNAL_"`
}

// RPC configures the gRPC server runtime shared by all transport
// endpoints.
type RPC struct {
	// MaxMessageSize bounds the size of a single inbound or outbound
	// message in bytes.
	// Env: ALLUXIO_RPC_MAX_MESSAGE_SIZE
	MaxMessageSize int `env:"MAX_MESSAGE_SIZE"`

	// KeepAliveTime is the interval between server-side keepalive pings.
	// Env: ALLUXIO_RPC_KEEPALIVE_TIME
	KeepAliveTime time.Duration `env:"KEEPALIVE_TIME"`

	// KeepAliveTimeout is how long a keepalive ping may go unanswered
	// before the connection is considered dead.
	// Env: ALLUXIO_RPC_KEEPALIVE_TIMEOUT
	KeepAliveTimeout time.Duration `env:"KEEPALIVE_TIMEOUT"`

	// ShutdownTimeout bounds the graceful drain on server shutdown.
	// Streams still open after this long are torn down forcibly.
	// Env: ALLUXIO_RPC_SHUTDOWN_TIMEOUT
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT"`
}

// Journal configures the embedded journal transport layer.
type Journal struct {
	// ElectionTimeout is the embedded-journal election timeout. The
	// transport passes it through to message dispatch to bound how long
	// a single inbound frame may wait on a stalled consumer.
	// Env: ALLUXIO_JOURNAL_ELECTION_TIMEOUT
	ElectionTimeout time.Duration `env:"ELECTION_TIMEOUT"`
}

// Defaults returns the compiled-in configuration.
func Defaults() Conf {
	return Conf{
		RPC: RPC{
			MaxMessageSize:   100 << 20,
			KeepAliveTime:    30 * time.Second,
			KeepAliveTimeout: 30 * time.Second,
			ShutdownTimeout:  3 * time.Second,
		},
		Journal: Journal{
			ElectionTimeout: 10 * time.Second,
		},
	}
}

// Load builds a Conf from the environment, falling back to Defaults for
// anything unset.
func Load() (Conf, error) {
	var c Conf
	if err := env.ParseWithOptions(&c, env.Options{Prefix: "ALLUXIO_"}); err != nil {
		return Conf{}, errors.Wrap(err, "failed to parse configuration from environment")
	}
	if err := mergo.Merge(&c, Defaults()); err != nil {
		return Conf{}, errors.Wrap(err, "failed to merge configuration defaults")
	}
	return c, nil
}
