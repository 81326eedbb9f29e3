// Package transport implements the network substrate the embedded
// journal's consensus layer runs over. It adapts the generic transport
// server contract (bind, accept connections, notify listeners, shut down
// in order) onto the gRPC server runtime in the rpc package.
package transport

import (
	"net"

	"github.com/pkg/errors"

	"github.com/zrss/alluxio/concurrent"
)

// Address identifies a transport endpoint as a host:port pair.
type Address string

// Host returns the host part of the address, or "" if it cannot be
// split.
func (a Address) Host() string {
	host, _, err := net.SplitHostPort(string(a))
	if err != nil {
		return ""
	}
	return host
}

// SocketAddress returns the full host:port form.
func (a Address) SocketAddress() string {
	return string(a)
}

func (a Address) String() string {
	return string(a)
}

// Connection is one logical link between two transport endpoints.
// Frames are opaque to this layer; framing and dispatch semantics belong
// to the consensus protocol above.
type Connection interface {
	// Send queues a frame for delivery to the remote endpoint.
	Send(frame []byte) error

	// Receive returns the channel inbound frames arrive on. The channel
	// is closed once the connection is torn down.
	Receive() <-chan []byte

	// Close tears the connection down asynchronously. Closing an
	// already-closed connection is a harmless no-op that returns the
	// original close future.
	Close() *concurrent.Future
}

// Server accepts connections on behalf of a consensus peer.
type Server interface {
	// Listen binds addr and invokes onConnection for every inbound
	// connection. The returned future resolves once the bind has
	// completed or failed.
	Listen(addr Address, onConnection func(Connection)) *concurrent.Future

	// Close tears down every tracked connection, then shuts down the
	// underlying server. Safe to call repeatedly and before Listen.
	Close() *concurrent.Future
}

// Client opens connections to remote Servers.
type Client interface {
	// Connect establishes a connection to the server at addr.
	Connect(addr Address) (Connection, error)

	// Close releases every connection the client has dialed.
	Close() error
}

// ErrServerClosed is returned by Listen on a server that has already
// been closed.
var ErrServerClosed = errors.New("transport server is closed")

// ErrAlreadyBound is returned by Listen on a server that already has a
// live underlying server. One server instance serves exactly one bind.
var ErrAlreadyBound = errors.New("transport server is already bound")

// ErrConnectionClosed is returned by Send on a closed connection.
var ErrConnectionClosed = errors.New("transport connection is closed")
