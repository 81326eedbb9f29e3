package transport

import (
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/zrss/alluxio/concurrent"
	"github.com/zrss/alluxio/conf"
	"github.com/zrss/alluxio/metric"
	"github.com/zrss/alluxio/rpc"
	"github.com/zrss/alluxio/user"
)

// rpcServer is the handle the adapter keeps on the underlying server
// runtime.
type rpcServer interface {
	Start() error
	Addr() string
	Shutdown()
}

// GrpcServer implements Server by delegating socket work to the gRPC
// server runtime. It tracks every connection it accepts so Close can
// tear them all down before the runtime itself is shut down.
//
// Bind-side state changes run on the execution context supplied at
// construction; connection tracking is independently thread-safe because
// the runtime delivers inbound connections from its own goroutines.
type GrpcServer struct {
	conf   conf.Conf
	us     *user.State
	exec   *concurrent.Context
	logger *zap.Logger

	mu     sync.Mutex
	addr   Address
	server rpcServer
	conns  []Connection
	closed bool

	// newServer builds the runtime server for a bind. Swapped out by
	// tests to observe lifecycle ordering.
	newServer func(addr Address, svc rpc.Service) rpcServer
}

var _ Server = (*GrpcServer)(nil)

// NewGrpcServer creates a transport server that accepts connections from
// remote consensus peers. All bind and close bookkeeping runs on exec;
// passing a nil exec fails the first Listen, loudly.
func NewGrpcServer(c conf.Conf, us *user.State, exec *concurrent.Context, logger *zap.Logger) *GrpcServer {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &GrpcServer{
		conf:   c,
		us:     us,
		exec:   exec,
		logger: logger,
	}
	s.newServer = s.buildServer
	return s
}

func (s *GrpcServer) buildServer(addr Address, svc rpc.Service) rpcServer {
	return rpc.NewServerBuilder(addr.Host(), addr.SocketAddress(), s.conf, s.us).
		WithLogger(s.logger).
		AddService(svc).
		Build()
}

// Listen binds addr and starts accepting connections. Every inbound
// connection is recorded before onConnection sees it, so a later Close
// is guaranteed to observe it.
func (s *GrpcServer) Listen(addr Address, onConnection func(Connection)) *concurrent.Future {
	if s.exec == nil {
		return concurrent.Failed(errors.Wrap(concurrent.ErrNoContext,
			"transport server requires an execution context"))
	}
	s.logger.Debug("transport server binding", zap.Stringer("address", addr))
	return s.exec.Execute(func() error {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.closed {
			return ErrServerClosed
		}
		if s.server != nil {
			return ErrAlreadyBound
		}

		// Listener that notifies both this server's bookkeeping and the
		// caller, in that order.
		forkListener := func(conn Connection) {
			s.addNewConnection(conn)
			onConnection(conn)
		}

		handler := newMessageHandler(forkListener, s.exec,
			s.conf.Journal.ElectionTimeout, s.logger)
		server := s.newServer(addr, handler.Service())
		if err := server.Start(); err != nil {
			s.logger.Debug("failed to start transport server",
				zap.Stringer("address", addr), zap.Error(err))
			return errors.Wrapf(err, "failed to start transport server at %s", addr)
		}
		s.server = server
		s.addr = addr

		s.logger.Info("transport server started", zap.Stringer("address", addr))
		return nil
	})
}

// Close closes every tracked connection, waits for all of them to finish
// closing, then shuts down the underlying server. Individual connection
// close failures do not block shutdown. Connections that arrive after
// the snapshot below are tracked but not waited on by this call; that is
// a deliberate carry-over of the transport's original semantics.
func (s *GrpcServer) Close() *concurrent.Future {
	s.mu.Lock()
	if s.closed || s.server == nil {
		s.mu.Unlock()
		return concurrent.Completed()
	}
	s.logger.Debug("closing transport server", zap.Stringer("address", s.addr))
	s.closed = true
	conns := s.conns
	s.conns = nil
	server := s.server
	s.mu.Unlock()

	closeFutures := make([]*concurrent.Future, 0, len(conns))
	for _, conn := range conns {
		closeFutures = append(closeFutures, conn.Close())
	}

	done := concurrent.NewFuture()
	barrier := concurrent.AllOf(closeFutures...)
	go func() {
		<-barrier.Done()
		if err := barrier.Err(); err != nil {
			// Best-effort teardown: the connections own surfacing these.
			s.logger.Debug("transport connections closed with errors", zap.Error(err))
		}
		// Shut down the underlying server once all connections are closed.
		server.Shutdown()
		s.mu.Lock()
		s.server = nil
		s.mu.Unlock()
		done.Complete(nil)
	}()
	return done
}

// Addr returns the address the server is listening on, or "" before a
// successful bind. When the bind address carried port 0, this is the
// resolved address.
func (s *GrpcServer) Addr() Address {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return ""
	}
	return Address(s.server.Addr())
}

// addNewConnection tracks a connection created by this server so that
// Close can tear it down. Safe to call from the runtime's goroutines.
func (s *GrpcServer) addNewConnection(conn Connection) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conns = append(s.conns, conn)
	metric.ConnectionsAccepted.Inc(1)
}

func (s *GrpcServer) numConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}
