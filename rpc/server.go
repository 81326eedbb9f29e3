// Package rpc wraps the gRPC server runtime behind the small surface the
// transport layer consumes: build a server with registered services,
// start it on an address, shut it down.
package rpc

import (
	"net"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/keepalive"

	"github.com/zrss/alluxio/conf"
	"github.com/zrss/alluxio/user"
)

// ServerBuilder assembles a Server from configuration, caller identity,
// and service registrations.
type ServerBuilder struct {
	hostname string
	addr     string
	conf     conf.Conf
	us       *user.State
	logger   *zap.Logger
	services []Service
	opts     []grpc.ServerOption
}

// NewServerBuilder creates a builder for a server bound to addr.
// hostname is the advertised host, addr the socket address to bind.
func NewServerBuilder(hostname, addr string, c conf.Conf, us *user.State) *ServerBuilder {
	return &ServerBuilder{
		hostname: hostname,
		addr:     addr,
		conf:     c,
		us:       us,
		logger:   zap.NewNop(),
	}
}

// WithLogger sets the logger the server reports through.
func (b *ServerBuilder) WithLogger(logger *zap.Logger) *ServerBuilder {
	b.logger = logger
	return b
}

// AddService registers a service on the server being built.
func (b *ServerBuilder) AddService(svc Service) *ServerBuilder {
	b.services = append(b.services, svc)
	return b
}

// WithServerOption appends a raw grpc.ServerOption, e.g. credentials
// resolved by the caller.
func (b *ServerBuilder) WithServerOption(opt grpc.ServerOption) *ServerBuilder {
	b.opts = append(b.opts, opt)
	return b
}

// Build constructs the server. The socket is not bound until Start.
func (b *ServerBuilder) Build() *Server {
	opts := []grpc.ServerOption{
		grpc.ForceServerCodec(Codec{}),
		grpc.MaxRecvMsgSize(b.conf.RPC.MaxMessageSize),
		grpc.MaxSendMsgSize(b.conf.RPC.MaxMessageSize),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			Time:    b.conf.RPC.KeepAliveTime,
			Timeout: b.conf.RPC.KeepAliveTimeout,
		}),
	}
	opts = append(opts, b.opts...)

	srv := grpc.NewServer(opts...)
	for i := range b.services {
		srv.RegisterService(&b.services[i].Desc, b.services[i].Impl)
	}
	return &Server{
		hostname:     b.hostname,
		addr:         b.addr,
		grpc:         srv,
		drainTimeout: b.conf.RPC.ShutdownTimeout,
		logger:       b.logger,
	}
}

// Server is a built gRPC server runtime instance.
type Server struct {
	hostname     string
	addr         string
	grpc         *grpc.Server
	lis          net.Listener
	drainTimeout time.Duration
	logger       *zap.Logger
}

// Start binds the server's address and begins serving. A bind failure
// surfaces as an error with the underlying I/O cause attached.
func (s *Server) Start() error {
	lis, err := net.Listen("tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "failed to bind to %s", s.addr)
	}
	s.lis = lis
	s.logger.Debug("rpc server listening",
		zap.String("host", s.hostname), zap.String("address", lis.Addr().String()))
	go func() {
		if err := s.grpc.Serve(lis); err != nil {
			s.logger.Debug("rpc server terminated", zap.String("address", s.addr), zap.Error(err))
		}
	}()
	return nil
}

// Addr returns the address the server is actually listening on. Useful
// when the requested address carried port 0.
func (s *Server) Addr() string {
	if s.lis == nil {
		return s.addr
	}
	return s.lis.Addr().String()
}

// Shutdown stops the server, draining open streams gracefully for up to
// the configured drain timeout before tearing them down.
func (s *Server) Shutdown() {
	done := make(chan struct{})
	go func() {
		s.grpc.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(s.drainTimeout):
		s.grpc.Stop()
	}
}
