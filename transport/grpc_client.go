package transport

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"

	"github.com/zrss/alluxio/concurrent"
	"github.com/zrss/alluxio/conf"
	"github.com/zrss/alluxio/rpc"
	"github.com/zrss/alluxio/user"
)

// GrpcClient implements Client over the same message service GrpcServer
// registers. Each Connect dials the target and opens one bidirectional
// stream carrying the connection's frames.
type GrpcClient struct {
	conf   conf.Conf
	us     *user.State
	exec   *concurrent.Context
	logger *zap.Logger

	mu    sync.Mutex
	dials []*grpc.ClientConn
}

var _ Client = (*GrpcClient)(nil)

// NewGrpcClient creates a transport client for connecting to remote
// consensus peers.
func NewGrpcClient(c conf.Conf, us *user.State, exec *concurrent.Context, logger *zap.Logger) *GrpcClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GrpcClient{
		conf:   c,
		us:     us,
		exec:   exec,
		logger: logger,
	}
}

// Connect establishes a connection to the transport server at addr.
func (c *GrpcClient) Connect(addr Address) (Connection, error) {
	c.logger.Debug("transport client connecting", zap.Stringer("address", addr))
	cc, err := grpc.Dial(addr.SocketAddress(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(
			grpc.ForceCodec(rpc.Codec{}),
			grpc.MaxCallRecvMsgSize(c.conf.RPC.MaxMessageSize),
			grpc.MaxCallSendMsgSize(c.conf.RPC.MaxMessageSize),
		),
	)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to dial %s", addr)
	}
	c.mu.Lock()
	c.dials = append(c.dials, cc)
	c.mu.Unlock()

	ctx, cancel := context.WithCancel(context.Background())
	if c.us != nil {
		ctx = metadata.AppendToOutgoingContext(ctx, user.MetadataKey, c.us.Name)
	}
	stream, err := cc.NewStream(ctx, &grpc.StreamDesc{
		StreamName:    connectMethodName,
		ServerStreams: true,
		ClientStreams: true,
	}, ConnectMethod)
	if err != nil {
		cancel()
		return nil, errors.Wrapf(err, "failed to open transport stream to %s", addr)
	}

	conn := newGrpcConnection(stream, c.exec, c.conf.Journal.ElectionTimeout, c.logger,
		func() error {
			cancel()
			return nil
		})
	go conn.serve()
	return conn, nil
}

// Close releases every client connection this client has dialed.
func (c *GrpcClient) Close() error {
	c.mu.Lock()
	dials := c.dials
	c.dials = nil
	c.mu.Unlock()

	var err error
	for _, cc := range dials {
		err = multierr.Append(err, cc.Close())
	}
	return err
}
