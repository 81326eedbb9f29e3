package transport

import (
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"

	"github.com/zrss/alluxio/concurrent"
	"github.com/zrss/alluxio/rpc"
)

// MessageServiceName is the fully-qualified name of the journal
// transport's message service.
const MessageServiceName = "alluxio.journal.CopycatMessageService"

// connectMethodName is the bidirectional stream carrying one connection.
const connectMethodName = "Connect"

// ConnectMethod is the full method path clients dial.
const ConnectMethod = "/" + MessageServiceName + "/" + connectMethodName

// messageService is the (empty) handler type the service description
// advertises; the stream handler does all the work.
type messageService interface{}

// messageHandler serves the message service: every inbound Connect
// stream becomes one Connection, which is recorded and then handed to
// the listener. The execution context and election timeout are threaded
// into each connection to schedule and bound inbound dispatch.
type messageHandler struct {
	listener func(Connection)
	exec     *concurrent.Context
	timeout  time.Duration
	logger   *zap.Logger
}

func newMessageHandler(listener func(Connection), exec *concurrent.Context,
	timeout time.Duration, logger *zap.Logger) *messageHandler {
	return &messageHandler{
		listener: listener,
		exec:     exec,
		timeout:  timeout,
		logger:   logger,
	}
}

// Service returns the registration for the underlying server. The
// service description is built by hand; with an opaque frame codec there
// is nothing for protoc to generate.
func (h *messageHandler) Service() rpc.Service {
	return rpc.NewService(grpc.ServiceDesc{
		ServiceName: MessageServiceName,
		HandlerType: (*messageService)(nil),
		Streams: []grpc.StreamDesc{{
			StreamName:    connectMethodName,
			Handler:       h.connect,
			ServerStreams: true,
			ClientStreams: true,
		}},
	}, h)
}

// connect serves one inbound connection for the lifetime of its stream.
func (h *messageHandler) connect(srv interface{}, stream grpc.ServerStream) error {
	conn := newGrpcConnection(stream, h.exec, h.timeout, h.logger, nil)
	h.logger.Debug("inbound transport connection")
	h.listener(conn)
	return conn.serve()
}
