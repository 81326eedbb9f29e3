package transport

import (
	"io"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/atomic"
	"go.uber.org/zap"

	"github.com/zrss/alluxio/concurrent"
	"github.com/zrss/alluxio/metric"
)

// inboundBacklog bounds how many frames may queue between the stream's
// receive loop and the consumer before delivery starts timing out.
const inboundBacklog = 1024

// grpcStream is the surface shared by grpc.ClientStream and
// grpc.ServerStream that a connection needs.
type grpcStream interface {
	SendMsg(m interface{}) error
	RecvMsg(m interface{}) error
}

// grpcConnection is a Connection carried over a single bidirectional
// gRPC stream. Frames move as raw byte slices; inbound frames are
// dispatched onto the shared execution context and handed to the
// consumer through a bounded channel.
type grpcConnection struct {
	stream  grpcStream
	exec    *concurrent.Context
	timeout time.Duration
	logger  *zap.Logger
	finish  func() error

	inbound  chan []byte
	done     chan struct{}
	recvDone chan struct{}
	serving  atomic.Bool

	sendMu    sync.Mutex
	closeOnce sync.Once
	closeF    *concurrent.Future
}

var _ Connection = (*grpcConnection)(nil)

// newGrpcConnection wraps stream. finish runs once during close to
// release whatever owns the stream (client context, dialed conn); it may
// be nil.
func newGrpcConnection(stream grpcStream, exec *concurrent.Context,
	timeout time.Duration, logger *zap.Logger, finish func() error) *grpcConnection {
	return &grpcConnection{
		stream:  stream,
		exec:    exec,
		timeout: timeout,
		logger:  logger,
		finish:  finish,
		inbound:  make(chan []byte, inboundBacklog),
		done:     make(chan struct{}),
		recvDone: make(chan struct{}),
		closeF:   concurrent.NewFuture(),
	}
}

// Send queues a frame for delivery to the remote endpoint.
func (c *grpcConnection) Send(frame []byte) error {
	select {
	case <-c.done:
		return ErrConnectionClosed
	default:
	}
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if err := c.stream.SendMsg(&frame); err != nil {
		return errors.Wrap(err, "failed to send frame")
	}
	return nil
}

// Receive returns the channel inbound frames arrive on.
func (c *grpcConnection) Receive() <-chan []byte {
	return c.inbound
}

// Close tears the connection down asynchronously. Repeated calls return
// the same future. On a served connection the future resolves only once
// the stream pump has exited, i.e. the stream is actually gone.
func (c *grpcConnection) Close() *concurrent.Future {
	c.closeOnce.Do(func() {
		close(c.done)
		go func() {
			var err error
			if c.finish != nil {
				err = c.finish()
			}
			if c.serving.Load() {
				<-c.recvDone
			}
			metric.ConnectionsClosed.Inc(1)
			c.closeF.Complete(err)
		}()
	})
	return c.closeF
}

// serve pumps the stream until the connection closes or the stream
// fails. The server-side handler blocks in serve for the lifetime of the
// stream; the client runs it on its own goroutine.
func (c *grpcConnection) serve() error {
	c.serving.Store(true)
	errc := make(chan error, 1)
	go func() {
		err := c.recvLoop()
		// recvLoop is the only producer on inbound; landing the close
		// behind its last delivery keeps late frames off a closed channel.
		c.exec.Execute(func() error {
			close(c.inbound)
			return nil
		})
		close(c.recvDone)
		errc <- err
	}()

	var err error
	select {
	case err = <-errc:
	case <-c.done:
	}
	c.Close()
	return err
}

func (c *grpcConnection) recvLoop() error {
	for {
		var frame []byte
		if err := c.stream.RecvMsg(&frame); err != nil {
			if err == io.EOF {
				return nil
			}
			select {
			case <-c.done:
				return nil
			default:
			}
			return errors.Wrap(err, "failed to receive frame")
		}
		metric.InboundFrameSizesHistogram.Update(int64(len(frame)))
		c.exec.Execute(func() error {
			return c.deliver(frame)
		})
	}
}

// deliver hands a frame to the consumer, bounded by the election timeout
// so a stalled consumer cannot wedge the execution context.
func (c *grpcConnection) deliver(frame []byte) error {
	select {
	case c.inbound <- frame:
		return nil
	case <-c.done:
		return ErrConnectionClosed
	case <-time.After(c.timeout):
		c.logger.Debug("dropping inbound frame", zap.Duration("timeout", c.timeout))
		return errors.Errorf("timed out delivering inbound frame after %s", c.timeout)
	}
}
