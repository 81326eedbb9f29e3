package transport

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zrss/alluxio/concurrent"
)

func newTestConnection(t *testing.T, timeout time.Duration) *grpcConnection {
	t.Helper()
	exec := concurrent.NewContext()
	t.Cleanup(exec.Close)
	stream := &fakeServerStream{recv: make(chan []byte)}
	t.Cleanup(func() { close(stream.recv) })
	return newGrpcConnection(stream, exec, timeout, zap.NewNop(), nil)
}

func TestConnectionSendAfterClose(t *testing.T) {
	conn := newTestConnection(t, time.Second)

	ctx, cancel := contextWithTimeout(t)
	defer cancel()
	require.NoError(t, conn.Close().Wait(ctx))
	require.ErrorIs(t, conn.Send([]byte("late")), ErrConnectionClosed)
}

func TestConnectionCloseIdempotent(t *testing.T) {
	conn := newTestConnection(t, time.Second)

	first := conn.Close()
	second := conn.Close()
	require.Same(t, first, second)

	ctx, cancel := contextWithTimeout(t)
	defer cancel()
	require.NoError(t, first.Wait(ctx))
}

func TestConnectionCloseWithFramesInFlight(t *testing.T) {
	exec := concurrent.NewContext()
	t.Cleanup(exec.Close)
	stream := &fakeServerStream{recv: make(chan []byte, 16)}
	conn := newGrpcConnection(stream, exec, time.Second, zap.NewNop(), nil)

	served := make(chan error, 1)
	go func() { served <- conn.serve() }()

	closeF := conn.Close()
	select {
	case err := <-served:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after close")
	}

	// The remote keeps sending after the close; none of these frames may
	// take down the execution context.
	for i := 0; i < 16; i++ {
		stream.recv <- []byte("late")
	}

	// The close future tracks real teardown; the stream is still up.
	select {
	case <-closeF.Done():
		t.Fatal("close future resolved while the stream was still open")
	case <-time.After(20 * time.Millisecond):
	}

	close(stream.recv)
	ctx, cancel := contextWithTimeout(t)
	defer cancel()
	require.NoError(t, closeF.Wait(ctx))

	// The context survived the late frames and the inbound channel is
	// properly closed behind them.
	require.NoError(t, exec.Execute(func() error { return nil }).Wait(ctx))
	deadline := time.After(5 * time.Second)
	for open := true; open; {
		select {
		case _, ok := <-conn.Receive():
			open = ok
		case <-deadline:
			t.Fatal("inbound channel never closed")
		}
	}
}

func TestConnectionDeliverTimesOutWhenConsumerStalls(t *testing.T) {
	conn := newTestConnection(t, 10*time.Millisecond)

	// Nobody reads Receive; fill the backlog, then one more must drop.
	for i := 0; i < inboundBacklog; i++ {
		require.NoError(t, conn.deliver([]byte("frame")))
	}
	err := conn.deliver([]byte("overflow"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "timed out")
}
