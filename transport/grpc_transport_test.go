package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/zrss/alluxio/concurrent"
	"github.com/zrss/alluxio/conf"
	"github.com/zrss/alluxio/user"
	"github.com/zrss/alluxio/util"
)

func contextWithTimeout(tb testing.TB) (context.Context, context.CancelFunc) {
	tb.Helper()
	return context.WithTimeout(context.Background(), 5*time.Second)
}

// startEchoServer binds a real transport server that echoes every frame
// on every connection.
func startEchoServer(t testing.TB, exec *concurrent.Context) *GrpcServer {
	t.Helper()
	s := NewGrpcServer(conf.Defaults(), user.New("server"), exec, nil)
	listen := s.Listen("localhost:0", func(conn Connection) {
		go func() {
			for frame := range conn.Receive() {
				if err := conn.Send(frame); err != nil {
					return
				}
			}
		}()
	})
	ctx, cancel := contextWithTimeout(t)
	defer cancel()
	require.NoError(t, listen.Wait(ctx))
	return s
}

func TestGrpcTransportEndToEnd(t *testing.T) {
	exec := concurrent.NewContext()
	defer exec.Close()
	logger := zaptest.NewLogger(t)

	s := startEchoServer(t, exec)
	addr := s.Addr()
	require.NotEmpty(t, addr)

	client := NewGrpcClient(conf.Defaults(), user.New("client"), exec, logger)
	defer client.Close()

	conn, err := client.Connect(addr)
	require.NoError(t, err)

	for _, msg := range []string{"append", "vote", "heartbeat"} {
		require.NoError(t, conn.Send([]byte(msg)))
		select {
		case frame := <-conn.Receive():
			require.Equal(t, msg, string(frame))
		case <-time.After(5 * time.Second):
			t.Fatalf("no echo for %q", msg)
		}
	}

	ctx, cancel := contextWithTimeout(t)
	defer cancel()
	require.NoError(t, conn.Close().Wait(ctx))
	require.NoError(t, s.Close().Wait(ctx))
}

func TestGrpcTransportServerCloseTearsDownConnections(t *testing.T) {
	exec := concurrent.NewContext()
	defer exec.Close()

	s := startEchoServer(t, exec)
	client := NewGrpcClient(conf.Defaults(), user.New("client"), exec, zaptest.NewLogger(t))
	defer client.Close()

	conn, err := client.Connect(s.Addr())
	require.NoError(t, err)
	require.NoError(t, conn.Send([]byte("ping")))
	select {
	case <-conn.Receive():
	case <-time.After(5 * time.Second):
		t.Fatal("no echo before close")
	}

	ctx, cancel := contextWithTimeout(t)
	defer cancel()
	require.NoError(t, s.Close().Wait(ctx))

	// The server side is gone; the client observes the teardown.
	select {
	case _, ok := <-conn.Receive():
		require.False(t, ok)
	case <-time.After(5 * time.Second):
		t.Fatal("client connection survived server close")
	}
}

func BenchmarkTransportEcho(b *testing.B) {
	util.RunFor(b, "bytes", 16, 2, 5, func(b *testing.B, bytes int) {
		exec := concurrent.NewContext()
		defer exec.Close()

		s := startEchoServer(b, exec)
		defer func() {
			ctx, cancel := contextWithTimeout(b)
			defer cancel()
			_ = s.Close().Wait(ctx)
		}()

		client := NewGrpcClient(conf.Defaults(), user.New("bench"), exec, nil)
		defer client.Close()

		conn, err := client.Connect(s.Addr())
		if err != nil {
			b.Fatal(err)
		}

		frame := make([]byte, bytes)
		b.SetBytes(int64(bytes))
		b.ResetTimer()
		for i := 0; i < b.N; i++ {
			if err := conn.Send(frame); err != nil {
				b.Fatal(err)
			}
			<-conn.Receive()
		}
	})
}
