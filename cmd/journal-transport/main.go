// Command journal-transport runs a standalone journal transport server
// that echoes every inbound frame. Useful for smoke-testing transport
// connectivity between journal masters.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/zrss/alluxio/concurrent"
	"github.com/zrss/alluxio/conf"
	"github.com/zrss/alluxio/metric"
	"github.com/zrss/alluxio/transport"
	"github.com/zrss/alluxio/user"
)

var bindAddr = pflag.String("addr", "localhost:19200", "Address to bind the transport server to")
var userName = pflag.String("user", "alluxio", "Principal the transport runs as")
var verbose = pflag.Bool("verbose", false, "Verbose logging")
var recordMetrics = pflag.Bool("metrics", false, "Record metrics and print before exiting")

func main() {
	pflag.Parse()
	defer metric.Enable(*recordMetrics)()

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			log.Fatal(err)
		}
	}

	c, err := conf.Load()
	if err != nil {
		log.Fatal(err)
	}

	exec := concurrent.NewContext()
	defer exec.Close()

	srv := transport.NewGrpcServer(c, user.New(*userName), exec, logger)

	var g errgroup.Group
	listen := srv.Listen(transport.Address(*bindAddr), func(conn transport.Connection) {
		g.Go(func() error {
			return echo(conn)
		})
	})
	if err := listen.Wait(context.Background()); err != nil {
		log.Fatal(err)
	}
	logger.Info("journal transport echoing", zap.Stringer("address", srv.Addr()))

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	if err := srv.Close().Wait(context.Background()); err != nil {
		log.Fatal(err)
	}
	_ = g.Wait()
}

func echo(conn transport.Connection) error {
	for frame := range conn.Receive() {
		if err := conn.Send(frame); err != nil {
			return err
		}
	}
	return nil
}
