// Command stanag5066d wires a transport, a readiness source, and the
// protocol engine together and blocks until signaled, the way
// cmd/canopen/main.go wires a socketcan bus and an object dictionary
// to a CANopen node and runs its process loop. Listening and TLS are
// out of scope (spec.md §1); this daemon owns two plain TCP listeners
// (one for SIS subnet clients, one for DTS link-layer peers) and hands
// every accepted connection to the engine.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/hflink/stanag5066/pkg/bridge"
	"github.com/hflink/stanag5066/pkg/config"
	"github.com/hflink/stanag5066/pkg/dts"
	"github.com/hflink/stanag5066/pkg/ioengine"
	"github.com/hflink/stanag5066/pkg/transport"
	"github.com/hflink/stanag5066/pkg/transport/blocking"
)

const (
	defaultSISAddr = ":5066"
	defaultDTSAddr = ":5067"
)

func main() {
	log.SetLevel(log.InfoLevel)

	sisAddr := flag.String("sis", defaultSISAddr, "address to listen on for SIS subnet clients")
	dtsAddr := flag.String("dts", defaultDTSAddr, "address to listen on for DTS link-layer peers")
	confPath := flag.String("config", "", "optional INI config file overriding engine defaults")
	localAddr := flag.Uint("address", 1, "this node's own DTS address")
	nonARQ := flag.Bool("nonarq", false, "treat accepted DTS peers as non-ARQ broadcast channels instead of sequenced ARQ")
	flag.Parse()

	cfg := config.Default()
	if *confPath != "" {
		loaded, err := config.Load(*confPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "stanag5066d: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}

	logger := log.StandardLogger()
	b := bridge.New(cfg, logger)
	b.SetLocalAddress(dts.Address(*localAddr), 4)

	var nextRemote uint32 = uint32(*localAddr) + 1

	engine := ioengine.NewEngine(cfg, logger, func() (transport.Readiness, error) {
		return blocking.New(), nil
	}, func(proto ioengine.Protocol) ioengine.Handler {
		if proto == ioengine.ProtocolDTS {
			return bridge.NewDTSHandler(b)
		}
		return bridge.NewSISHandler(b)
	})

	engine.SetOnAccept(func(ep *ioengine.Endpoint) {
		switch ep.Protocol {
		case ioengine.ProtocolSIS:
			b.AddSIS(ep)
			logger.WithFields(log.Fields{"endpoint": ep.ID}).Info("accepted SIS client")
		case ioengine.ProtocolDTS:
			remote := dts.Address(nextRemote)
			nextRemote++
			b.AddDTS(ep, remote, !*nonARQ)
			logger.WithFields(log.Fields{"endpoint": ep.ID, "remote": remote}).Info("accepted DTS peer")
		}
	})
	engine.SetOnClose(func(ep *ioengine.Endpoint) {
		switch ep.Protocol {
		case ioengine.ProtocolSIS:
			b.RemoveSIS(ep)
		case ioengine.ProtocolDTS:
			b.RemoveDTS(ep)
		}
	})
	engine.SetTicker(func(now time.Time) {
		for _, ep := range b.ExpireTimeouts(now) {
			logger.WithFields(log.Fields{"endpoint": ep.ID}).Warn("ARQ retry budget exhausted, channel reset")
		}
	})

	ctx, cancel := context.WithCancel(context.Background())
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigs
		logger.Info("shutting down")
		cancel()
	}()

	sisListener, err := net.Listen("tcp", *sisAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stanag5066d: SIS listen %s: %v\n", *sisAddr, err)
		os.Exit(1)
	}
	defer sisListener.Close()

	dtsListener, err := net.Listen("tcp", *dtsAddr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "stanag5066d: DTS listen %s: %v\n", *dtsAddr, err)
		os.Exit(1)
	}
	defer dtsListener.Close()

	go func() {
		<-ctx.Done()
		sisListener.Close()
		dtsListener.Close()
	}()

	errs := make(chan error, 2)
	go func() { errs <- engine.Serve(ctx, tcpListener{sisListener, ioengine.ProtocolSIS}) }()
	go func() { errs <- engine.Serve(ctx, tcpListener{dtsListener, ioengine.ProtocolDTS}) }()

	logger.WithFields(log.Fields{"sis": *sisAddr, "dts": *dtsAddr}).Info("stanag5066d listening")

	<-ctx.Done()
	<-errs
	<-errs

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.WithFields(log.Fields{"cause": err}).Warn("shutdown did not complete cleanly")
	}
}

// tcpListener adapts a net.Listener to ioengine.Listener, tagging
// every accepted connection with a fixed Protocol: one instance per
// TCP port, since a bare net.Conn carries no protocol tag of its own
// (spec §3: "protocol tag (SIS or DTS-side client...)").
type tcpListener struct {
	ln    net.Listener
	proto ioengine.Protocol
}

func (l tcpListener) Accept() (transport.Transport, ioengine.Protocol, error) {
	conn, err := l.ln.Accept()
	if err != nil {
		return nil, l.proto, err
	}
	return transport.NewStreamTransport(conn), l.proto, nil
}
