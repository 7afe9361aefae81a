// serve.go: plugin-side entry point for modules running as child processes
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
)

type serveOptions struct {
	handshake HandshakeConfig
	logger    Logger
}

// ServeOption customizes Serve.
type ServeOption func(*serveOptions)

// WithServeHandshake overrides DefaultHandshakeConfig. The host must use
// the same values.
func WithServeHandshake(hc HandshakeConfig) ServeOption {
	return func(o *serveOptions) { o.handshake = hc }
}

// WithServeLogger sets the logger used by the serving loop. The default
// writes JSON lines to stderr, which the host forwards into its own log.
func WithServeLogger(logger Logger) ServeOption {
	return func(o *serveOptions) { o.logger = logger }
}

// Serve exposes plugin to the host that launched this process and blocks
// until the host unloads it, the parent goes away or the process receives
// SIGINT/SIGTERM. It is meant to be the whole body of a module's main:
//
//	func main() {
//	    if err := plughost.Serve(newCalculator()); err != nil {
//	        os.Exit(1)
//	    }
//	}
func Serve(plugin Plugin, opts ...ServeOption) error {
	options := serveOptions{
		handshake: DefaultHandshakeConfig,
		logger:    NewZerologAdapter(zerolog.New(os.Stderr).With().Timestamp().Logger()),
	}
	for _, opt := range opts {
		opt(&options)
	}

	info, err := options.handshake.ReadHandshake()
	if err != nil {
		fmt.Fprintln(os.Stderr, err.Error())
		return err
	}

	_ = os.Remove(info.SocketPath)
	listener, err := net.Listen("unix", info.SocketPath)
	if err != nil {
		return NewBoundaryError("cannot listen on "+info.SocketPath, err)
	}
	defer os.Remove(info.SocketPath)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if info.WatchParent {
		ctx = watchParent(ctx, os.Stdin)
	}

	return ServeListener(ctx, listener, plugin, options.logger)
}

// watchParent returns a context cancelled when r reaches EOF, which happens
// when the host closes its end of the pipe or exits.
func watchParent(ctx context.Context, r io.Reader) context.Context {
	ctx, cancel := context.WithCancel(ctx)
	go func() {
		_, _ = io.Copy(io.Discard, r)
		cancel()
	}()
	return ctx
}

// ServeListener serves plugin on listener until ctx is done or the host
// calls Unload. It is the transport half of Serve and can be used directly
// to host a plugin on any listener.
func ServeListener(ctx context.Context, listener net.Listener, plugin Plugin, logger Logger) error {
	if logger == nil {
		logger = DefaultLogger()
	}
	logger = logger.With("plugin", plugin.ID())

	server := grpc.NewServer()

	var stopOnce sync.Once
	stopServer := func() {
		stopOnce.Do(func() {
			// GracefulStop waits for in-flight calls, so it must not run
			// on the goroutine serving the Unload call.
			go server.GracefulStop()
		})
	}

	server.RegisterService(&moduleServiceDesc, &moduleService{
		plugin:   plugin,
		logger:   logger,
		onUnload: stopServer,
	})

	go func() {
		<-ctx.Done()
		stopServer()
	}()

	logger.Info("Plugin serving", "address", listener.Addr().String())
	if err := server.Serve(listener); err != nil && err != grpc.ErrServerStopped {
		return NewBoundaryError("plugin server failed", err)
	}
	logger.Info("Plugin server stopped")
	return nil
}
