// boundary_subprocess.go: process-per-module isolation boundary over gRPC
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// SubprocessOptions configures SubprocessBoundaryFactory.
type SubprocessOptions struct {
	Handshake HandshakeConfig

	// StartTimeout bounds the time between launch and the first successful
	// Describe call.
	StartTimeout time.Duration

	// StopTimeout bounds graceful termination before the child is killed.
	StopTimeout time.Duration

	// CallTimeout applies to calls that carry no context of their own.
	CallTimeout time.Duration

	// SocketDir holds the per-module unix sockets. Defaults to os.TempDir().
	SocketDir string

	Args   []string
	Env    []string
	Logger Logger
}

// DefaultSubprocessOptions returns the defaults applied to zero fields.
func DefaultSubprocessOptions() SubprocessOptions {
	return SubprocessOptions{
		Handshake:    DefaultHandshakeConfig,
		StartTimeout: HandshakeTimeout,
		StopTimeout:  5 * time.Second,
		CallTimeout:  10 * time.Second,
		SocketDir:    os.TempDir(),
	}
}

// SubprocessBoundaryFactory runs every module in its own child process and
// talks to it over gRPC on a private unix socket. Releasing the boundary
// terminates the process, so nothing the module allocated survives.
type SubprocessBoundaryFactory struct {
	options SubprocessOptions
	logger  Logger
}

// NewSubprocessBoundaryFactory creates the default boundary factory.
func NewSubprocessBoundaryFactory(options SubprocessOptions) *SubprocessBoundaryFactory {
	def := DefaultSubprocessOptions()
	if options.Handshake.ProtocolVersion == 0 {
		options.Handshake = def.Handshake
	}
	if options.StartTimeout <= 0 {
		options.StartTimeout = def.StartTimeout
	}
	if options.StopTimeout <= 0 {
		options.StopTimeout = def.StopTimeout
	}
	if options.CallTimeout <= 0 {
		options.CallTimeout = def.CallTimeout
	}
	if options.SocketDir == "" {
		options.SocketDir = def.SocketDir
	}
	logger := options.Logger
	if logger == nil {
		logger = DefaultLogger()
	}
	return &SubprocessBoundaryFactory{options: options, logger: logger}
}

// Open implements BoundaryFactory.
func (f *SubprocessBoundaryFactory) Open(ctx context.Context, path string) (Boundary, error) {
	if err := f.options.Handshake.Validate(); err != nil {
		return nil, err
	}

	module, err := ResolveModulePath(path)
	if err != nil {
		return nil, err
	}
	if err := checkExecutable(module); err != nil {
		return nil, err
	}

	socket := filepath.Join(f.options.SocketDir,
		"plughost-"+strings.ReplaceAll(uuid.NewString(), "-", "")[:16]+".sock")
	logger := f.logger.With("module", module)

	env := append(append([]string(nil), f.options.Env...),
		f.options.Handshake.Environment(HandshakeInfo{SocketPath: socket, WatchParent: true})...)
	proc := NewProcess(ProcessConfig{
		Path:   module,
		Args:   f.options.Args,
		Env:    env,
		Logger: logger,
	})
	if err := proc.Start(ctx); err != nil {
		return nil, err
	}

	b := &subprocessBoundary{
		source:      module,
		socket:      socket,
		process:     proc,
		stopTimeout: f.options.StopTimeout,
		logger:      logger,
	}

	conn, err := grpc.NewClient("unix://"+socket, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		b.abort()
		return nil, NewBoundaryError("cannot create client for "+socket, err)
	}
	b.conn = conn

	startCtx, cancel := context.WithTimeout(ctx, f.options.StartTimeout)
	defer cancel()
	go func() {
		select {
		case <-proc.Exited():
			cancel()
		case <-startCtx.Done():
		}
	}()

	remote, err := newRemotePlugin(startCtx, conn, f.options.CallTimeout, logger)
	if err != nil {
		exited := !proc.IsAlive()
		b.abort()
		if exited {
			return nil, NewBoundaryError("plugin process exited during handshake", proc.Info().ExitErr)
		}
		return nil, NewBoundaryError("plugin process did not become ready", err)
	}
	b.plugin = remote

	logger.Debug("Subprocess boundary opened", "pid", proc.Info().PID, "plugin", remote.ID())
	return b, nil
}

func checkExecutable(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return NewModuleNotFoundError(path, err)
	}
	if !info.Mode().IsRegular() {
		return NewModuleResolutionError(path, "module is not a regular file", nil)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm()&0o111 == 0 {
		return NewModuleResolutionError(path, "module is not executable", nil)
	}
	return nil
}

type subprocessBoundary struct {
	source      string
	socket      string
	process     *Process
	conn        *grpc.ClientConn
	plugin      *remotePlugin
	stopTimeout time.Duration
	logger      Logger

	releaseOnce sync.Once
	releaseErr  error
}

func (b *subprocessBoundary) Plugin() Plugin { return b.plugin }
func (b *subprocessBoundary) Source() string { return b.source }

// Release closes the connection and terminates the child.
func (b *subprocessBoundary) Release(ctx context.Context) error {
	b.releaseOnce.Do(func() {
		if b.conn != nil {
			if err := b.conn.Close(); err != nil {
				b.logger.Debug("Closing plugin connection failed", "error", err)
			}
		}

		stopCtx, cancel := context.WithTimeout(ctx, b.stopTimeout)
		defer cancel()
		b.releaseErr = b.process.Stop(stopCtx)

		if err := os.Remove(b.socket); err != nil && !os.IsNotExist(err) {
			b.logger.Debug("Removing plugin socket failed", "socket", b.socket, "error", err)
		}
	})
	return b.releaseErr
}

// abort tears down a half-opened boundary.
func (b *subprocessBoundary) abort() {
	ctx, cancel := context.WithTimeout(context.Background(), b.stopTimeout)
	defer cancel()
	_ = b.Release(ctx)
}
