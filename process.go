// process.go: supervision of plugin child processes
//
// Copyright (c) 2025 AGILira - A. Giordano
// Series: an AGILira library
// SPDX-License-Identifier: MPL-2.0

package plughost

import (
	"bufio"
	"context"
	"io"
	"os"
	"os/exec"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/agilira/go-timecache"
)

// ProcessStatus is the state of a supervised child process.
type ProcessStatus int

const (
	StatusStopped ProcessStatus = iota
	StatusStarting
	StatusRunning
	StatusStopping
	StatusExited
)

// String implements fmt.Stringer for ProcessStatus.
func (s ProcessStatus) String() string {
	switch s {
	case StatusStopped:
		return "stopped"
	case StatusStarting:
		return "starting"
	case StatusRunning:
		return "running"
	case StatusStopping:
		return "stopping"
	case StatusExited:
		return "exited"
	default:
		return "unknown"
	}
}

// ProcessInfo describes a supervised process.
type ProcessInfo struct {
	PID       int
	StartTime time.Time
	Status    ProcessStatus
	ExitErr   error
}

// ProcessConfig describes the process to launch.
type ProcessConfig struct {
	Path   string
	Args   []string
	Env    []string
	Logger Logger
}

// Process supervises one child. The child gets a stdin pipe that the host
// never writes to; closing it tells the child its parent is gone.
type Process struct {
	config ProcessConfig
	logger Logger

	mu     sync.RWMutex
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	info   ProcessInfo
	done   chan struct{}
	closed bool
}

// NewProcess creates a supervisor for config. Nothing runs until Start.
func NewProcess(config ProcessConfig) *Process {
	logger := config.Logger
	if logger == nil {
		logger = DefaultLogger()
	}
	return &Process{
		config: config,
		logger: logger.With("module", config.Path),
		info:   ProcessInfo{Status: StatusStopped},
	}
}

// Start launches the child. The child is not bound to ctx: it outlives the
// call and is only stopped through Stop.
func (p *Process) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cmd != nil {
		return nil
	}

	cmd := exec.Command(p.config.Path, p.config.Args...) // #nosec G204 -- module path resolved and checked by the boundary factory
	cmd.Env = append(os.Environ(), p.config.Env...)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return NewProcessError("failed to create stdin pipe", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return NewProcessError("failed to create stdout pipe", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return NewProcessError("failed to create stderr pipe", err)
	}

	p.info = ProcessInfo{Status: StatusStarting}
	p.logger.Debug("Starting plugin process", "args", p.config.Args)

	if err := cmd.Start(); err != nil {
		p.info.Status = StatusStopped
		return NewProcessError("failed to start process", err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.done = make(chan struct{})
	p.info = ProcessInfo{
		PID:       cmd.Process.Pid,
		StartTime: timecache.CachedTime(),
		Status:    StatusRunning,
	}

	var output sync.WaitGroup
	output.Add(2)
	go p.forwardOutput("stdout", stdout, &output)
	go p.forwardOutput("stderr", stderr, &output)
	go p.wait(cmd, &output, p.done)

	p.logger.Info("Plugin process started", "pid", p.info.PID)
	return nil
}

// forwardOutput copies child output lines into the host log.
func (p *Process) forwardOutput(stream string, r io.Reader, wg *sync.WaitGroup) {
	defer wg.Done()
	defer withStackRecover(p.logger)()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		p.logger.Debug("Plugin output", "stream", stream, "line", scanner.Text())
	}
}

// wait reaps the child once both output pipes are drained; cmd.Wait
// closes them.
func (p *Process) wait(cmd *exec.Cmd, output *sync.WaitGroup, done chan struct{}) {
	output.Wait()
	err := cmd.Wait()

	p.mu.Lock()
	p.info.Status = StatusExited
	p.info.ExitErr = err
	p.mu.Unlock()

	if err != nil {
		p.logger.Debug("Plugin process exited", "error", err)
	}
	close(done)
}

// Exited is closed once the child has exited. It is nil before Start.
func (p *Process) Exited() <-chan struct{} {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.done
}

// Info returns a copy of the process information.
func (p *Process) Info() ProcessInfo {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.info
}

// IsAlive reports whether the child is still running.
func (p *Process) IsAlive() bool {
	done := p.Exited()
	if done == nil {
		return false
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Stop closes the parent pipe, asks the child to terminate and waits for it
// to exit. When ctx expires first the child is killed. Stop is idempotent.
func (p *Process) Stop(ctx context.Context) error {
	p.mu.Lock()
	if p.cmd == nil || p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	if p.info.Status == StatusRunning {
		p.info.Status = StatusStopping
	}
	cmd, stdin, done := p.cmd, p.stdin, p.done
	p.mu.Unlock()

	_ = stdin.Close()

	select {
	case <-done:
		return nil
	default:
	}

	if err := cmd.Process.Signal(terminationSignal()); err != nil {
		p.logger.Debug("Termination signal not delivered", "error", err)
	}

	select {
	case <-done:
		p.logger.Info("Plugin process stopped", "pid", cmd.Process.Pid)
		return nil
	case <-ctx.Done():
		if err := cmd.Process.Kill(); err != nil {
			p.logger.Warn("Failed to kill plugin process", "pid", cmd.Process.Pid, "error", err)
		}
		<-done
		p.logger.Warn("Plugin process killed after stop timeout", "pid", cmd.Process.Pid)
		return NewProcessError("process did not exit before deadline", ctx.Err())
	}
}

// terminationSignal is SIGTERM, or Kill on Windows where SIGTERM cannot be
// delivered.
func terminationSignal() os.Signal {
	if runtime.GOOS == "windows" {
		return os.Kill
	}
	return syscall.SIGTERM
}
