package soak

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"syscall"
	"time"
)

// Shutdown escalation for the child process.
const (
	interruptWait = 10 * time.Second
	terminateWait = 5 * time.Second
)

// ChildProcess runs the assistant under test for the duration of a soak.
type ChildProcess struct {
	cmd  *exec.Cmd
	done chan error
}

// StartChild launches argv with stdout and stderr inherited.
func StartChild(argv []string) (*ChildProcess, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("soak: empty child command")
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("soak: start %q: %w", argv[0], err)
	}

	p := &ChildProcess{cmd: cmd, done: make(chan error, 1)}
	go func() { p.done <- cmd.Wait() }()
	slog.Info("child process started", "pid", cmd.Process.Pid, "command", argv[0])
	return p, nil
}

// Done reports the child's exit.
func (p *ChildProcess) Done() <-chan error { return p.done }

// Stop shuts the child down gracefully: interrupt, then terminate, then
// kill, each after a grace period.
func (p *ChildProcess) Stop(ctx context.Context) error {
	if err := p.cmd.Process.Signal(os.Interrupt); err != nil {
		slog.Warn("interrupt failed, escalating", "error", err)
	}
	if err, ok := p.waitExit(ctx, interruptWait); ok {
		return err
	}

	slog.Warn("child ignored interrupt, terminating")
	if err := p.cmd.Process.Signal(syscall.SIGTERM); err == nil {
		if err, ok := p.waitExit(ctx, terminateWait); ok {
			return err
		}
	}

	slog.Warn("killing child process")
	_ = p.cmd.Process.Kill()
	err, _ := p.waitExit(ctx, terminateWait)
	return err
}

func (p *ChildProcess) waitExit(ctx context.Context, d time.Duration) (error, bool) {
	select {
	case err := <-p.done:
		return err, true
	case <-time.After(d):
		return nil, false
	case <-ctx.Done():
		return ctx.Err(), false
	}
}
