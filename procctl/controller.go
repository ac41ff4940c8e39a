// Package procctl is the client-side server process controller: it
// launches the server executable, watches for its unexpected exit, and
// tears it down cleanly at shutdown. It is the Go realization of
// util_process.h's Process class and d3d9_lss.cpp's InitServer/
// OnServerExited pair, generalized away from a single package-level
// gpServer global into an explicit Controller value the caller owns.
package procctl

import (
	"context"
	"errors"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	gopsproc "github.com/shirou/gopsutil/v3/process"
	"github.com/sirupsen/logrus"
)

var log logrus.FieldLogger = logrus.New().WithField("component", "procctl")

// SetLogger overrides the package-level logger.
func SetLogger(l logrus.FieldLogger) { log = l }

// ErrAlreadyLaunched is returned by Launch if the Controller already
// has a running child.
var ErrAlreadyLaunched = errors.New("procctl: server already launched")

// ExitCallback is invoked exactly once when the launched process exits
// — whether cleanly or not — on the exit-watcher goroutine, or on
// OnExit's caller if the process had already exited. err is nil
// only for a clean zero-exit-code termination.
type ExitCallback func(c *Controller, err error)

// Controller launches and supervises the server subprocess. The zero
// value is not usable; construct with New.
type Controller struct {
	mu      sync.Mutex
	cmd     *exec.Cmd
	started bool

	exited    atomic.Bool
	exitErr   error
	done      chan struct{}
	onExit    ExitCallback
	callbackM sync.Mutex
}

// New returns an unlaunched Controller.
func New() *Controller {
	return &Controller{done: make(chan struct{})}
}

// Launch spawns exePath with the given arguments — by convention the
// session GUID, the bridge version string, and the original process's
// own command line, mirroring InitServer's argument order — and starts
// a one-shot background wait for its exit. Launch may only be called
// once per Controller.
func (c *Controller) Launch(exePath string, args ...string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started {
		return ErrAlreadyLaunched
	}
	cmd := exec.Command(exePath, args...)
	if err := cmd.Start(); err != nil {
		return err
	}
	c.cmd = cmd
	c.started = true
	log.WithField("pid", cmd.Process.Pid).WithField("exe", exePath).Info("server process launched")

	go c.waitForExit()
	return nil
}

func (c *Controller) waitForExit() {
	err := c.cmd.Wait()
	if err != nil {
		log.WithError(err).Warn("server process exited with an error")
	} else {
		log.Info("server process exited")
	}
	// Publishing the exit and reading the callback under one lock means
	// exactly one of this goroutine and OnExit runs the callback.
	c.callbackM.Lock()
	c.exitErr = err
	c.exited.Store(true)
	cb := c.onExit
	c.callbackM.Unlock()
	close(c.done)

	if cb != nil {
		cb(c, err)
	}
}

// OnExit registers the callback to run when the server process exits.
// If the process has already exited by the time OnExit is called, the
// callback fires immediately on the calling goroutine instead of being
// lost, the same "register or fire now" guarantee RegisterExitCallback
// gives the source's OnServerExited.
func (c *Controller) OnExit(fn ExitCallback) {
	c.callbackM.Lock()
	c.onExit = fn
	alreadyExited := c.exited.Load()
	c.callbackM.Unlock()
	if alreadyExited {
		fn(c, c.exitErr)
	}
}

// Pid returns the launched process's id, or 0 if it hasn't been
// launched.
func (c *Controller) Pid() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cmd == nil || c.cmd.Process == nil {
		return 0
	}
	return c.cmd.Process.Pid
}

// IsAlive reports whether the server process is still running,
// queried independently of the blocking exit-wait goroutine — useful
// for a cheap liveness probe from a watchdog tick.
func (c *Controller) IsAlive() bool {
	pid := c.Pid()
	if pid == 0 || c.exited.Load() {
		return false
	}
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	running, err := p.IsRunning()
	return err == nil && running
}

// Wait blocks until the server process exits or ctx is done, returning
// the process's exit error (nil on a clean exit) or ctx.Err().
func (c *Controller) Wait(ctx context.Context) error {
	select {
	case <-c.done:
		return c.exitErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Kill forcibly terminates the server process, used when a graceful
// Terminate/Ack handshake at the bridge level doesn't complete within
// its timeout.
func (c *Controller) Kill() error {
	c.mu.Lock()
	cmd := c.cmd
	c.mu.Unlock()
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	return cmd.Process.Kill()
}

// Shutdown waits up to timeout for a clean exit (one the caller should
// have already requested at the bridge level via a Terminate/Ack
// exchange) and falls back to Kill if the process is still alive once
// the deadline passes. A process that exited on its own before the
// deadline is not killed; its exit error (nil on a clean exit) is
// returned.
func (c *Controller) Shutdown(timeout time.Duration) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	err := c.Wait(ctx)
	if err == nil || c.exited.Load() {
		return err
	}
	log.Warn("server did not exit within shutdown timeout, killing")
	return c.Kill()
}

// BuildArgs composes the argument list InitServer passes its child:
// session GUID, bridge version, and the client's own command line,
// in that fixed order.
func BuildArgs(sessionGUID, version string, clientArgs []string) []string {
	args := make([]string, 0, 2+len(clientArgs))
	args = append(args, sessionGUID, version)
	args = append(args, clientArgs...)
	return args
}
