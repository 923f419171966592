package link

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"sync"
	"time"
)

// ErrReconnectRunning is returned when a previous reconnect command has not
// finished yet.
var ErrReconnectRunning = errors.New("link: reconnect command still running")

// interfacePlaceholder is replaced with the interface name in command arguments.
const interfacePlaceholder = "{interface}"

// CommandReconnector runs an external command (nmcli, ip, wpa_cli) to bring
// a link back. The command runs in the background so the control loop never
// waits on it; it is killed once the timeout passes.
type CommandReconnector struct {
	argv    []string
	timeout time.Duration
	logger  Logger

	mu   sync.Mutex
	done chan struct{}
}

// NewCommandReconnector creates a reconnector for argv. logger may be nil.
func NewCommandReconnector(argv []string, timeout time.Duration, logger Logger) *CommandReconnector {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandReconnector{
		argv:    append([]string(nil), argv...),
		timeout: timeout,
		logger:  logger,
	}
}

// Reconnect starts the command for iface. Only a failure to start is
// returned; the exit status is logged when the command finishes.
// Use it with WithReconnect.
func (r *CommandReconnector) Reconnect(iface string) error {
	if len(r.argv) == 0 {
		return errors.New("link: empty reconnect command")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.done != nil {
		select {
		case <-r.done:
		default:
			return ErrReconnectRunning
		}
	}

	args := make([]string, len(r.argv)-1)
	for i, a := range r.argv[1:] {
		args[i] = strings.ReplaceAll(a, interfacePlaceholder, iface)
	}

	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	cmd := exec.CommandContext(ctx, r.argv[0], args...) //nolint:gosec // Command comes from the operator's config file
	if err := cmd.Start(); err != nil {
		cancel()
		return fmt.Errorf("starting %s: %w", r.argv[0], err)
	}

	done := make(chan struct{})
	r.done = done
	go func() {
		defer close(done)
		defer cancel()
		if err := cmd.Wait(); err != nil {
			r.logger.Warn("reconnect command failed", "command", r.argv[0], "interface", iface, "error", err)
			return
		}
		r.logger.Info("reconnect command finished", "command", r.argv[0], "interface", iface)
	}()
	return nil
}

// wait blocks until the last started command has exited.
func (r *CommandReconnector) wait() {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done != nil {
		<-done
	}
}
