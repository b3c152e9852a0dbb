// Package osk manages the on-screen keyboard subprocess shown in tablet
// mode. With no command configured the launcher is a no-op.
package osk

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/banshee-data/orientd/internal/monitoring"
)

// Launcher starts and stops the configured on-screen keyboard command.
type Launcher struct {
	argv []string
	env  []string
	cmd  *exec.Cmd
}

// NewLauncher creates a Launcher for the given argv. An empty argv disables
// launching entirely.
func NewLauncher(argv []string) *Launcher {
	return &Launcher{argv: argv, env: os.Environ()}
}

// Running reports whether a keyboard process is currently tracked.
func (l *Launcher) Running() bool {
	return l.cmd != nil
}

// Launch starts the keyboard if configured and not already running.
func (l *Launcher) Launch() error {
	if len(l.argv) == 0 || l.cmd != nil {
		return nil
	}
	cmd := exec.Command(l.argv[0], l.argv[1:]...)
	cmd.Env = l.env
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to launch on-screen keyboard: %w", err)
	}
	monitoring.Logf("launched on-screen keyboard (pid %d)", cmd.Process.Pid)
	l.cmd = cmd
	return nil
}

// Terminate kills the keyboard process if one is running. Safe to call
// repeatedly.
func (l *Launcher) Terminate() error {
	if l.cmd == nil {
		return nil
	}
	cmd := l.cmd
	l.cmd = nil
	if err := cmd.Process.Kill(); err != nil {
		return fmt.Errorf("failed to kill on-screen keyboard: %w", err)
	}
	// reap; the keyboard exiting with a kill status is expected
	_ = cmd.Wait()
	return nil
}
