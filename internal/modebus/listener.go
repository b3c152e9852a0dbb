// Package modebus receives the platform's authoritative tablet-mode signal
// from the system bus. The signal carries a single boolean ("is tablet") and
// is typically emitted by an ACPI event handler via dbus-send.
package modebus

import (
	"fmt"

	"github.com/godbus/dbus/v5"

	"github.com/banshee-data/orientd/internal/monitoring"
)

const (
	// Interface and Path name the signal this daemon listens for.
	Interface = "report.velocity.orientd"
	Path      = "/report/velocity/orientd"
	Member    = "tabletmode"
)

// Listener subscribes to the tablet-mode signal and exposes it as a channel
// of booleans. No sender filter is registered: any local sender (including
// dbus-send from an ACPI hook) is accepted. That is an explicit policy, not
// an oversight.
type Listener struct {
	conn   *dbus.Conn
	events chan bool
	done   chan struct{}
}

// Listen connects to the system bus and starts delivering signals.
func Listen() (*Listener, error) {
	conn, err := dbus.ConnectSystemBus()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to system bus: %w", err)
	}
	if err := conn.AddMatchSignal(
		dbus.WithMatchObjectPath(Path),
		dbus.WithMatchInterface(Interface),
		dbus.WithMatchMember(Member),
	); err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to register signal match: %w", err)
	}

	l := &Listener{
		conn:   conn,
		events: make(chan bool, 4),
		done:   make(chan struct{}),
	}
	sigCh := make(chan *dbus.Signal, 8)
	conn.Signal(sigCh)
	go l.forward(sigCh)
	return l, nil
}

func (l *Listener) forward(sigCh chan *dbus.Signal) {
	for {
		select {
		case sig, ok := <-sigCh:
			if !ok {
				close(l.events)
				return
			}
			isTablet, ok := decode(sig)
			if !ok {
				continue
			}
			select {
			case l.events <- isTablet:
			default:
				monitoring.Logf("dropping tablet-mode signal, event queue full")
			}
		case <-l.done:
			close(l.events)
			return
		}
	}
}

// decode extracts the boolean body from a matching signal.
func decode(sig *dbus.Signal) (bool, bool) {
	if sig == nil || sig.Name != Interface+"."+Member || len(sig.Body) != 1 {
		return false, false
	}
	v, ok := sig.Body[0].(bool)
	return v, ok
}

// Events returns the stream of authoritative tablet-mode booleans.
func (l *Listener) Events() <-chan bool {
	return l.events
}

// Close tears down the bus connection and closes the event channel.
func (l *Listener) Close() error {
	close(l.done)
	return l.conn.Close()
}
