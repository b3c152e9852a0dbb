// Package swdev publishes the resolved mode to the kernel as a virtual
// SW_TABLET_MODE switch device, so evdev consumers (compositors, libinput)
// see the same mode this daemon acts on.
package swdev

import (
	"fmt"
	"syscall"
	"time"

	"github.com/holoplot/go-evdev"
)

// Switch is a virtual uinput device carrying a single tablet-mode switch.
type Switch struct {
	dev *evdev.InputDevice
}

// New creates the virtual switch device.
func New() (*Switch, error) {
	dev, err := evdev.CreateDevice(
		"orientd Tablet Mode",
		evdev.InputID{
			BusType: 0x03,
			Vendor:  0x4242,
			Product: 0x0001,
			Version: 1,
		},
		map[evdev.EvType][]evdev.EvCode{
			evdev.EV_SW: {
				evdev.SW_TABLET_MODE,
			},
		},
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create virtual switch device: %w", err)
	}
	return &Switch{dev: dev}, nil
}

// Publish emits the switch state followed by a SYN report.
func (s *Switch) Publish(tablet bool) error {
	evTime := syscall.NsecToTimeval(time.Now().UnixNano())
	var value int32
	if tablet {
		value = 1
	}

	if err := s.dev.WriteOne(&evdev.InputEvent{
		Time:  evTime,
		Type:  evdev.EV_SW,
		Code:  evdev.SW_TABLET_MODE,
		Value: value,
	}); err != nil {
		return fmt.Errorf("failed to write switch event: %w", err)
	}
	if err := s.dev.WriteOne(&evdev.InputEvent{
		Time: evTime,
		Type: evdev.EV_SYN,
		Code: evdev.SYN_REPORT,
	}); err != nil {
		return fmt.Errorf("failed to write syn report: %w", err)
	}
	return nil
}

// Close removes the virtual device.
func (s *Switch) Close() error {
	return s.dev.Close()
}
