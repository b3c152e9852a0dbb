// Package xctl drives the X display and input stack. Rotation goes through
// xrandr, device enable/disable and touch transforms through xinput, stylus
// rotation through xsetwacom. Every operation is a synchronous subprocess
// call that either succeeds or returns a process-level error.
package xctl

import (
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"github.com/banshee-data/orientd/internal/orient"
)

// Controller is the display/input side-effect surface the engine consumes.
type Controller interface {
	// SetDisplayRotation rotates the named output to the orientation's
	// rotation identifier.
	SetDisplayRotation(output string, o orient.Orientation) error

	// SetDeviceEnabled enables or disables an input device. kind is the
	// xinput device class prefix ("keyboard" or "pointer").
	SetDeviceEnabled(name, kind string, enabled bool) error

	// SetTouchTransform applies a coordinate transform matrix and stylus
	// mode to a touchscreen or pen device.
	SetTouchTransform(name string, matrix [9]float64, stylusMode string) error
}

// Enumerator lists the input device names actually present, used once at
// startup to filter the configured device lists.
type Enumerator interface {
	ListInputDeviceNames() (map[string]bool, error)
}

// X11 implements Controller and Enumerator by shelling out to the X tools.
type X11 struct {
	// Env is the environment for the spawned tools; nil means inherit.
	Env []string

	// run is swappable for tests.
	run func(name string, arg ...string) error
	out func(name string, arg ...string) ([]byte, error)
}

// NewX11 returns a controller using the current process environment.
func NewX11() *X11 {
	x := &X11{Env: os.Environ()}
	x.run = x.execRun
	x.out = x.execOutput
	return x
}

func (x *X11) execRun(name string, arg ...string) error {
	cmd := exec.Command(name, arg...)
	cmd.Env = x.Env
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("%s %s: %w (%s)", name, strings.Join(arg, " "), err, strings.TrimSpace(string(out)))
	}
	return nil
}

func (x *X11) execOutput(name string, arg ...string) ([]byte, error) {
	cmd := exec.Command(name, arg...)
	cmd.Env = x.Env
	return cmd.Output()
}

// SetDisplayRotation rotates output via xrandr.
func (x *X11) SetDisplayRotation(output string, o orient.Orientation) error {
	return x.run("xrandr", "--output", output, "--rotate", o.String())
}

// SetDeviceEnabled flips an xinput device on or off.
func (x *X11) SetDeviceEnabled(name, kind string, enabled bool) error {
	verb := "disable"
	if enabled {
		verb = "enable"
	}
	return x.run("xinput", verb, kind+":"+name)
}

// SetTouchTransform sets the coordinate transform matrix on a device and,
// for pen devices, the wacom rotation. Only the wacom tool understands
// stylus rotation, so it is applied just to devices that identify as such.
func (x *X11) SetTouchTransform(name string, matrix [9]float64, stylusMode string) error {
	args := []string{"set-prop", name, "Coordinate Transformation Matrix"}
	for _, v := range matrix {
		args = append(args, strconv.FormatFloat(v, 'f', -1, 64))
	}
	if err := x.run("xinput", args...); err != nil {
		return err
	}
	lower := strings.ToLower(name)
	if stylusMode != "" && (strings.Contains(lower, "stylus") || strings.Contains(lower, "pen")) {
		return x.run("xsetwacom", "--set", name, "Rotate", stylusMode)
	}
	return nil
}

// ListInputDeviceNames returns the set of devices xinput reports.
func (x *X11) ListInputDeviceNames() (map[string]bool, error) {
	out, err := x.out("xinput", "--list", "--name-only")
	if err != nil {
		return nil, fmt.Errorf("failed to list input devices: %w", err)
	}
	names := make(map[string]bool)
	for _, line := range strings.Split(string(out), "\n") {
		if line = strings.TrimSpace(line); line != "" {
			names[line] = true
		}
	}
	return names, nil
}
