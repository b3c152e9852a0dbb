package xctl

import (
	"errors"
	"strings"
	"testing"

	"github.com/banshee-data/orientd/internal/orient"
)

// fakeExec captures commands instead of running them.
type fakeExec struct {
	commands []string
	runErr   error
	output   string
}

func (f *fakeExec) run(name string, arg ...string) error {
	f.commands = append(f.commands, name+" "+strings.Join(arg, " "))
	return f.runErr
}

func (f *fakeExec) out(name string, arg ...string) ([]byte, error) {
	f.commands = append(f.commands, name+" "+strings.Join(arg, " "))
	return []byte(f.output), f.runErr
}

func newTestX11(f *fakeExec) *X11 {
	x := NewX11()
	x.run = f.run
	x.out = f.out
	return x
}

func TestSetDisplayRotation(t *testing.T) {
	f := &fakeExec{}
	x := newTestX11(f)

	if err := x.SetDisplayRotation("eDP1", orient.Left); err != nil {
		t.Fatalf("SetDisplayRotation failed: %v", err)
	}
	want := "xrandr --output eDP1 --rotate left"
	if len(f.commands) != 1 || f.commands[0] != want {
		t.Errorf("commands = %v, want [%q]", f.commands, want)
	}
}

func TestSetDeviceEnabled(t *testing.T) {
	f := &fakeExec{}
	x := newTestX11(f)

	if err := x.SetDeviceEnabled("AT Translated Set 2 keyboard", "keyboard", false); err != nil {
		t.Fatalf("SetDeviceEnabled failed: %v", err)
	}
	if err := x.SetDeviceEnabled("TPPS/2 IBM TrackPoint", "pointer", true); err != nil {
		t.Fatalf("SetDeviceEnabled failed: %v", err)
	}

	want := []string{
		"xinput disable keyboard:AT Translated Set 2 keyboard",
		"xinput enable pointer:TPPS/2 IBM TrackPoint",
	}
	for i, w := range want {
		if f.commands[i] != w {
			t.Errorf("command %d = %q, want %q", i, f.commands[i], w)
		}
	}
}

func TestSetTouchTransform(t *testing.T) {
	f := &fakeExec{}
	x := newTestX11(f)

	m := orient.Left.TransformMatrix()
	if err := x.SetTouchTransform("ELAN Touchscreen", m, "ccw"); err != nil {
		t.Fatalf("SetTouchTransform failed: %v", err)
	}
	if len(f.commands) != 1 {
		t.Fatalf("expected one command for a non-pen device, got %v", f.commands)
	}
	want := "xinput set-prop ELAN Touchscreen Coordinate Transformation Matrix 0 -1 1 1 0 0 0 0 1"
	if f.commands[0] != want {
		t.Errorf("command = %q, want %q", f.commands[0], want)
	}
}

func TestSetTouchTransform_StylusGetsWacomRotate(t *testing.T) {
	f := &fakeExec{}
	x := newTestX11(f)

	m := orient.Right.TransformMatrix()
	if err := x.SetTouchTransform("Wacom ISDv4 EC Pen stylus", m, "cw"); err != nil {
		t.Fatalf("SetTouchTransform failed: %v", err)
	}
	if len(f.commands) != 2 {
		t.Fatalf("expected transform plus wacom rotate, got %v", f.commands)
	}
	if f.commands[1] != "xsetwacom --set Wacom ISDv4 EC Pen stylus Rotate cw" {
		t.Errorf("unexpected wacom command %q", f.commands[1])
	}
}

func TestSetTouchTransform_PropagatesError(t *testing.T) {
	f := &fakeExec{runErr: errors.New("no such device")}
	x := newTestX11(f)

	if err := x.SetTouchTransform("ELAN Touchscreen", orient.Normal.TransformMatrix(), "none"); err == nil {
		t.Fatal("expected error to propagate")
	}
}

func TestListInputDeviceNames(t *testing.T) {
	f := &fakeExec{output: "Virtual core pointer\nELAN Touchscreen\n\nAT Translated Set 2 keyboard\n"}
	x := newTestX11(f)

	names, err := x.ListInputDeviceNames()
	if err != nil {
		t.Fatalf("ListInputDeviceNames failed: %v", err)
	}
	for _, want := range []string{"Virtual core pointer", "ELAN Touchscreen", "AT Translated Set 2 keyboard"} {
		if !names[want] {
			t.Errorf("expected %q in device set %v", want, names)
		}
	}
	if len(names) != 3 {
		t.Errorf("expected 3 devices, got %d", len(names))
	}
}

func TestRecorder_FailOp(t *testing.T) {
	r := NewRecorder("ELAN Touchscreen")
	r.FailOp = "rotate"

	if err := r.SetDeviceEnabled("kb", "keyboard", true); err != nil {
		t.Fatalf("unexpected failure: %v", err)
	}
	if err := r.SetDisplayRotation("eDP1", orient.Left); err == nil {
		t.Fatal("expected forced failure")
	}
}
