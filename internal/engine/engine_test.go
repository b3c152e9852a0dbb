package engine

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/banshee-data/orientd/internal/iio"
	"github.com/banshee-data/orientd/internal/orient"
	"github.com/banshee-data/orientd/internal/timeutil"
	"github.com/banshee-data/orientd/internal/xctl"
)

// fakeSensors returns a scripted sequence of readings; the last reading
// repeats once the script is exhausted.
type fakeSensors struct {
	mu       sync.Mutex
	readings []iio.Reading
	err      error
	faults   int
}

func (f *fakeSensors) Read() (iio.Reading, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return iio.Reading{}, f.err
	}
	if len(f.readings) == 0 {
		return iio.Reading{}, nil
	}
	r := f.readings[0]
	if len(f.readings) > 1 {
		f.readings = f.readings[1:]
	}
	return r, nil
}

func (f *fakeSensors) Faults() int { return f.faults }

type fakeKeyboard struct {
	launches   int
	terminates int
	launchErr  error
}

func (f *fakeKeyboard) Launch() error {
	f.launches++
	return f.launchErr
}

func (f *fakeKeyboard) Terminate() error {
	f.terminates++
	return nil
}

type fakeSwitch struct {
	published []bool
}

func (f *fakeSwitch) Publish(tablet bool) error {
	f.published = append(f.published, tablet)
	return nil
}

type fakeRecorder struct {
	mu          sync.Mutex
	transitions []string
	readings    int
}

func (f *fakeRecorder) RecordTransition(kind, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.transitions = append(f.transitions, kind+"="+value)
	return nil
}

func (f *fakeRecorder) RecordReading(r iio.Reading) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.readings++
	return nil
}

type fixture struct {
	engine   *Engine
	ctl      *xctl.Recorder
	sensors  *fakeSensors
	keyboard *fakeKeyboard
	swpub    *fakeSwitch
	recorder *fakeRecorder
	lidOpen  bool
	modeCh   chan bool
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		ctl:      xctl.NewRecorder(),
		sensors:  &fakeSensors{},
		keyboard: &fakeKeyboard{},
		swpub:    &fakeSwitch{},
		recorder: &fakeRecorder{},
		lidOpen:  true,
		modeCh:   make(chan bool, 1),
	}
	f.engine = New(Options{
		Sensors:    f.sensors,
		Controller: f.ctl,
		Keyboard:   f.keyboard,
		Switch:     f.swpub,
		Recorder:   f.recorder,
		LidOpen:    func() bool { return f.lidOpen },
		Devices: DeviceSet{
			Keyboards:    []string{"AT Translated Set 2 keyboard"},
			Pointers:     []string{"TPPS/2 IBM TrackPoint"},
			Touchscreens: []string{"ELAN Touchscreen"},
		},
		Output:           "eDP1",
		GravityThreshold: 2.0,
		PollInterval:     time.Second,
		ModeEvents:       f.modeCh,
	})
	return f
}

// flat is a reading inside the docked envelope with the device at rest.
var flat = iio.Reading{InclX: 0, InclY: 0, InclZ: 0, AccelX: 0, AccelY: 0}

func TestNewDeviceSet_IntersectsWithPresent(t *testing.T) {
	present := map[string]bool{
		"AT Translated Set 2 keyboard": true,
		"ELAN Touchscreen":             true,
	}
	ds := NewDeviceSet(
		[]string{"AT Translated Set 2 keyboard", "Ghost Keyboard"},
		[]string{"Ghost Pointer"},
		[]string{"ELAN Touchscreen"},
		present,
	)

	if len(ds.Keyboards) != 1 || ds.Keyboards[0] != "AT Translated Set 2 keyboard" {
		t.Errorf("Keyboards = %v", ds.Keyboards)
	}
	if len(ds.Pointers) != 0 {
		t.Errorf("Pointers = %v, want empty", ds.Pointers)
	}
	if len(ds.Touchscreens) != 1 {
		t.Errorf("Touchscreens = %v", ds.Touchscreens)
	}
}

func TestTick_FlatLaptopProducesNoSideEffects(t *testing.T) {
	f := newFixture(t)
	f.sensors.readings = []iio.Reading{flat}

	if err := f.engine.tick(); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if got := f.ctl.CallLog(); len(got) != 0 {
		t.Errorf("expected no controller calls, got %v", got)
	}
	st := f.engine.Status()
	if st.Mode != "laptop" || st.Orientation != "normal" {
		t.Errorf("state = %s/%s, want laptop/normal", st.Mode, st.Orientation)
	}
}

func TestAuthoritativeTabletAppliesModeSideEffects(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.applyAuthoritative(true); err != nil {
		t.Fatalf("applyAuthoritative failed: %v", err)
	}

	calls := f.ctl.CallLog()
	want := []string{
		"disable keyboard:AT Translated Set 2 keyboard",
		"disable pointer:TPPS/2 IBM TrackPoint",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
	if f.keyboard.launches != 1 {
		t.Errorf("launches = %d, want 1", f.keyboard.launches)
	}
	if len(f.swpub.published) != 1 || !f.swpub.published[0] {
		t.Errorf("published = %v, want [true]", f.swpub.published)
	}
	if st := f.engine.Status(); st.Mode != "tablet" {
		t.Errorf("mode = %s, want tablet", st.Mode)
	}
}

func TestAuthoritativeRepeatIsNoop(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.applyAuthoritative(true); err != nil {
		t.Fatalf("applyAuthoritative failed: %v", err)
	}
	before := len(f.ctl.CallLog())

	if err := f.engine.applyAuthoritative(true); err != nil {
		t.Fatalf("repeated applyAuthoritative failed: %v", err)
	}
	if got := len(f.ctl.CallLog()); got != before {
		t.Errorf("repeated signal added side effects: %d -> %d calls", before, got)
	}
}

func TestAuthoritativeIsStickyAgainstHeuristics(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.applyAuthoritative(true); err != nil {
		t.Fatalf("applyAuthoritative failed: %v", err)
	}

	// lid closed and flat inclination would both force laptop heuristically
	f.lidOpen = false
	f.sensors.readings = []iio.Reading{flat}
	if err := f.engine.tick(); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if st := f.engine.Status(); st.Mode != "tablet" {
		t.Errorf("mode = %s, want tablet (authoritative signal is sticky)", st.Mode)
	}
}

func TestHeuristicLidClosedForcesLaptop(t *testing.T) {
	f := newFixture(t)
	// enter tablet without an authoritative signal
	f.engine.mode = orient.Tablet

	f.lidOpen = false
	f.sensors.readings = []iio.Reading{{InclX: 45, InclY: 45, AccelX: 0, AccelY: 0}}
	if err := f.engine.tick(); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	if st := f.engine.Status(); st.Mode != "laptop" {
		t.Errorf("mode = %s, want laptop when lid is closed", st.Mode)
	}
	// re-enabling the devices happened
	found := false
	for _, c := range f.ctl.CallLog() {
		if c == "enable keyboard:AT Translated Set 2 keyboard" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected keyboard re-enable in %v", f.ctl.CallLog())
	}
}

func TestTabletTickClassifiesOrientation(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.applyAuthoritative(true); err != nil {
		t.Fatalf("applyAuthoritative failed: %v", err)
	}
	f.ctl.Calls = nil

	// gravity on +x beyond the threshold rotates left
	f.sensors.readings = []iio.Reading{{InclX: 50, InclY: 50, AccelX: 3.0, AccelY: 0.0}}
	if err := f.engine.tick(); err != nil {
		t.Fatalf("tick failed: %v", err)
	}

	calls := f.ctl.CallLog()
	want := []string{
		"rotate eDP1 left",
		"transform ELAN Touchscreen [0 -1 1 1 0 0 0 0 1] ccw",
	}
	if len(calls) != len(want) {
		t.Fatalf("calls = %v, want %v", calls, want)
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %q, want %q", i, calls[i], want[i])
		}
	}
	if st := f.engine.Status(); st.Orientation != "left" {
		t.Errorf("orientation = %s, want left", st.Orientation)
	}
}

func TestRepeatedIdenticalTicksAreIdempotent(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.applyAuthoritative(true); err != nil {
		t.Fatalf("applyAuthoritative failed: %v", err)
	}
	reading := iio.Reading{InclX: 50, InclY: 50, AccelX: 3.0, AccelY: 0.0}
	f.sensors.readings = []iio.Reading{reading}

	if err := f.engine.tick(); err != nil {
		t.Fatalf("first tick failed: %v", err)
	}
	before := len(f.ctl.CallLog())

	for i := 0; i < 3; i++ {
		if err := f.engine.tick(); err != nil {
			t.Fatalf("tick %d failed: %v", i, err)
		}
	}
	if got := len(f.ctl.CallLog()); got != before {
		t.Errorf("identical ticks produced side effects: %d -> %d calls", before, got)
	}
}

func TestOrientationIsForcedNormalInLaptopMode(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.applyAuthoritative(true); err != nil {
		t.Fatalf("applyAuthoritative failed: %v", err)
	}
	f.sensors.readings = []iio.Reading{{InclX: 50, InclY: 50, AccelX: 3.0}}
	if err := f.engine.tick(); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if st := f.engine.Status(); st.Orientation != "left" {
		t.Fatalf("precondition failed: orientation = %s", st.Orientation)
	}

	// leaving tablet mode restores normal on the same tick, even though the
	// accelerometer still reports a rotated posture
	if err := f.engine.applyAuthoritative(false); err != nil {
		t.Fatalf("applyAuthoritative failed: %v", err)
	}
	f.sensors.readings = []iio.Reading{{InclX: 50, InclY: 50, AccelX: 3.0}}
	if err := f.engine.tick(); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if st := f.engine.Status(); st.Orientation != "normal" {
		t.Errorf("orientation = %s, want normal after leaving tablet mode", st.Orientation)
	}
}

func TestShutdownRestoresLaptopNormalInOrder(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.applyAuthoritative(true); err != nil {
		t.Fatalf("applyAuthoritative failed: %v", err)
	}
	f.sensors.readings = []iio.Reading{{InclX: 50, InclY: 50, AccelX: -3.0}}
	if err := f.engine.tick(); err != nil {
		t.Fatalf("tick failed: %v", err)
	}
	if st := f.engine.Status(); st.Orientation != "right" {
		t.Fatalf("precondition failed: orientation = %s", st.Orientation)
	}
	f.ctl.Calls = nil

	if err := f.engine.shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}

	calls := f.ctl.CallLog()
	var enableIdx, rotateIdx = -1, -1
	for i, c := range calls {
		if strings.HasPrefix(c, "enable keyboard:") {
			enableIdx = i
		}
		if c == "rotate eDP1 normal" {
			rotateIdx = i
		}
	}
	if enableIdx == -1 || rotateIdx == -1 {
		t.Fatalf("missing restore calls in %v", calls)
	}
	if enableIdx > rotateIdx {
		t.Errorf("mode restore must precede orientation restore: %v", calls)
	}
	if f.keyboard.terminates == 0 {
		t.Error("on-screen keyboard was not terminated")
	}
	st := f.engine.Status()
	if st.Mode != "laptop" || st.Orientation != "normal" {
		t.Errorf("terminal state = %s/%s, want laptop/normal", st.Mode, st.Orientation)
	}
}

func TestShutdownFromDefaultStateIsNoop(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.shutdown(); err != nil {
		t.Fatalf("shutdown failed: %v", err)
	}
	if got := f.ctl.CallLog(); len(got) != 0 {
		t.Errorf("expected no side effects, got %v", got)
	}
}

func TestSideEffectFailureIsFatal(t *testing.T) {
	f := newFixture(t)
	f.ctl.FailOp = "disable keyboard"

	if err := f.engine.applyAuthoritative(true); err == nil {
		t.Fatal("expected side-effect failure to propagate")
	}
}

func TestSensorFailureIsFatalToTick(t *testing.T) {
	f := newFixture(t)
	f.sensors.err = errors.New("sensor device gone")

	if err := f.engine.tick(); err == nil {
		t.Fatal("expected sensor failure to propagate")
	}
}

func TestSetPollInterval(t *testing.T) {
	f := newFixture(t)

	if err := f.engine.SetPollInterval(0); err == nil {
		t.Error("expected rejection of zero interval")
	}
	if err := f.engine.SetPollInterval(-5); err == nil {
		t.Error("expected rejection of negative interval")
	}
	if got := f.engine.Status().PollIntervalSeconds; got != 1 {
		t.Errorf("interval = %d, want previous value 1 after rejections", got)
	}

	if err := f.engine.SetPollInterval(5); err != nil {
		t.Fatalf("SetPollInterval failed: %v", err)
	}
	if got := f.engine.Status().PollIntervalSeconds; got != 5 {
		t.Errorf("interval = %d, want 5", got)
	}

	// repeated updates coalesce without blocking
	if err := f.engine.SetPollInterval(7); err != nil {
		t.Fatalf("SetPollInterval failed: %v", err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not reached before timeout")
}

func TestRunLoop(t *testing.T) {
	f := newFixture(t)
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	f.engine.clock = clock
	f.sensors.readings = []iio.Reading{flat}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	// ticks flow through the loop and update the snapshot; keep advancing
	// until the loop has registered its ticker and processed one fire
	waitFor(t, time.Second, func() bool {
		clock.Advance(time.Second)
		f.recorder.mu.Lock()
		defer f.recorder.mu.Unlock()
		return f.recorder.readings >= 1
	})

	// an authoritative event flips mode without waiting for a tick
	f.modeCh <- true
	waitFor(t, time.Second, func() bool {
		return f.engine.Status().Mode == "tablet"
	})

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned error: %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancellation")
	}

	st := f.engine.Status()
	if st.Mode != "laptop" || st.Orientation != "normal" {
		t.Errorf("terminal state = %s/%s, want laptop/normal", st.Mode, st.Orientation)
	}
}

func TestRunPropagatesFatalSensorError(t *testing.T) {
	f := newFixture(t)
	clock := timeutil.NewMockClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	f.engine.clock = clock
	f.sensors.err = errors.New("sensor device gone")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- f.engine.Run(ctx) }()

	deadline := time.After(time.Second)
	for {
		clock.Advance(time.Second)
		select {
		case err := <-done:
			if err == nil {
				t.Fatal("expected fatal error from Run")
			}
			return
		case <-deadline:
			t.Fatal("Run did not terminate on sensor failure")
		default:
			time.Sleep(time.Millisecond)
		}
	}
}
