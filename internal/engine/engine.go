// Package engine is the stateful core of the daemon: a single-threaded event
// loop that polls the sensors, resolves mode and orientation, and applies
// display/input side effects exactly once per actual state change.
package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/orientd/internal/iio"
	"github.com/banshee-data/orientd/internal/monitoring"
	"github.com/banshee-data/orientd/internal/orient"
	"github.com/banshee-data/orientd/internal/timeutil"
	"github.com/banshee-data/orientd/internal/xctl"
)

// SensorReader acquires a fresh reading each tick.
type SensorReader interface {
	Read() (iio.Reading, error)
	Faults() int
}

// KeyboardLauncher manages the on-screen keyboard subprocess.
type KeyboardLauncher interface {
	Launch() error
	Terminate() error
}

// SwitchPublisher mirrors the resolved mode to an external switch.
type SwitchPublisher interface {
	Publish(tablet bool) error
}

// Recorder persists applied transitions and sensor readings. Recording is
// diagnostic: failures are logged, never fatal.
type Recorder interface {
	RecordTransition(kind, value string) error
	RecordReading(r iio.Reading) error
}

// DeviceSet holds the input devices the engine manages, already filtered
// down to devices present on the system. Immutable after construction.
type DeviceSet struct {
	Keyboards    []string
	Pointers     []string
	Touchscreens []string
}

// NewDeviceSet intersects the configured device names with the set actually
// present; configured devices that are absent are dropped silently.
func NewDeviceSet(keyboards, pointers, touchscreens []string, present map[string]bool) DeviceSet {
	filter := func(names []string) []string {
		var kept []string
		for _, n := range names {
			if present[n] {
				kept = append(kept, n)
			}
		}
		return kept
	}
	return DeviceSet{
		Keyboards:    filter(keyboards),
		Pointers:     filter(pointers),
		Touchscreens: filter(touchscreens),
	}
}

// Status is a snapshot of engine state for the presentation layer.
type Status struct {
	Mode                string      `json:"mode"`
	Orientation         string      `json:"orientation"`
	Reading             iio.Reading `json:"reading"`
	PollIntervalSeconds int         `json:"poll_interval_seconds"`
	SensorFaults        int         `json:"sensor_faults"`
}

// Options configures a new Engine. Sensors and Controller are required;
// Switch and Recorder are optional, Clock defaults to the real clock and
// LidOpen to always-open.
type Options struct {
	Sensors          SensorReader
	Controller       xctl.Controller
	Keyboard         KeyboardLauncher
	Switch           SwitchPublisher
	Recorder         Recorder
	Clock            timeutil.Clock
	LidOpen          func() bool
	Devices          DeviceSet
	Output           string
	GravityThreshold float64
	PollInterval     time.Duration
	ModeEvents       <-chan bool
}

// Engine owns the authoritative (mode, orientation) state. All transitions
// run on the Run goroutine strictly serially, so the state needs no lock;
// the mutex below only guards the snapshot read by Status.
type Engine struct {
	sensors   SensorReader
	ctl       xctl.Controller
	keyboard  KeyboardLauncher
	swpub     SwitchPublisher
	recorder  Recorder
	clock     timeutil.Clock
	lidOpen   func() bool
	devices   DeviceSet
	output    string
	threshold float64

	modeEvents <-chan bool
	intervalCh chan time.Duration

	mode          orient.Mode
	orientation   orient.Orientation
	authoritative *bool

	mu       sync.Mutex
	snapshot Status
}

// New creates an Engine in the initial state (laptop-assumed, normal).
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = timeutil.RealClock{}
	}
	if opts.LidOpen == nil {
		opts.LidOpen = func() bool { return true }
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = time.Second
	}
	if opts.GravityThreshold <= 0 {
		opts.GravityThreshold = 2.0
	}
	e := &Engine{
		sensors:    opts.Sensors,
		ctl:        opts.Controller,
		keyboard:   opts.Keyboard,
		swpub:      opts.Switch,
		recorder:   opts.Recorder,
		clock:      opts.Clock,
		lidOpen:    opts.LidOpen,
		devices:    opts.Devices,
		output:     opts.Output,
		threshold:  opts.GravityThreshold,
		modeEvents: opts.ModeEvents,
		intervalCh: make(chan time.Duration, 1),
	}
	e.snapshot = Status{
		Mode:                e.mode.String(),
		Orientation:         e.orientation.String(),
		PollIntervalSeconds: int(opts.PollInterval / time.Second),
	}
	return e
}

// Status returns the current state snapshot.
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshot
}

// SetPollInterval requests a new poll period in whole seconds, taking
// effect from the next fire. Non-positive values are rejected and the
// previous interval is kept.
func (e *Engine) SetPollInterval(seconds int) error {
	if seconds <= 0 {
		return fmt.Errorf("poll interval must be a positive number of seconds, got %d", seconds)
	}
	d := time.Duration(seconds) * time.Second
	// coalesce: a quick succession of updates only needs the last one
	select {
	case <-e.intervalCh:
	default:
	}
	e.intervalCh <- d

	e.mu.Lock()
	e.snapshot.PollIntervalSeconds = seconds
	e.mu.Unlock()
	return nil
}

// Run drives the event loop until ctx is cancelled, then performs the
// shutdown transition back to (laptop, normal). A sensor or side-effect
// failure is fatal and returned as-is.
func (e *Engine) Run(ctx context.Context) error {
	e.mu.Lock()
	interval := time.Duration(e.snapshot.PollIntervalSeconds) * time.Second
	e.mu.Unlock()
	if interval <= 0 {
		interval = time.Second
	}

	ticker := e.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return e.shutdown()

		case <-ticker.C():
			if err := e.tick(); err != nil {
				return err
			}

		case isTablet, ok := <-e.modeEvents:
			if !ok {
				e.modeEvents = nil
				continue
			}
			if err := e.applyAuthoritative(isTablet); err != nil {
				return err
			}

		case d := <-e.intervalCh:
			ticker.Reset(d)
		}
	}
}

// tick handles one poll: acquire a reading, resolve mode, resolve
// orientation, and apply whatever changed.
func (e *Engine) tick() error {
	reading, err := e.sensors.Read()
	if err != nil {
		return err
	}
	e.mu.Lock()
	e.snapshot.Reading = reading
	e.snapshot.SensorFaults = e.sensors.Faults()
	e.mu.Unlock()

	if e.recorder != nil {
		if err := e.recorder.RecordReading(reading); err != nil {
			monitoring.Logf("failed to record reading: %v", err)
		}
	}

	monitoring.Logf("[state: %s/%s] [incl x: %6.2f y: %6.2f z: %6.2f] [accel x: %6.2f y: %6.2f]",
		e.mode, e.orientation, reading.InclX, reading.InclY, reading.InclZ, reading.AccelX, reading.AccelY)

	target := orient.ResolveMode(e.authoritative, reading.InclX, reading.InclY, e.lidOpen, e.mode)
	if target != e.mode {
		if err := e.applyMode(target); err != nil {
			return err
		}
	}

	targetOrientation := orient.Normal
	if e.mode == orient.Tablet {
		targetOrientation = orient.Classify(reading.AccelX, reading.AccelY, e.orientation, e.threshold)
	}
	if targetOrientation != e.orientation {
		if err := e.applyOrientation(targetOrientation); err != nil {
			return err
		}
	}
	return nil
}

// applyAuthoritative handles a platform mode notification. It bypasses the
// sensors entirely; orientation is re-evaluated on the next tick.
func (e *Engine) applyAuthoritative(isTablet bool) error {
	v := isTablet
	e.authoritative = &v

	target := orient.Laptop
	if isTablet {
		target = orient.Tablet
	}
	if target == e.mode {
		return nil
	}
	return e.applyMode(target)
}

// applyMode performs the mode-change side effects: flip keyboards and
// pointers, start or stop the on-screen keyboard, publish the switch state.
// State is updated optimistically alongside the calls; a failure propagates
// without rollback.
func (e *Engine) applyMode(m orient.Mode) error {
	monitoring.Logf("set mode: %s", m)
	e.setMode(m)

	enable := m == orient.Laptop
	for _, kb := range e.devices.Keyboards {
		if err := e.ctl.SetDeviceEnabled(kb, "keyboard", enable); err != nil {
			return err
		}
	}
	for _, p := range e.devices.Pointers {
		if err := e.ctl.SetDeviceEnabled(p, "pointer", enable); err != nil {
			return err
		}
	}
	if m == orient.Tablet {
		if err := e.keyboard.Launch(); err != nil {
			return err
		}
	} else {
		if err := e.keyboard.Terminate(); err != nil {
			return err
		}
	}
	if e.swpub != nil {
		if err := e.swpub.Publish(m == orient.Tablet); err != nil {
			return err
		}
	}
	if e.recorder != nil {
		if err := e.recorder.RecordTransition("mode", m.String()); err != nil {
			monitoring.Logf("failed to record mode transition: %v", err)
		}
	}
	return nil
}

// applyOrientation performs the orientation-change side effects: rotate the
// display and remap every touchscreen.
func (e *Engine) applyOrientation(o orient.Orientation) error {
	monitoring.Logf("set orientation: %s", o)
	e.setOrientation(o)

	if err := e.ctl.SetDisplayRotation(e.output, o); err != nil {
		return err
	}
	for _, ts := range e.devices.Touchscreens {
		if err := e.ctl.SetTouchTransform(ts, o.TransformMatrix(), o.StylusMode()); err != nil {
			return err
		}
	}
	if e.recorder != nil {
		if err := e.recorder.RecordTransition("orientation", o.String()); err != nil {
			monitoring.Logf("failed to record orientation transition: %v", err)
		}
	}
	return nil
}

// shutdown is the terminal transition: restore laptop mode and normal
// orientation so the machine is never left with devices disabled or the
// screen rotated, then stop the keyboard. Already-restored state makes each
// step a no-op.
func (e *Engine) shutdown() error {
	monitoring.Logf("shutting down: restoring laptop mode and normal orientation")
	if e.mode == orient.Tablet {
		forced := false
		e.authoritative = &forced
		if err := e.applyMode(orient.Laptop); err != nil {
			return err
		}
	}
	if e.orientation != orient.Normal {
		if err := e.applyOrientation(orient.Normal); err != nil {
			return err
		}
	}
	return e.keyboard.Terminate()
}

func (e *Engine) setMode(m orient.Mode) {
	e.mode = m
	e.mu.Lock()
	e.snapshot.Mode = m.String()
	e.mu.Unlock()
}

func (e *Engine) setOrientation(o orient.Orientation) {
	e.orientation = o
	e.mu.Lock()
	e.snapshot.Orientation = o.String()
	e.mu.Unlock()
}
