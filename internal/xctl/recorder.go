package xctl

import (
	"fmt"
	"strings"
	"sync"

	"github.com/banshee-data/orientd/internal/orient"
)

// Recorder implements Controller and Enumerator for testing. It records
// every call and can be primed to fail a given operation.
type Recorder struct {
	mu sync.Mutex

	// Calls is the ordered log of operations, one human-readable line each.
	Calls []string

	// Devices is what ListInputDeviceNames reports.
	Devices map[string]bool

	// FailOp makes any call whose log line contains this substring fail.
	FailOp string
}

// NewRecorder returns an empty Recorder reporting the given device names.
func NewRecorder(devices ...string) *Recorder {
	set := make(map[string]bool, len(devices))
	for _, d := range devices {
		set[d] = true
	}
	return &Recorder{Devices: set}
}

func (r *Recorder) record(line string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Calls = append(r.Calls, line)
	if r.FailOp != "" && strings.Contains(line, r.FailOp) {
		return fmt.Errorf("forced failure on %q", line)
	}
	return nil
}

// CallLog returns a copy of the recorded operations.
func (r *Recorder) CallLog() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.Calls))
	copy(out, r.Calls)
	return out
}

// SetDisplayRotation records the rotation request.
func (r *Recorder) SetDisplayRotation(output string, o orient.Orientation) error {
	return r.record(fmt.Sprintf("rotate %s %s", output, o))
}

// SetDeviceEnabled records the enable/disable request.
func (r *Recorder) SetDeviceEnabled(name, kind string, enabled bool) error {
	verb := "disable"
	if enabled {
		verb = "enable"
	}
	return r.record(fmt.Sprintf("%s %s:%s", verb, kind, name))
}

// SetTouchTransform records the transform request.
func (r *Recorder) SetTouchTransform(name string, matrix [9]float64, stylusMode string) error {
	return r.record(fmt.Sprintf("transform %s %v %s", name, matrix, stylusMode))
}

// ListInputDeviceNames returns the primed device set.
func (r *Recorder) ListInputDeviceNames() (map[string]bool, error) {
	return r.Devices, nil
}
