// Package iio locates and reads industrial-IO sensors exposed under sysfs.
// A convertible exposes an accelerometer and an inclinometer as iio devices;
// both are scalar-text-file interfaces, one value per file, with a per-device
// scale multiplier.
package iio

import (
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/banshee-data/orientd/internal/fsutil"
)

const (
	// DefaultDevicesGlob is where the kernel exposes iio devices.
	DefaultDevicesGlob = "/sys/bus/iio/devices/iio:device*"

	// DefaultLidStatePath is the ACPI lid switch state file.
	DefaultLidStatePath = "/proc/acpi/button/lid/LID0/state"

	// DefaultFaultCeiling is how many consecutive vanished-file reads are
	// tolerated per sensor before the fault is treated as permanent. USB
	// resets around suspend/resume make short streaks normal.
	DefaultFaultCeiling = 100

	// inclGranularity is applied on top of the inclinometer scale for finer
	// resolution of the tilt values.
	inclGranularity = 10.0
)

var (
	// ErrNotDiscovered is returned when both sensor kinds cannot be located.
	ErrNotDiscovered = errors.New("cannot find all sensor devices")

	// ErrSensorGone marks a sensor whose consecutive fault streak exceeded
	// the ceiling; the device is considered permanently removed.
	ErrSensorGone = errors.New("sensor device gone")
)

// Source is one discovered sensor directory plus its consecutive-fault
// streak. Mutated only by Reader.
type Source struct {
	Dir    string
	faults int
}

// Faults returns the current consecutive fault streak.
func (s *Source) Faults() int {
	if s == nil {
		return 0
	}
	return s.faults
}

// Reading is one full sensor acquisition: scaled acceleration (X/Y) and
// scaled inclination (X/Y/Z). Replaced wholesale every poll tick.
type Reading struct {
	AccelX float64 `json:"accel_x"`
	AccelY float64 `json:"accel_y"`
	InclX  float64 `json:"incl_x"`
	InclY  float64 `json:"incl_y"`
	InclZ  float64 `json:"incl_z"`
}

// Reader discovers the accelerometer and inclinometer once and reads their
// scalar files with transient-fault tolerance. Discovery is one-shot: a
// sensor path changing at runtime is not re-resolved, the reads just start
// failing until the fault ceiling trips.
type Reader struct {
	fs           fsutil.FileSystem
	devicesGlob  string
	faultCeiling int

	accel *Source
	incl  *Source
}

// NewReader creates a Reader scanning devicesGlob on first use.
// faultCeiling <= 0 selects DefaultFaultCeiling.
func NewReader(filesystem fsutil.FileSystem, devicesGlob string, faultCeiling int) *Reader {
	if devicesGlob == "" {
		devicesGlob = DefaultDevicesGlob
	}
	if faultCeiling <= 0 {
		faultCeiling = DefaultFaultCeiling
	}
	return &Reader{
		fs:           filesystem,
		devicesGlob:  devicesGlob,
		faultCeiling: faultCeiling,
	}
}

// Discover scans the device namespace and caches the directory of each
// sensor kind, matching each device's name file against the accelerometer
// and inclinometer name substrings. Both kinds must be present.
func (r *Reader) Discover() error {
	if r.accel != nil && r.incl != nil {
		return nil
	}

	dirs, err := r.fs.Glob(r.devicesGlob)
	if err != nil {
		return fmt.Errorf("failed to scan sensor devices: %w", err)
	}
	for _, dir := range dirs {
		name, err := r.fs.ReadFile(filepath.Join(dir, "name"))
		if err != nil {
			continue
		}
		switch {
		case strings.Contains(string(name), "accel"):
			if r.accel == nil {
				r.accel = &Source{Dir: dir}
			}
		case strings.Contains(string(name), "incli"):
			if r.incl == nil {
				r.incl = &Source{Dir: dir}
			}
		}
		if r.accel != nil && r.incl != nil {
			return nil
		}
	}
	return ErrNotDiscovered
}

// Accel returns the accelerometer source, or nil before discovery.
func (r *Reader) Accel() *Source { return r.accel }

// Incl returns the inclinometer source, or nil before discovery.
func (r *Reader) Incl() *Source { return r.incl }

// read reads one scalar file from a discovered source. A vanished file is a
// transient fault: the streak is counted and a neutral zero is returned
// while it stays within the ceiling. Anything else propagates.
func (r *Reader) read(src *Source, field string) (float64, error) {
	data, err := r.fs.ReadFile(filepath.Join(src.Dir, field))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			src.faults++
			if src.faults > r.faultCeiling {
				return 0, fmt.Errorf("%w: %s failed %d consecutive reads: %v",
					ErrSensorGone, src.Dir, src.faults, err)
			}
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read %s/%s: %w", src.Dir, field, err)
	}
	v, err := strconv.ParseFloat(strings.TrimSpace(string(data)), 64)
	if err != nil {
		return 0, fmt.Errorf("failed to parse %s/%s: %w", src.Dir, field, err)
	}
	src.faults = 0
	return v, nil
}

// Acceleration reads the scaled X/Y acceleration.
func (r *Reader) Acceleration() (x, y float64, err error) {
	if err := r.Discover(); err != nil {
		return 0, 0, err
	}
	scale, err := r.read(r.accel, "in_accel_scale")
	if err != nil {
		return 0, 0, err
	}
	if x, err = r.read(r.accel, "in_accel_x_raw"); err != nil {
		return 0, 0, err
	}
	if y, err = r.read(r.accel, "in_accel_y_raw"); err != nil {
		return 0, 0, err
	}
	return x * scale, y * scale, nil
}

// Inclination reads the scaled X/Y/Z inclination.
func (r *Reader) Inclination() (x, y, z float64, err error) {
	if err := r.Discover(); err != nil {
		return 0, 0, 0, err
	}
	scale, err := r.read(r.incl, "in_incli_scale")
	if err != nil {
		return 0, 0, 0, err
	}
	scale *= inclGranularity
	if x, err = r.read(r.incl, "in_incli_x_raw"); err != nil {
		return 0, 0, 0, err
	}
	if y, err = r.read(r.incl, "in_incli_y_raw"); err != nil {
		return 0, 0, 0, err
	}
	if z, err = r.read(r.incl, "in_incli_z_raw"); err != nil {
		return 0, 0, 0, err
	}
	return x * scale, y * scale, z * scale, nil
}

// Read acquires a full Reading: inclination then acceleration.
func (r *Reader) Read() (Reading, error) {
	var reading Reading
	var err error
	if reading.InclX, reading.InclY, reading.InclZ, err = r.Inclination(); err != nil {
		return Reading{}, err
	}
	if reading.AccelX, reading.AccelY, err = r.Acceleration(); err != nil {
		return Reading{}, err
	}
	return reading, nil
}

// Faults reports the larger of the two sensors' consecutive fault streaks.
func (r *Reader) Faults() int {
	a, i := r.accel.Faults(), r.incl.Faults()
	if a > i {
		return a
	}
	return i
}

// LidOpen reports whether the lid switch state file contains "open". Any
// read fault counts as closed, failing safe towards laptop mode.
func LidOpen(filesystem fsutil.FileSystem, path string) bool {
	data, err := filesystem.ReadFile(path)
	if err != nil {
		return false
	}
	return strings.Contains(string(data), "open")
}
