package orient

// Mode is the operating mode of a convertible: keyboard-and-pointer laptop
// or touch-only tablet.
type Mode int

const (
	Laptop Mode = iota
	Tablet
)

func (m Mode) String() string {
	if m == Tablet {
		return "tablet"
	}
	return "laptop"
}

// Flat-envelope bounds (exclusive) inside which the device is assumed to be
// sitting in a docked/laptop position. Empirical values carried over from
// the hardware this daemon was tuned on.
const (
	flatMinX = -15.0
	flatMaxX = 1.0
	flatMinY = -5.0
	flatMaxY = 4.0
)

// ResolveMode decides the target mode for one tick.
//
// authoritative is the last platform-reported tablet-mode boolean, or nil if
// none has been received; once set it is the sole source of truth until the
// next signal. Without one, a closed lid (lidOpen reporting false, which is
// also the fail-safe for a read fault) forces Laptop, as does an inclination
// inside the flat envelope. The heuristic never asserts Tablet on its own:
// failing both laptop checks merely retains current.
func ResolveMode(authoritative *bool, inclX, inclY float64, lidOpen func() bool, current Mode) Mode {
	if authoritative != nil {
		if *authoritative {
			return Tablet
		}
		return Laptop
	}
	if !lidOpen() {
		return Laptop
	}
	if flatMinX < inclX && inclX < flatMaxX && flatMinY < inclY && inclY < flatMaxY {
		return Laptop
	}
	return current
}
