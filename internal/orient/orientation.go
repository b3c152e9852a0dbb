// Package orient holds the decision logic of the daemon: screen orientation
// classification from accelerometer readings and laptop/tablet mode
// resolution. Everything in this package is pure; side effects live in the
// engine and its collaborators.
package orient

// Orientation is one of the four discrete screen orientations.
type Orientation int

const (
	Normal Orientation = iota
	Inverted
	Left
	Right
)

// String returns the rotation identifier understood by the display
// controller (xrandr --rotate).
func (o Orientation) String() string {
	switch o {
	case Inverted:
		return "inverted"
	case Left:
		return "left"
	case Right:
		return "right"
	default:
		return "normal"
	}
}

// StylusMode returns the stylus rotate value for this orientation
// (xsetwacom Rotate).
func (o Orientation) StylusMode() string {
	switch o {
	case Inverted:
		return "half"
	case Left:
		return "ccw"
	case Right:
		return "cw"
	default:
		return "none"
	}
}

// TransformMatrix returns the row-major 3x3 coordinate transform applied to
// touch and pen input so it tracks the rotated display.
func (o Orientation) TransformMatrix() [9]float64 {
	switch o {
	case Inverted:
		return [9]float64{-1, 0, 1, 0, -1, 1, 0, 0, 1}
	case Left:
		return [9]float64{0, -1, 1, 1, 0, 0, 0, 0, 1}
	case Right:
		return [9]float64{0, 1, 0, -1, 0, 1, 0, 0, 1}
	default:
		return [9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}
	}
}

// Classify derives the target orientation from a two-axis acceleration
// reading. The dominant axis must exceed threshold for a new orientation to
// be asserted; otherwise current is retained, so a device at rest never
// flaps. Only meaningful in tablet mode; the engine forces Normal otherwise.
func Classify(accelX, accelY float64, current Orientation, threshold float64) Orientation {
	abs := func(v float64) float64 {
		if v < 0 {
			return -v
		}
		return v
	}
	if abs(accelX) >= abs(accelY) {
		if accelX <= -threshold {
			return Right
		}
		if accelX >= threshold {
			return Left
		}
	} else {
		if accelY <= -threshold {
			return Normal
		}
		if accelY >= threshold {
			return Inverted
		}
	}
	return current
}
