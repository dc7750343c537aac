package deck

import "fmt"

// Units names the translation between deck units and stage units.
type Units string

// Supported translations. UnitsNone is the identity.
const (
	UnitsNone   Units = ""
	UnitsMMToUM Units = "mm2um"
	UnitsUMToMM Units = "um2mm"
)

// Direction selects which way a translation is applied.
type Direction int

const (
	// ToStage converts deck units into stage units.
	ToStage Direction = iota
	// ToDeck converts stage units back into deck units.
	ToDeck
)

// factor returns the multiplier that converts deck units to stage units.
func (u Units) factor() (float64, error) {
	switch u {
	case UnitsNone:
		return 1, nil
	case UnitsMMToUM:
		return 1000, nil
	case UnitsUMToMM:
		return 0.001, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnsupportedUnit, string(u))
	}
}

// Validate reports whether the translation is supported.
func (u Units) Validate() error {
	_, err := u.factor()
	return err
}

// Convert translates p in the given direction.
//
// Parameters:
//   - p: Point to translate
//   - units: Configured translation
//   - dir: ToStage or ToDeck
//
// Returns:
//   - Point: Translated point
//   - error: ErrUnsupportedUnit for an unknown translation
func Convert(p Point, units Units, dir Direction) (Point, error) {
	f, err := units.factor()
	if err != nil {
		return Point{}, err
	}
	if dir == ToDeck {
		f = 1 / f
	}
	return p.Scale(f), nil
}

// ConvertScalar translates a single length in the given direction.
func ConvertScalar(v float64, units Units, dir Direction) (float64, error) {
	p, err := Convert(Point{X: v}, units, dir)
	if err != nil {
		return 0, err
	}
	return p.X, nil
}
