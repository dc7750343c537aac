package deck

import (
	"fmt"
	"math"
)

// zeroThreshold is the smallest offset (deck units) kept when splitting a
// position into well centre + offset. Smaller offsets snap to 0.
const zeroThreshold = 1e-3

// Address is a stage position split into its logical parts.
type Address struct {
	Slot      int
	LabwareID string
	Well      string

	// Offset is the planar offset from the well centre in stage units (Z is always 0).
	Offset Point

	// Position is the absolute stage position that was resolved.
	Position Point
}

// Resolver maps stage coordinates onto the layout.
type Resolver struct {
	layout *Layout
	units  Units
}

// NewResolver creates a resolver for a layout and a deck-to-stage unit translation.
func NewResolver(layout *Layout, units Units) *Resolver {
	return &Resolver{layout: layout, units: units}
}

// Layout returns the underlying layout.
func (r *Resolver) Layout() *Layout {
	return r.layout
}

// Units returns the configured translation.
func (r *Resolver) Units() Units {
	return r.units
}

// WellCenter returns a well centre in stage units.
func (r *Resolver) WellCenter(slot int, well string) (Point, error) {
	p, err := r.layout.WellPosition(slot, well)
	if err != nil {
		return Point{}, err
	}
	return Convert(p, r.units, ToStage)
}

// Resolve splits an absolute stage position into slot, well and offset.
//
// Parameters:
//   - pos: Absolute stage position (stage units)
//
// Returns:
//   - Address: Resolved address with offset from the well centre
//   - error: Wraps ErrResolution when the point cannot be mapped
func (r *Resolver) Resolve(pos Point) (Address, error) {
	deckPos, err := Convert(pos, r.units, ToDeck)
	if err != nil {
		return Address{}, err
	}

	slot, well, err := r.layout.ClosestWell(deckPos)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrResolution, err)
	}
	labware, err := r.layout.LabwareID(slot)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrResolution, err)
	}

	centre, err := r.WellCenter(slot, well)
	if err != nil {
		return Address{}, fmt.Errorf("%w: %w", ErrResolution, err)
	}
	zero, err := ConvertScalar(zeroThreshold, r.units, ToStage)
	if err != nil {
		return Address{}, err
	}

	return Address{
		Slot:      slot,
		LabwareID: labware,
		Well:      well,
		Offset: Point{
			X: snap(pos.X-centre.X, zero),
			Y: snap(pos.Y-centre.Y, zero),
		},
		Position: pos,
	}, nil
}

func snap(v, zero float64) float64 {
	if math.Abs(v) > zero {
		return v
	}
	return 0
}
