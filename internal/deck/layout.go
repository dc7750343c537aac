package deck

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Size is a planar extent.
type Size struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Bounds is the reachable deck area in deck units. A zero Bounds disables
// the out-of-deck check.
type Bounds struct {
	MinX float64 `yaml:"min_x" json:"min_x"`
	MinY float64 `yaml:"min_y" json:"min_y"`
	MaxX float64 `yaml:"max_x" json:"max_x"`
	MaxY float64 `yaml:"max_y" json:"max_y"`
}

// IsZero reports whether no bounds were configured.
func (b Bounds) IsZero() bool {
	return b == Bounds{}
}

// Contains reports whether p lies inside the bounds (inclusive).
func (b Bounds) Contains(p Point) bool {
	return p.X >= b.MinX && p.X <= b.MaxX && p.Y >= b.MinY && p.Y <= b.MaxY
}

// WellGrid generates regularly spaced wells named A1, A2, ... B1, ...
type WellGrid struct {
	Rows      int   `yaml:"rows" json:"rows"`
	Columns   int   `yaml:"columns" json:"columns"`
	FirstWell Point `yaml:"first_well" json:"first_well"`
	Spacing   Size  `yaml:"spacing" json:"spacing"`
}

// Labware is a container with named wells. Well offsets are relative to
// the slot origin.
type Labware struct {
	LoadName string           `yaml:"load_name" json:"load_name"`
	Grid     *WellGrid        `yaml:"grid,omitempty" json:"grid,omitempty"`
	Wells    map[string]Point `yaml:"wells,omitempty" json:"wells,omitempty"`

	order []string
}

// Slot is a fixed deck location that may hold one labware.
type Slot struct {
	ID        int      `yaml:"id" json:"id"`
	Origin    Point    `yaml:"origin" json:"origin"`
	Footprint Size     `yaml:"footprint" json:"footprint"`
	Labware   *Labware `yaml:"labware,omitempty" json:"labware,omitempty"`
}

// contains reports whether p lies on the slot footprint.
func (s *Slot) contains(p Point) bool {
	return p.X >= s.Origin.X && p.X <= s.Origin.X+s.Footprint.X &&
		p.Y >= s.Origin.Y && p.Y <= s.Origin.Y+s.Footprint.Y
}

// centre returns the footprint centre.
func (s *Slot) centre() Point {
	return Point{X: s.Origin.X + s.Footprint.X/2, Y: s.Origin.Y + s.Footprint.Y/2}
}

// Layout is the static deck definition. It is immutable after Build.
type Layout struct {
	Name   string  `yaml:"name" json:"name"`
	Bounds Bounds  `yaml:"bounds" json:"bounds"`
	Slots  []*Slot `yaml:"slots" json:"slots"`

	byID map[int]*Slot
}

// LoadLayout reads a deck layout from a YAML or JSON file.
//
// JSON is a subset of YAML, so one parser handles both formats.
//
// Parameters:
//   - path: Path to the layout file
//
// Returns:
//   - *Layout: Validated, indexed layout
//   - error: If the file cannot be read, parsed, or fails validation
func LoadLayout(path string) (*Layout, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading layout file: %w", err)
	}
	return ParseLayout(data)
}

// ParseLayout parses and indexes a layout document.
func ParseLayout(data []byte) (*Layout, error) {
	var l Layout
	if err := yaml.Unmarshal(data, &l); err != nil {
		return nil, fmt.Errorf("%w: parsing: %w", ErrInvalidLayout, err)
	}
	if err := l.Build(); err != nil {
		return nil, err
	}
	return &l, nil
}

// Build validates the layout, expands well grids and builds lookup indexes.
// It must be called once on a Layout constructed in code.
func (l *Layout) Build() error {
	var errs []string

	if len(l.Slots) == 0 {
		errs = append(errs, "at least one slot is required")
	}

	l.byID = make(map[int]*Slot, len(l.Slots))
	for i, s := range l.Slots {
		if s == nil {
			errs = append(errs, fmt.Sprintf("slots[%d] is empty", i))
			continue
		}
		if _, dup := l.byID[s.ID]; dup {
			errs = append(errs, fmt.Sprintf("slot %d defined twice", s.ID))
			continue
		}
		if s.Footprint.X <= 0 || s.Footprint.Y <= 0 {
			errs = append(errs, fmt.Sprintf("slot %d footprint must be positive", s.ID))
		}
		l.byID[s.ID] = s
		if s.Labware != nil {
			if err := s.Labware.build(); err != nil {
				errs = append(errs, fmt.Sprintf("slot %d: %v", s.ID, err))
			}
		}
	}

	if !l.Bounds.IsZero() && (l.Bounds.MaxX <= l.Bounds.MinX || l.Bounds.MaxY <= l.Bounds.MinY) {
		errs = append(errs, "bounds max must exceed min")
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidLayout, strings.Join(errs, "; "))
	}
	return nil
}

// build expands the grid (if any) and fixes the well iteration order.
func (lw *Labware) build() error {
	if lw.LoadName == "" {
		return fmt.Errorf("labware load_name is required")
	}
	if lw.Wells == nil {
		lw.Wells = make(map[string]Point)
	}
	if g := lw.Grid; g != nil {
		if g.Rows <= 0 || g.Columns <= 0 || g.Rows > 26 {
			return fmt.Errorf("labware %s: grid needs 1-26 rows and at least one column", lw.LoadName)
		}
		for r := 0; r < g.Rows; r++ {
			for c := 0; c < g.Columns; c++ {
				name := WellName(r, c)
				if _, ok := lw.Wells[name]; ok {
					continue // explicit wells override the grid
				}
				lw.Wells[name] = Point{
					X: g.FirstWell.X + float64(c)*g.Spacing.X,
					Y: g.FirstWell.Y + float64(r)*g.Spacing.Y,
					Z: g.FirstWell.Z,
				}
			}
		}
	}
	if len(lw.Wells) == 0 {
		return fmt.Errorf("labware %s has no wells", lw.LoadName)
	}

	lw.order = make([]string, 0, len(lw.Wells))
	for name := range lw.Wells {
		lw.order = append(lw.order, name)
	}
	sort.Slice(lw.order, func(i, j int) bool {
		return wellLess(lw.order[i], lw.order[j])
	})
	return nil
}

// WellName returns the conventional name for a zero-based row and column (A1, B12...).
func WellName(row, col int) string {
	return string(rune('A'+row)) + strconv.Itoa(col+1)
}

// wellLess orders wells row-major: A1 < A2 < A10 < B1. Names that do not
// follow the letter+number convention sort lexically after those that do.
func wellLess(a, b string) bool {
	ra, ca, okA := splitWell(a)
	rb, cb, okB := splitWell(b)
	switch {
	case okA && okB:
		if ra != rb {
			return ra < rb
		}
		return ca < cb
	case okA != okB:
		return okA
	default:
		return a < b
	}
}

func splitWell(name string) (string, int, bool) {
	i := strings.IndexFunc(name, func(r rune) bool { return r >= '0' && r <= '9' })
	if i <= 0 {
		return "", 0, false
	}
	n, err := strconv.Atoi(name[i:])
	if err != nil {
		return "", 0, false
	}
	return name[:i], n, true
}

// Slot returns the slot with the given ID.
func (l *Layout) Slot(id int) (*Slot, error) {
	s, ok := l.byID[id]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownSlot, id)
	}
	return s, nil
}

// SlotIDs returns every slot ID in layout order.
func (l *Layout) SlotIDs() []int {
	ids := make([]int, 0, len(l.Slots))
	for _, s := range l.Slots {
		ids = append(ids, s.ID)
	}
	return ids
}

// LabwareID returns the load name of the labware in the slot.
func (l *Layout) LabwareID(slot int) (string, error) {
	s, err := l.Slot(slot)
	if err != nil {
		return "", err
	}
	if s.Labware == nil {
		return "", fmt.Errorf("%w: slot %d", ErrNoLabware, slot)
	}
	return s.Labware.LoadName, nil
}

// Wells returns the well names of the slot's labware in row-major order.
func (l *Layout) Wells(slot int) ([]string, error) {
	s, err := l.Slot(slot)
	if err != nil {
		return nil, err
	}
	if s.Labware == nil {
		return nil, fmt.Errorf("%w: slot %d", ErrNoLabware, slot)
	}
	out := make([]string, len(s.Labware.order))
	copy(out, s.Labware.order)
	return out, nil
}

// WellPosition returns the centre of a well in the deck frame.
//
// Parameters:
//   - slot: Slot ID
//   - well: Well name (e.g. "A1")
//
// Returns:
//   - Point: Well centre (slot origin + well offset)
//   - error: ErrUnknownSlot, ErrNoLabware or ErrUnknownWell
func (l *Layout) WellPosition(slot int, well string) (Point, error) {
	s, err := l.Slot(slot)
	if err != nil {
		return Point{}, err
	}
	if s.Labware == nil {
		return Point{}, fmt.Errorf("%w: slot %d", ErrNoLabware, slot)
	}
	off, ok := s.Labware.Wells[well]
	if !ok {
		return Point{}, fmt.Errorf("%w: %s in slot %d", ErrUnknownWell, well, slot)
	}
	return s.Origin.Add(off), nil
}

// SlotOf returns the slot a point (deck frame) belongs to.
//
// A point on a slot footprint belongs to that slot. Otherwise the slot with
// the nearest footprint centre is returned. Only points outside the deck
// bounds are rejected.
func (l *Layout) SlotOf(p Point) (int, error) {
	if !l.Bounds.IsZero() && !l.Bounds.Contains(p) {
		return 0, fmt.Errorf("%w: %s", ErrOutOfDeck, p)
	}

	for _, s := range l.Slots {
		if s.contains(p) {
			return s.ID, nil
		}
	}

	best, bestDist := 0, math.Inf(1)
	for _, s := range l.Slots {
		if d := p.Distance2D(s.centre()); d < bestDist {
			best, bestDist = s.ID, d
		}
	}
	if math.IsInf(bestDist, 1) {
		return 0, fmt.Errorf("%w: layout has no slots", ErrUnknownSlot)
	}
	return best, nil
}

// ClosestWell returns the slot and the well whose centre is nearest to p
// (deck frame). Ties go to the first well in row-major order.
func (l *Layout) ClosestWell(p Point) (int, string, error) {
	slot, err := l.SlotOf(p)
	if err != nil {
		return 0, "", err
	}
	s := l.byID[slot]
	if s.Labware == nil {
		return slot, "", fmt.Errorf("%w: slot %d", ErrNoLabware, slot)
	}

	best, bestDist := "", math.Inf(1)
	for _, name := range s.Labware.order {
		centre := s.Origin.Add(s.Labware.Wells[name])
		if d := p.Distance2D(centre); d < bestDist {
			best, bestDist = name, d
		}
	}
	return slot, best, nil
}
