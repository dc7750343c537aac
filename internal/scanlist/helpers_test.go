package scanlist

import (
	"math"
	"testing"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

// Two 96-well plates, layout in millimetres, stage in micrometres.
const testLayout = `
name: two-plates
bounds: {min_x: 0, min_y: 0, max_x: 260, max_y: 90}
slots:
  - id: 1
    origin: {x: 0, y: 0, z: 0}
    footprint: {x: 127.76, y: 85.48}
    labware:
      load_name: corning_96_wellplate_360ul_flat
      grid: {rows: 8, columns: 12, first_well: {x: 14.38, y: 11.24, z: 0}, spacing: {x: 9, y: 9}}
  - id: 2
    origin: {x: 130, y: 0, z: 0}
    footprint: {x: 127.76, y: 85.48}
    labware:
      load_name: corning_96_wellplate_360ul_flat
      grid: {rows: 8, columns: 12, first_well: {x: 14.38, y: 11.24, z: 0}, spacing: {x: 9, y: 9}}
`

func newTestStore(t *testing.T) *Store {
	t.Helper()
	layout, err := deck.ParseLayout([]byte(testLayout))
	if err != nil {
		t.Fatalf("ParseLayout() error = %v", err)
	}
	return NewStore(deck.NewResolver(layout, deck.UnitsMMToUM))
}

// wellCentre returns a well centre in stage units with the given z.
func wellCentre(t *testing.T, s *Store, slot int, well string, z float64) deck.Point {
	t.Helper()
	c, err := s.Resolver().WellCenter(slot, well)
	if err != nil {
		t.Fatalf("WellCenter(%d, %s) error = %v", slot, well, err)
	}
	c.Z = z
	return c
}

func mustAppend(t *testing.T, s *Store, p deck.Point) {
	t.Helper()
	if _, err := s.Append(p); err != nil {
		t.Fatalf("Append(%v) error = %v", p, err)
	}
}

// assertContiguous checks that indices form 0..n-1 per well group in list order.
func assertContiguous(t *testing.T, points []ScanPoint) {
	t.Helper()
	next := make(map[WellKey]int)
	for i, p := range points {
		if p.PositionInWellIndex != next[p.Key()] {
			t.Fatalf("point %d (%d/%s) index = %d, want %d", i, p.Slot, p.Well, p.PositionInWellIndex, next[p.Key()])
		}
		next[p.Key()]++
	}
}

// assertFocus checks relative_focus_z = position_z - z(point 0) for every point.
func assertFocus(t *testing.T, points []ScanPoint) {
	t.Helper()
	if len(points) == 0 {
		return
	}
	ref := points[0].PositionZ
	for i, p := range points {
		if math.Abs(p.RelativeFocusZ-(p.PositionZ-ref)) > 1e-9 {
			t.Fatalf("point %d relative_focus_z = %v, want %v", i, p.RelativeFocusZ, p.PositionZ-ref)
		}
	}
}

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-6
}
