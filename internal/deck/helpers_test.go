package deck

import "testing"

// testLayoutYAML is a two-slot deck: slot 1 holds a 2x3 plate, slot 2 is empty.
const testLayoutYAML = `
name: test-deck
bounds: {min_x: -10, min_y: -10, max_x: 300, max_y: 200}
slots:
  - id: 1
    origin: {x: 0, y: 0, z: 0}
    footprint: {x: 100, y: 80}
    labware:
      load_name: plate_6
      grid:
        rows: 2
        columns: 3
        first_well: {x: 20, y: 20, z: 1}
        spacing: {x: 30, y: 40}
  - id: 2
    origin: {x: 150, y: 0, z: 0}
    footprint: {x: 100, y: 80}
`

func mustLayout(t *testing.T) *Layout {
	t.Helper()
	l, err := ParseLayout([]byte(testLayoutYAML))
	if err != nil {
		t.Fatalf("ParseLayout() error = %v", err)
	}
	return l
}

func approx(a, b float64) bool {
	d := a - b
	if d < 0 {
		d = -d
	}
	return d < 1e-9
}
