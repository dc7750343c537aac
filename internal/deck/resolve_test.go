package deck

import (
	"errors"
	"testing"
)

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(mustLayout(t), UnitsMMToUM)

	tests := []struct {
		name       string
		pos        Point
		wantWell   string
		wantOffset Point
	}{
		{"centre of B2", Point{X: 50000, Y: 60000, Z: 1200}, "B2", Point{}},
		{"offset kept", Point{X: 50250, Y: 59900, Z: 1200}, "B2", Point{X: 250, Y: -100}},
		{"sub-threshold offset snaps to zero", Point{X: 50000.5, Y: 60000, Z: 0}, "B2", Point{}},
		{"beyond labware", Point{X: 95000, Y: 75000}, "B3", Point{X: 15000, Y: 15000}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			addr, err := r.Resolve(tt.pos)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if addr.Slot != 1 || addr.Well != tt.wantWell || addr.LabwareID != "plate_6" {
				t.Errorf("Resolve() = slot %d well %s labware %s", addr.Slot, addr.Well, addr.LabwareID)
			}
			if !approx(addr.Offset.X, tt.wantOffset.X) || !approx(addr.Offset.Y, tt.wantOffset.Y) {
				t.Errorf("Resolve() offset = %v, want %v", addr.Offset, tt.wantOffset)
			}
			if addr.Position != tt.pos {
				t.Errorf("Resolve() position = %v, want %v", addr.Position, tt.pos)
			}
		})
	}
}

func TestResolver_ResolveErrors(t *testing.T) {
	r := NewResolver(mustLayout(t), UnitsMMToUM)

	_, err := r.Resolve(Point{X: 200000, Y: 40000})
	if !errors.Is(err, ErrResolution) || !errors.Is(err, ErrNoLabware) {
		t.Errorf("Resolve() on empty slot error = %v", err)
	}

	_, err = r.Resolve(Point{X: 900000, Y: 0})
	if !errors.Is(err, ErrResolution) || !errors.Is(err, ErrOutOfDeck) {
		t.Errorf("Resolve() outside deck error = %v", err)
	}

	bad := NewResolver(mustLayout(t), Units("inch"))
	if _, err := bad.Resolve(Point{}); !errors.Is(err, ErrUnsupportedUnit) {
		t.Errorf("Resolve() with bad units error = %v", err)
	}
}

func TestResolver_WellCenter(t *testing.T) {
	r := NewResolver(mustLayout(t), UnitsMMToUM)
	c, err := r.WellCenter(1, "A1")
	if err != nil {
		t.Fatalf("WellCenter() error = %v", err)
	}
	if !approx(c.X, 20000) || !approx(c.Y, 20000) || !approx(c.Z, 1000) {
		t.Errorf("WellCenter() = %v", c)
	}
}
