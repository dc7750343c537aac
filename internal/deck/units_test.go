package deck

import (
	"errors"
	"testing"
)

func TestConvert(t *testing.T) {
	p := Point{X: 1, Y: 2, Z: 3}

	tests := []struct {
		name  string
		units Units
		dir   Direction
		want  Point
	}{
		{"mm2um to stage", UnitsMMToUM, ToStage, Point{X: 1000, Y: 2000, Z: 3000}},
		{"mm2um to deck", UnitsMMToUM, ToDeck, Point{X: 0.001, Y: 0.002, Z: 0.003}},
		{"um2mm to stage", UnitsUMToMM, ToStage, Point{X: 0.001, Y: 0.002, Z: 0.003}},
		{"identity", UnitsNone, ToStage, p},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Convert(p, tt.units, tt.dir)
			if err != nil {
				t.Fatalf("Convert() error = %v", err)
			}
			if !approx(got.X, tt.want.X) || !approx(got.Y, tt.want.Y) || !approx(got.Z, tt.want.Z) {
				t.Errorf("Convert() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestConvert_RoundTrip(t *testing.T) {
	p := Point{X: 12.5, Y: -3.25, Z: 0.75}
	for _, u := range []Units{UnitsNone, UnitsMMToUM, UnitsUMToMM} {
		s, err := Convert(p, u, ToStage)
		if err != nil {
			t.Fatal(err)
		}
		back, err := Convert(s, u, ToDeck)
		if err != nil {
			t.Fatal(err)
		}
		if !approx(back.X, p.X) || !approx(back.Y, p.Y) || !approx(back.Z, p.Z) {
			t.Errorf("%q round trip = %v, want %v", u, back, p)
		}
	}
}

func TestConvert_Unsupported(t *testing.T) {
	if _, err := Convert(Point{}, Units("cm2in"), ToStage); !errors.Is(err, ErrUnsupportedUnit) {
		t.Errorf("Convert() error = %v, want ErrUnsupportedUnit", err)
	}
	if err := Units("mm2nm").Validate(); !errors.Is(err, ErrUnsupportedUnit) {
		t.Errorf("Validate() error = %v, want ErrUnsupportedUnit", err)
	}
}
