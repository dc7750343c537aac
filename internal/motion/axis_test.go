package motion

import (
	"errors"
	"testing"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

func TestParseAxis(t *testing.T) {
	tests := []struct {
		in      string
		want    Axis
		wantErr bool
	}{
		{"x", AxisX, false},
		{"Y", AxisY, false},
		{"z", AxisZ, false},
		{"w", 0, true},
		{"", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseAxis(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseAxis(%q) error = %v", tt.in, err)
			}
			if err != nil && !errors.Is(err, ErrUnknownAxis) {
				t.Errorf("error = %v, want ErrUnknownAxis", err)
			}
			if err == nil && got != tt.want {
				t.Errorf("ParseAxis(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestAxis_Dispatch(t *testing.T) {
	p := deck.Point{X: 1, Y: 2, Z: 3}
	for _, a := range Axes {
		got := a.With(p, 9)
		if a.Of(got) != 9 {
			t.Errorf("%s: With/Of mismatch: %v", a, got)
		}
		for _, other := range Axes {
			if other != a && other.Of(got) != other.Of(p) {
				t.Errorf("%s: With changed axis %s", a, other)
			}
		}
	}
	if Axis(7).Valid() || Axis(7).String() != "Axis(7)" {
		t.Error("invalid axis should format as Axis(7)")
	}
}
