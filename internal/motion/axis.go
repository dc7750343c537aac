package motion

import (
	"fmt"
	"strings"

	"github.com/nerrad567/deckscan-core/internal/deck"
)

// Axis identifies one stage axis.
type Axis int

// Stage axes.
const (
	AxisX Axis = iota
	AxisY
	AxisZ
)

// Axes lists every axis in dispatch order.
var Axes = []Axis{AxisX, AxisY, AxisZ}

// axisTable is the per-axis dispatch table: name plus accessors into a Point.
var axisTable = [...]struct {
	name string
	get  func(deck.Point) float64
	set  func(*deck.Point, float64)
}{
	AxisX: {"X", func(p deck.Point) float64 { return p.X }, func(p *deck.Point, v float64) { p.X = v }},
	AxisY: {"Y", func(p deck.Point) float64 { return p.Y }, func(p *deck.Point, v float64) { p.Y = v }},
	AxisZ: {"Z", func(p deck.Point) float64 { return p.Z }, func(p *deck.Point, v float64) { p.Z = v }},
}

// Valid reports whether a is one of X, Y, Z.
func (a Axis) Valid() bool {
	return a >= AxisX && a <= AxisZ
}

func (a Axis) String() string {
	if !a.Valid() {
		return fmt.Sprintf("Axis(%d)", int(a))
	}
	return axisTable[a].name
}

// Of returns the component of p along a.
func (a Axis) Of(p deck.Point) float64 {
	return axisTable[a].get(p)
}

// With returns p with the component along a replaced by v.
func (a Axis) With(p deck.Point, v float64) deck.Point {
	axisTable[a].set(&p, v)
	return p
}

// ParseAxis parses "x", "Y", ... into an Axis.
func ParseAxis(s string) (Axis, error) {
	for i, e := range axisTable {
		if strings.EqualFold(s, e.name) {
			return Axis(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownAxis, s)
}
