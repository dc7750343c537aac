package deck

import (
	"fmt"
	"math"
)

// Point is a 3D coordinate. The unit depends on the frame it is used in.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	Z float64 `yaml:"z" json:"z"`
}

// Add returns p + o.
func (p Point) Add(o Point) Point {
	return Point{X: p.X + o.X, Y: p.Y + o.Y, Z: p.Z + o.Z}
}

// Sub returns p - o.
func (p Point) Sub(o Point) Point {
	return Point{X: p.X - o.X, Y: p.Y - o.Y, Z: p.Z - o.Z}
}

// Scale multiplies every component by f.
func (p Point) Scale(f float64) Point {
	return Point{X: p.X * f, Y: p.Y * f, Z: p.Z * f}
}

// Distance2D returns the planar (x, y) distance between p and o.
func (p Point) Distance2D(o Point) float64 {
	return math.Hypot(p.X-o.X, p.Y-o.Y)
}

// String formats the point for logs.
func (p Point) String() string {
	return fmt.Sprintf("(%.3f, %.3f, %.3f)", p.X, p.Y, p.Z)
}
