package scanlist

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
	"gonum.org/v1/gonum/stat"
)

// Plane is a fitted focus surface z = A·x + B·y + C (stage units).
type Plane struct {
	A, B, C float64

	// RMS is the root-mean-square residual of the fit.
	RMS float64
}

// Z evaluates the plane at (x, y).
func (p Plane) Z(x, y float64) float64 {
	return p.A*x + p.B*y + p.C
}

// FitPlane fits a least-squares plane through the points' absolute positions.
//
// Returns:
//   - Plane: Fitted coefficients and RMS residual
//   - error: ErrInsufficientPoints for fewer than three points or collinear input
func FitPlane(points []ScanPoint) (Plane, error) {
	n := len(points)
	if n < 3 {
		return Plane{}, fmt.Errorf("%w: have %d, need 3", ErrInsufficientPoints, n)
	}

	A := mat.NewDense(n, 3, nil)
	b := mat.NewVecDense(n, nil)
	for i, p := range points {
		A.Set(i, 0, p.PositionX)
		A.Set(i, 1, p.PositionY)
		A.Set(i, 2, 1)
		b.SetVec(i, p.PositionZ)
	}

	var qr mat.QR
	qr.Factorize(A)

	var params mat.VecDense
	if err := qr.SolveVecTo(&params, false, b); err != nil {
		return Plane{}, fmt.Errorf("%w: %w", ErrInsufficientPoints, err)
	}

	plane := Plane{A: params.AtVec(0), B: params.AtVec(1), C: params.AtVec(2)}
	if math.IsNaN(plane.A) || math.IsNaN(plane.B) || math.IsNaN(plane.C) {
		return Plane{}, fmt.Errorf("%w: degenerate fit", ErrInsufficientPoints)
	}

	sq := make([]float64, n)
	for i, p := range points {
		r := p.PositionZ - plane.Z(p.PositionX, p.PositionY)
		sq[i] = r * r
	}
	plane.RMS = math.Sqrt(stat.Mean(sq, nil))
	return plane, nil
}

// FocusPlane fits a plane through the current list.
func (s *Store) FocusPlane() (Plane, error) {
	return FitPlane(s.Snapshot())
}
