package autofocus

import (
	"fmt"
	"math"
)

// maxSteps bounds a sweep so a tiny step cannot produce an unbounded grid.
const maxSteps = 10000

// Sweep returns the z grid from zStart to zEnd (inclusive) in zStep
// increments. A zEnd that is not on the grid is not visited.
//
// Returns:
//   - []float64: z positions in ascending order
//   - error: ErrInvalidRange for a non-positive step, zEnd < zStart or a grid over maxSteps
func Sweep(zStart, zEnd, zStep float64) ([]float64, error) {
	if zStep <= 0 || math.IsNaN(zStep) || math.IsInf(zStep, 0) {
		return nil, fmt.Errorf("%w: step %v", ErrInvalidRange, zStep)
	}
	if zEnd < zStart || math.IsNaN(zStart) || math.IsNaN(zEnd) {
		return nil, fmt.Errorf("%w: start %v end %v", ErrInvalidRange, zStart, zEnd)
	}

	// Small tolerance so an end exactly on the grid survives rounding.
	n := int(math.Floor((zEnd-zStart)/zStep+1e-9)) + 1
	if n > maxSteps {
		return nil, fmt.Errorf("%w: %d steps (max %d)", ErrInvalidRange, n, maxSteps)
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = zStart + float64(i)*zStep
	}
	return out, nil
}

// bestIndex returns the index of the highest score; ties go to the
// smallest z. NaN scores never win. Returns -1 when no score is usable.
func bestIndex(z, scores []float64) int {
	best := -1
	for i := range scores {
		if math.IsNaN(scores[i]) {
			continue
		}
		if best < 0 || scores[i] > scores[best] || (scores[i] == scores[best] && z[i] < z[best]) {
			best = i
		}
	}
	return best
}
