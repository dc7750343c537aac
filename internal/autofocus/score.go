package autofocus

import (
	"image"

	"gonum.org/v1/gonum/stat"
)

// ScoreFunc rates the sharpness of a frame. Higher is sharper.
type ScoreFunc func(img *image.Gray16) float64

// VarianceScore is the variance of the pixel intensities.
func VarianceScore(img *image.Gray16) float64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	values := make([]float64, 0, b.Dx()*b.Dy())
	for y := b.Min.Y; y < b.Max.Y; y++ {
		for x := b.Min.X; x < b.Max.X; x++ {
			values = append(values, float64(img.Gray16At(x, y).Y))
		}
	}
	if len(values) < 2 {
		return 0
	}
	return stat.Variance(values, nil)
}

// LaplacianScore is the variance of the 4-neighbour Laplacian over the
// interior pixels. It responds to edges rather than overall brightness.
func LaplacianScore(img *image.Gray16) float64 {
	if img == nil {
		return 0
	}
	b := img.Bounds()
	if b.Dx() < 3 || b.Dy() < 3 {
		return 0
	}
	at := func(x, y int) float64 { return float64(img.Gray16At(x, y).Y) }

	values := make([]float64, 0, (b.Dx()-2)*(b.Dy()-2))
	for y := b.Min.Y + 1; y < b.Max.Y-1; y++ {
		for x := b.Min.X + 1; x < b.Max.X-1; x++ {
			lap := at(x-1, y) + at(x+1, y) + at(x, y-1) + at(x, y+1) - 4*at(x, y)
			values = append(values, lap)
		}
	}
	if len(values) < 2 {
		return 0
	}
	return stat.Variance(values, nil)
}
