// Package linefit computes closed-form least squares lines for the
// interactive line-fit demo.
package linefit

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"

	apperrors "mathlab/internal/errors"
)

var (
	// ErrDegenerateFit reports points whose x values are all identical. The
	// accompanying Result holds a usable fallback.
	ErrDegenerateFit = apperrors.New(apperrors.CodeDegenerateFit, "x values have zero variance")
	// ErrPointIndex reports a drag on a point that does not exist.
	ErrPointIndex = apperrors.New(apperrors.CodeInvalidArgument, "point index out of range")
)

// Point is a 2-D sample, conventionally in [-1, 1] on both axes.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Result is a fitted line.
type Result struct {
	Slope     float64
	Intercept float64
	// Degenerate is set when no unique line exists. Slope is then 0 and
	// Intercept is the mean of y.
	Degenerate bool
}

// At evaluates the line at x.
func (r Result) At(x float64) float64 {
	return r.Slope*x + r.Intercept
}

// Fit returns the ordinary least squares line through points.
//
// An empty input yields the zero line and no error. When every x is equal
// the denominator vanishes; Fit then returns a horizontal line through the
// mean of y, marked Degenerate, together with ErrDegenerateFit. Non-finite
// values never escape.
func Fit(points []Point) (Result, error) {
	n := len(points)
	if n == 0 {
		return Result{}, nil
	}
	xs, ys := split(points)

	fn := float64(n)
	sumX := floats.Sum(xs)
	sumY := floats.Sum(ys)
	sumXY := floats.Dot(xs, ys)
	sumXX := floats.Dot(xs, xs)

	// n²·var(x); rounding can leave a tiny residue when every x is equal.
	denom := fn*sumXX - sumX*sumX
	if denom <= degenerateTolerance*fn*sumXX {
		return degenerate(n, sumY/fn)
	}
	slope := (fn*sumXY - sumX*sumY) / denom
	intercept := (sumY - slope*sumX) / fn
	if !finite(slope) || !finite(intercept) {
		return degenerate(n, sumY/fn)
	}
	return Result{Slope: slope, Intercept: intercept}, nil
}

const degenerateTolerance = 1e-12

func degenerate(n int, meanY float64) (Result, error) {
	if !finite(meanY) {
		meanY = 0
	}
	return Result{Intercept: meanY, Degenerate: true}, apperrors.WithMetadata(apperrors.CodeDegenerateFit,
		fmt.Sprintf("cannot fit a line through %d points with identical x", n),
		map[string]string{"points": strconv.Itoa(n)})
}

// MeanSquaredError is the mean squared vertical distance from points to
// the line y = slope*x + intercept. It returns 0 for no points.
func MeanSquaredError(points []Point, slope, intercept float64) float64 {
	if len(points) == 0 {
		return 0
	}
	xs, ys := split(points)
	residuals := make([]float64, len(points))
	floats.ScaleTo(residuals, slope, xs)
	floats.AddConst(intercept, residuals)
	floats.Sub(residuals, ys)
	return floats.Dot(residuals, residuals) / float64(len(points))
}

func split(points []Point) (xs, ys []float64) {
	xs = make([]float64, len(points))
	ys = make([]float64, len(points))
	for i, p := range points {
		xs[i] = p.X
		ys[i] = p.Y
	}
	return xs, ys
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
