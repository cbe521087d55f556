package model

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	apperrors "mathlab/internal/errors"
)

// ErrDimensionMismatch reports an input vector whose length disagrees with the
// layer or network it is fed to.
var ErrDimensionMismatch = apperrors.New(apperrors.CodeDimensionMismatch, "input length does not match layer")

// Activation is an elementwise nonlinearity.
type Activation func(float64) float64

// Identity leaves values unchanged. It is used on the final layer.
func Identity(v float64) float64 { return v }

// ReLU rectifies negative values to zero.
func ReLU(v float64) float64 { return math.Max(0, v) }

// EvaluateLayer computes act(W·input + b). A nil act is treated as Identity.
func EvaluateLayer(l Layer, input []float64, act Activation) ([]float64, error) {
	rows, cols := l.Dims()
	if rows == 0 || l.Bias == nil {
		return nil, apperrors.New(apperrors.CodeShapeMismatch, "layer has no weights")
	}
	if len(input) != cols {
		return nil, apperrors.WithMetadata(apperrors.CodeDimensionMismatch,
			fmt.Sprintf("layer expects %d inputs, got %d", cols, len(input)),
			map[string]string{"want": strconv.Itoa(cols), "got": strconv.Itoa(len(input))})
	}
	if act == nil {
		act = Identity
	}

	out := mat.NewVecDense(rows, nil)
	out.MulVec(l.Weights, mat.NewVecDense(cols, input))
	out.AddVec(out, l.Bias)

	res := make([]float64, rows)
	for i := range res {
		res[i] = act(out.AtVec(i))
	}
	return res, nil
}
