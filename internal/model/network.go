package model

import (
	"fmt"
	"math"
	"strconv"

	"gonum.org/v1/gonum/floats"

	apperrors "mathlab/internal/errors"
)

// ErrNonFiniteOutput reports NaN or Inf in a probability vector.
var ErrNonFiniteOutput = apperrors.New(apperrors.CodeNonFiniteOutput, "network produced non-finite output")

// Network evaluates a validated payload. It holds no mutable state and is
// safe for concurrent use.
type Network struct {
	payload *Payload
}

// NewNetwork wraps p. The payload must already be validated.
func NewNetwork(p *Payload) *Network {
	return &Network{payload: p}
}

// InputSize is the expected raw input length.
func (n *Network) InputSize() int {
	return n.payload.InputSize
}

// Infer returns the class probabilities for raw.
func (n *Network) Infer(raw []float64) ([]float64, error) {
	return Infer(n.payload, raw)
}

// Predict returns the most probable class for raw.
func (n *Network) Predict(raw []float64) (Prediction, error) {
	probs, err := Infer(n.payload, raw)
	if err != nil {
		return Prediction{}, err
	}
	return NewPrediction(probs), nil
}

// Infer normalizes raw, folds it through every layer (ReLU between layers,
// identity on the last) and returns the softmax of the logits.
func Infer(p *Payload, raw []float64) ([]float64, error) {
	if p == nil || len(p.Layers) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidArgument, "payload is empty")
	}
	if len(raw) != p.InputSize {
		return nil, apperrors.WithMetadata(apperrors.CodeDimensionMismatch,
			fmt.Sprintf("network expects %d inputs, got %d", p.InputSize, len(raw)),
			map[string]string{"want": strconv.Itoa(p.InputSize), "got": strconv.Itoa(len(raw))})
	}

	x := Normalize(raw, p.Normalization)
	last := len(p.Layers) - 1
	for i, l := range p.Layers {
		act := ReLU
		if i == last {
			act = Identity
		}
		var err error
		x, err = EvaluateLayer(l, x, act)
		if err != nil {
			return nil, fmt.Errorf("layer %d: %w", i, err)
		}
	}

	probs := Softmax(x)
	for i, v := range probs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, apperrors.WithMetadata(apperrors.CodeNonFiniteOutput,
				fmt.Sprintf("probability %d is %v", i, v),
				map[string]string{"index": strconv.Itoa(i)})
		}
	}
	return probs, nil
}

// Normalize returns (raw[k] - mean) / std for every element.
func Normalize(raw []float64, n Normalization) []float64 {
	out := make([]float64, len(raw))
	for i, v := range raw {
		out[i] = (v - n.Mean) / n.Std
	}
	return out
}

// Softmax converts logits to a probability distribution. The maximum logit
// is subtracted before exponentiating so large logits do not overflow.
func Softmax(logits []float64) []float64 {
	if len(logits) == 0 {
		return nil
	}
	maxLogit := floats.Max(logits)
	out := make([]float64, len(logits))
	for i, v := range logits {
		out[i] = math.Exp(v - maxLogit)
	}
	floats.Scale(1/floats.Sum(out), out)
	return out
}

// HasSignal reports whether any element of raw exceeds threshold. Callers
// skip inference on blank input.
func HasSignal(raw []float64, threshold float64) bool {
	return len(raw) > 0 && floats.Max(raw) > threshold
}
