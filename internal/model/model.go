package model

import "gonum.org/v1/gonum/floats"

// Prediction is the result of classifying one input vector.
type Prediction struct {
	Label         int
	Confidence    float64
	Probabilities []float64
	// Empty is set when the input carried no signal and inference was skipped.
	Empty bool
}

// NewPrediction picks the most probable class from probs.
func NewPrediction(probs []float64) Prediction {
	if len(probs) == 0 {
		return Prediction{Empty: true}
	}
	label := floats.MaxIdx(probs)
	return Prediction{
		Label:         label,
		Confidence:    probs[label],
		Probabilities: probs,
	}
}

// Classifier defines the minimal inference functionality required by the engine.
type Classifier interface {
	InputSize() int
	Predict(raw []float64) (Prediction, error)
}
