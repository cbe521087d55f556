package model

import (
	"errors"
	"math"
	"math/rand"
	"testing"
)

func randomPayload(t *testing.T, seed int64, sizes ...int) *Payload {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	p := &Payload{
		Architecture:  "mlp",
		InputSize:     sizes[0],
		Normalization: Normalization{Mean: 0.1307, Std: 0.3081},
	}
	for i := 1; i < len(sizes); i++ {
		weights := make([][]float64, sizes[i])
		for r := range weights {
			weights[r] = make([]float64, sizes[i-1])
			for c := range weights[r] {
				weights[r][c] = (rng.Float64()*2 - 1) * 0.1
			}
		}
		bias := make([]float64, sizes[i])
		for r := range bias {
			bias[r] = (rng.Float64()*2 - 1) * 0.01
		}
		l, err := NewLayer(weights, bias)
		if err != nil {
			t.Fatalf("NewLayer: %v", err)
		}
		p.Layers = append(p.Layers, l)
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}
	return p
}

func randomInput(seed int64, n int) []float64 {
	rng := rand.New(rand.NewSource(seed))
	in := make([]float64, n)
	for i := range in {
		in[i] = rng.Float64()
	}
	return in
}

func TestInferProducesDistribution(t *testing.T) {
	p := randomPayload(t, 1, 16, 8, 6, 4)
	for seed := int64(0); seed < 10; seed++ {
		probs, err := Infer(p, randomInput(seed, 16))
		if err != nil {
			t.Fatalf("Infer: %v", err)
		}
		if len(probs) != p.OutputSize() {
			t.Fatalf("expected %d probabilities, got %d", p.OutputSize(), len(probs))
		}
		sum := 0.0
		for _, v := range probs {
			if v <= 0 || v >= 1 {
				t.Fatalf("probability out of (0,1): %f", v)
			}
			sum += v
		}
		if math.Abs(sum-1) > 1e-6 {
			t.Fatalf("probabilities sum to %f", sum)
		}
	}
}

func TestInferDeterministic(t *testing.T) {
	p := randomPayload(t, 2, 9, 5, 3)
	in := randomInput(7, 9)
	first, err := Infer(p, in)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	second, err := Infer(p, in)
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	for i := range first {
		if first[i] != second[i] {
			t.Fatalf("output %d differs: %v vs %v", i, first[i], second[i])
		}
	}
}

func TestInferSingleIdentityLayer(t *testing.T) {
	l, err := NewLayer([][]float64{{1}}, []float64{0})
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}
	p := &Payload{InputSize: 1, Layers: []Layer{l}, Normalization: Normalization{Mean: 0, Std: 1}}
	probs, err := Infer(p, []float64{5})
	if err != nil {
		t.Fatalf("Infer: %v", err)
	}
	if len(probs) != 1 || probs[0] != 1.0 {
		t.Fatalf("expected [1], got %v", probs)
	}
}

func TestInferDimensionMismatch(t *testing.T) {
	p := randomPayload(t, 3, 4, 2)
	_, err := Infer(p, []float64{1, 2, 3})
	if !errors.Is(err, ErrDimensionMismatch) {
		t.Fatalf("expected dimension mismatch, got %v", err)
	}
}

func TestSoftmaxShiftInvariant(t *testing.T) {
	logits := []float64{1.5, -2, 0.25, 3}
	shifted := make([]float64, len(logits))
	for i, v := range logits {
		shifted[i] = v + 1000
	}
	a := Softmax(logits)
	b := Softmax(shifted)
	for i := range a {
		if math.IsNaN(b[i]) || math.Abs(a[i]-b[i]) > 1e-9 {
			t.Fatalf("softmax changed under shift at %d: %v vs %v", i, a[i], b[i])
		}
	}
}

func TestSoftmaxLargeLogitsStayFinite(t *testing.T) {
	probs := Softmax([]float64{1e4, 1e4 - 1, 0})
	sum := 0.0
	for _, v := range probs {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			t.Fatalf("non-finite probability %v", v)
		}
		sum += v
	}
	if math.Abs(sum-1) > 1e-9 {
		t.Fatalf("sum = %f", sum)
	}
}

func TestNormalize(t *testing.T) {
	got := Normalize([]float64{0, 0.5, 1}, Normalization{Mean: 0.5, Std: 0.25})
	want := []float64{-2, 0, 2}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("normalized[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestHasSignal(t *testing.T) {
	if HasSignal(nil, 0.1) {
		t.Fatal("empty input has no signal")
	}
	if HasSignal([]float64{0, 0.05, 0.1}, 0.1) {
		t.Fatal("values at or below threshold are not signal")
	}
	if !HasSignal([]float64{0, 0.4, 0}, 0.1) {
		t.Fatal("expected signal")
	}
}

func TestNetworkPredict(t *testing.T) {
	l, err := NewLayer([][]float64{{1, 0}, {0, 1}, {-1, -1}}, []float64{0, 0, 0})
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}
	net := NewNetwork(&Payload{InputSize: 2, Layers: []Layer{l}, Normalization: Normalization{Std: 1}})
	if net.InputSize() != 2 {
		t.Fatalf("InputSize = %d", net.InputSize())
	}
	pred, err := net.Predict([]float64{0.2, 3})
	if err != nil {
		t.Fatalf("Predict: %v", err)
	}
	if pred.Label != 1 {
		t.Fatalf("expected label 1, got %d (%v)", pred.Label, pred.Probabilities)
	}
	if pred.Confidence != pred.Probabilities[1] || pred.Empty {
		t.Fatalf("unexpected prediction %+v", pred)
	}
}

func TestInferRejectsNonFiniteOutput(t *testing.T) {
	tests := []struct {
		name    string
		weights [][]float64
		input   float64
	}{
		{"infinite input", [][]float64{{1}, {-1}}, math.Inf(1)},
		{"nan input", [][]float64{{1}, {-1}}, math.NaN()},
		{"overflowing logits", [][]float64{{1e308}, {1e308}}, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := NewLayer(tt.weights, []float64{0, 0})
			if err != nil {
				t.Fatalf("NewLayer: %v", err)
			}
			p := &Payload{InputSize: 1, Layers: []Layer{l}, Normalization: Normalization{Std: 1}}
			if err := p.Validate(); err != nil {
				t.Fatalf("Validate: %v", err)
			}
			probs, err := Infer(p, []float64{tt.input})
			if !errors.Is(err, ErrNonFiniteOutput) {
				t.Fatalf("expected non-finite output error, got %v", err)
			}
			if probs != nil {
				t.Fatalf("expected no probabilities, got %v", probs)
			}
			if _, err := NewNetwork(p).Predict([]float64{tt.input}); !errors.Is(err, ErrNonFiniteOutput) {
				t.Fatalf("Predict: expected non-finite output error, got %v", err)
			}
		})
	}
}
