package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"strconv"

	"gonum.org/v1/gonum/mat"

	apperrors "mathlab/internal/errors"
)

var (
	// ErrPayloadParse reports a model document that is not valid JSON or has non-finite parameters.
	ErrPayloadParse = apperrors.New(apperrors.CodePayloadParseFailure, "model payload is malformed")
	// ErrShapeMismatch reports layer shapes that do not chain from input_size.
	ErrShapeMismatch = apperrors.New(apperrors.CodeShapeMismatch, "model layer shapes are inconsistent")
	// ErrInvalidNormalization reports a zero or non-finite normalization pair.
	ErrInvalidNormalization = apperrors.New(apperrors.CodeInvalidNormalization, "model normalization is invalid")
)

// Normalization is the per-element input rescaling fixed at training time.
type Normalization struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// Layer is one affine transform. Weights has one row per output and one
// column per input.
type Layer struct {
	Weights *mat.Dense
	Bias    *mat.VecDense
}

// Dims returns the output and input sizes of the layer.
func (l Layer) Dims() (outputs, inputs int) {
	if l.Weights == nil {
		return 0, 0
	}
	return l.Weights.Dims()
}

// NewLayer builds a layer from row-major weights and a bias vector.
func NewLayer(weights [][]float64, bias []float64) (Layer, error) {
	rows := len(weights)
	if rows == 0 {
		return Layer{}, apperrors.New(apperrors.CodeShapeMismatch, "layer has no weight rows")
	}
	cols := len(weights[0])
	if cols == 0 {
		return Layer{}, apperrors.New(apperrors.CodeShapeMismatch, "layer has no weight columns")
	}
	data := make([]float64, 0, rows*cols)
	for i, row := range weights {
		if len(row) != cols {
			return Layer{}, apperrors.WithMetadata(apperrors.CodeShapeMismatch,
				fmt.Sprintf("weight row %d has %d columns, want %d", i, len(row), cols),
				map[string]string{"row": strconv.Itoa(i)})
		}
		data = append(data, row...)
	}
	if len(bias) != rows {
		return Layer{}, apperrors.New(apperrors.CodeShapeMismatch,
			fmt.Sprintf("bias has %d entries, want %d", len(bias), rows))
	}
	b := make([]float64, rows)
	copy(b, bias)
	return Layer{
		Weights: mat.NewDense(rows, cols, data),
		Bias:    mat.NewVecDense(rows, b),
	}, nil
}

// Payload is a loaded, validated network description. It is never mutated
// after construction.
type Payload struct {
	Architecture  string
	InputSize     int
	Layers        []Layer
	Normalization Normalization
}

// OutputSize is the number of classes produced by the final layer.
func (p *Payload) OutputSize() int {
	if p == nil || len(p.Layers) == 0 {
		return 0
	}
	rows, _ := p.Layers[len(p.Layers)-1].Dims()
	return rows
}

// Validate checks the layer chain, the normalization pair and that every
// parameter is finite.
func (p *Payload) Validate() error {
	if p == nil {
		return apperrors.New(apperrors.CodeInvalidArgument, "payload is nil")
	}
	if p.InputSize <= 0 {
		return apperrors.New(apperrors.CodeShapeMismatch,
			fmt.Sprintf("input_size must be > 0 (got %d)", p.InputSize))
	}
	if len(p.Layers) == 0 {
		return apperrors.New(apperrors.CodeShapeMismatch, "payload has no layers")
	}
	n := p.Normalization
	if n.Std == 0 || !finite(n.Std) || !finite(n.Mean) {
		return apperrors.WithMetadata(apperrors.CodeInvalidNormalization,
			fmt.Sprintf("normalization must have finite mean and non-zero std (mean=%v std=%v)", n.Mean, n.Std),
			map[string]string{"mean": fmt.Sprint(n.Mean), "std": fmt.Sprint(n.Std)})
	}

	want := p.InputSize
	for i, l := range p.Layers {
		if l.Weights == nil || l.Bias == nil {
			return layerShapeError(i, "layer %d is missing weights or bias", i)
		}
		rows, cols := l.Weights.Dims()
		if cols != want {
			return layerShapeError(i, "layer %d expects %d inputs, previous size is %d", i, cols, want)
		}
		if l.Bias.Len() != rows {
			return layerShapeError(i, "layer %d has %d bias entries for %d outputs", i, l.Bias.Len(), rows)
		}
		if !allFinite(l.Weights.RawMatrix().Data) || !allFinite(l.Bias.RawVector().Data) {
			return apperrors.WithMetadata(apperrors.CodePayloadParseFailure,
				fmt.Sprintf("layer %d has non-finite parameters", i),
				map[string]string{"layer": strconv.Itoa(i)})
		}
		want = rows
	}
	return nil
}

func layerShapeError(layer int, format string, args ...any) error {
	return apperrors.WithMetadata(apperrors.CodeShapeMismatch, fmt.Sprintf(format, args...),
		map[string]string{"layer": strconv.Itoa(layer)})
}

type payloadDoc struct {
	Architecture  string        `json:"architecture"`
	InputSize     int           `json:"input_size"`
	Layers        []layerDoc    `json:"layers"`
	Normalization Normalization `json:"normalization"`
}

type layerDoc struct {
	W [][]float64 `json:"W"`
	B []float64   `json:"b"`
}

// DecodePayload reads a JSON model document from r and validates it.
func DecodePayload(r io.Reader) (*Payload, error) {
	var doc payloadDoc
	if err := json.NewDecoder(r).Decode(&doc); err != nil {
		return nil, apperrors.Wrap(apperrors.CodePayloadParseFailure, "decode model payload", err)
	}

	p := &Payload{
		Architecture:  doc.Architecture,
		InputSize:     doc.InputSize,
		Layers:        make([]Layer, 0, len(doc.Layers)),
		Normalization: doc.Normalization,
	}
	for i, ld := range doc.Layers {
		l, err := NewLayer(ld.W, ld.B)
		if err != nil {
			return nil, apperrors.WrapWithMetadata(apperrors.CodeShapeMismatch,
				fmt.Sprintf("layer %d", i), map[string]string{"layer": strconv.Itoa(i)}, err)
		}
		p.Layers = append(p.Layers, l)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ParsePayload decodes and validates an in-memory model document.
func ParsePayload(data []byte) (*Payload, error) {
	return DecodePayload(bytes.NewReader(data))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func allFinite(values []float64) bool {
	for _, v := range values {
		if !finite(v) {
			return false
		}
	}
	return true
}
