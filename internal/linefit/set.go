package linefit

import (
	"fmt"
	"strconv"

	apperrors "mathlab/internal/errors"
)

// DefaultSeed is the point set shown when the demo opens.
func DefaultSeed() []Point {
	return []Point{
		{X: -0.8, Y: -0.5},
		{X: -0.4, Y: -0.1},
		{X: 0.0, Y: 0.1},
		{X: 0.3, Y: 0.5},
		{X: 0.7, Y: 0.6},
	}
}

// Set is a fixed-size collection of draggable points. Points are replaced in
// place; they are never appended or removed.
type Set struct {
	points []Point
}

// NewSet copies seed into a new set.
func NewSet(seed []Point) *Set {
	points := make([]Point, len(seed))
	copy(points, seed)
	return &Set{points: points}
}

// Len is the number of points.
func (s *Set) Len() int {
	return len(s.points)
}

// Points returns a copy of the current points.
func (s *Set) Points() []Point {
	out := make([]Point, len(s.points))
	copy(out, s.points)
	return out
}

// Move replaces point i with p.
func (s *Set) Move(i int, p Point) error {
	if i < 0 || i >= len(s.points) {
		return apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			fmt.Sprintf("point %d out of range [0,%d)", i, len(s.points)),
			map[string]string{"index": strconv.Itoa(i)})
	}
	s.points[i] = p
	return nil
}

// Fit fits the current points.
func (s *Set) Fit() (Result, error) {
	return Fit(s.points)
}
