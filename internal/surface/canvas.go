// Package surface is a headless drawing canvas driven by pointer events. It
// produces the RGBA buffer that raster.Rasterize consumes.
package surface

import (
	"image/color"
	"math"

	"mathlab/internal/raster"
)

// EventKind is the kind of pointer event.
type EventKind string

const (
	EventDown  EventKind = "down"
	EventMove  EventKind = "move"
	EventUp    EventKind = "up"
	EventClear EventKind = "clear"
)

// Event is one pointer event in surface coordinates.
type Event struct {
	Kind EventKind `json:"type"`
	X    float64   `json:"x"`
	Y    float64   `json:"y"`
}

// Brush is the stroke style.
type Brush struct {
	Radius float64
	Color  color.NRGBA
}

// DefaultBrush draws white strokes, matching digits written light-on-dark.
func DefaultBrush() Brush {
	return Brush{Radius: 10, Color: color.NRGBA{R: 255, G: 255, B: 255, A: 255}}
}

var background = color.NRGBA{A: 255}

// Canvas is a fixed-size RGBA surface. It is not safe for concurrent use.
type Canvas struct {
	width   int
	height  int
	pix     []byte
	brush   Brush
	drawing bool
	lastX   float64
	lastY   float64
}

// New returns a cleared canvas.
func New(width, height int, brush Brush) *Canvas {
	if brush.Radius <= 0 {
		brush.Radius = DefaultBrush().Radius
	}
	c := &Canvas{
		width:  width,
		height: height,
		pix:    make([]byte, 4*width*height),
		brush:  brush,
	}
	c.Clear()
	return c
}

// Size returns the canvas size.
func (c *Canvas) Size() raster.Size {
	return raster.Size{Width: c.width, Height: c.height}
}

// Pixels returns a copy of the RGBA buffer.
func (c *Canvas) Pixels() []byte {
	out := make([]byte, len(c.pix))
	copy(out, c.pix)
	return out
}

// Grid rasterizes the surface in place. Its cost depends on gridSide and
// opts only, not on the canvas size.
func (c *Canvas) Grid(gridSide int, opts raster.Options) ([]float64, error) {
	return raster.Rasterize(c.pix, c.Size(), gridSide, opts)
}

// Drawing reports whether the pointer is currently down.
func (c *Canvas) Drawing() bool {
	return c.drawing
}

// Clear resets every pixel to the background and lifts the pointer.
func (c *Canvas) Clear() {
	for i := 0; i < len(c.pix); i += 4 {
		c.pix[i], c.pix[i+1], c.pix[i+2], c.pix[i+3] = background.R, background.G, background.B, background.A
	}
	c.drawing = false
}

// PointerDown starts a stroke and stamps a dot at (x, y).
func (c *Canvas) PointerDown(x, y float64) {
	c.drawing = true
	c.lastX, c.lastY = x, y
	c.stamp(x, y)
}

// PointerMove extends the current stroke. It is ignored while the pointer is up.
func (c *Canvas) PointerMove(x, y float64) {
	if !c.drawing {
		return
	}
	c.segment(c.lastX, c.lastY, x, y)
	c.lastX, c.lastY = x, y
}

// PointerUp ends the current stroke.
func (c *Canvas) PointerUp() {
	c.drawing = false
}

// Apply dispatches ev to the matching pointer method.
func (c *Canvas) Apply(ev Event) {
	switch ev.Kind {
	case EventDown:
		c.PointerDown(ev.X, ev.Y)
	case EventMove:
		c.PointerMove(ev.X, ev.Y)
	case EventUp:
		c.PointerUp()
	case EventClear:
		c.Clear()
	}
}

// segment stamps discs no further apart than half the radius so that fast
// moves leave a continuous line.
func (c *Canvas) segment(x0, y0, x1, y1 float64) {
	dist := math.Hypot(x1-x0, y1-y0)
	step := math.Max(c.brush.Radius/2, 0.5)
	n := int(math.Ceil(dist / step))
	for i := 1; i <= n; i++ {
		t := float64(i) / float64(n)
		c.stamp(x0+(x1-x0)*t, y0+(y1-y0)*t)
	}
	if n == 0 {
		c.stamp(x1, y1)
	}
}

func (c *Canvas) stamp(cx, cy float64) {
	r := c.brush.Radius
	minX := int(math.Max(0, math.Floor(cx-r)))
	maxX := int(math.Min(float64(c.width-1), math.Ceil(cx+r)))
	minY := int(math.Max(0, math.Floor(cy-r)))
	maxY := int(math.Min(float64(c.height-1), math.Ceil(cy+r)))
	r2 := r * r
	col := c.brush.Color
	for y := minY; y <= maxY; y++ {
		dy := float64(y) + 0.5 - cy
		for x := minX; x <= maxX; x++ {
			dx := float64(x) + 0.5 - cx
			if dx*dx+dy*dy > r2 {
				continue
			}
			i := 4 * (y*c.width + x)
			c.pix[i], c.pix[i+1], c.pix[i+2], c.pix[i+3] = col.R, col.G, col.B, col.A
		}
	}
}
