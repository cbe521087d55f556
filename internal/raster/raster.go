// Package raster downsamples a drawing surface into the fixed grid fed to
// the network.
package raster

import (
	"fmt"
	"image"
	"image/color"
	"strconv"

	apperrors "mathlab/internal/errors"
)

const (
	// DefaultGridSide matches the 28x28 digit models.
	DefaultGridSide = 28
	// DefaultSamplesPerAxis gives 16 samples per cell.
	DefaultSamplesPerAxis = 4
)

var (
	// ErrDimensionMismatch reports a pixel buffer whose length disagrees with its declared size.
	ErrDimensionMismatch = apperrors.New(apperrors.CodeDimensionMismatch, "pixel buffer does not match surface size")
	// ErrInvalidGrid reports a grid side that is not positive or larger than the source.
	ErrInvalidGrid = apperrors.New(apperrors.CodeInvalidArgument, "grid does not fit the surface")
)

// Size is a surface size in pixels.
type Size struct {
	Width  int
	Height int
}

// Options tunes sampling.
type Options struct {
	// SamplesPerAxis is the number of strided samples taken along each axis
	// of a cell. Zero means DefaultSamplesPerAxis.
	SamplesPerAxis int
}

func (o Options) samplesPerAxis() int {
	if o.SamplesPerAxis <= 0 {
		return DefaultSamplesPerAxis
	}
	return o.SamplesPerAxis
}

// Luminance returns the brightness of a non-premultiplied RGBA pixel
// composited over black, in [0,1].
func Luminance(r, g, b, a uint8) float64 {
	weighted := 299*uint32(r) + 587*uint32(g) + 114*uint32(b)
	return float64(weighted) * float64(a) / (1000 * 255 * 255)
}

// Rasterize averages the luminance of each grid cell of an RGBA buffer laid
// out row-major with 4 bytes per pixel. The result has gridSide*gridSide
// values in [0,1].
func Rasterize(pixels []byte, size Size, gridSide int, opts Options) ([]float64, error) {
	if size.Width <= 0 || size.Height <= 0 || len(pixels) != 4*size.Width*size.Height {
		return nil, apperrors.WithMetadata(apperrors.CodeDimensionMismatch,
			fmt.Sprintf("pixel buffer has %d bytes, want %d for %dx%d", len(pixels), 4*size.Width*size.Height, size.Width, size.Height),
			map[string]string{"want": strconv.Itoa(4 * size.Width * size.Height), "got": strconv.Itoa(len(pixels))})
	}
	return sample(size, gridSide, opts, func(x, y int) float64 {
		i := 4 * (y*size.Width + x)
		return Luminance(pixels[i], pixels[i+1], pixels[i+2], pixels[i+3])
	})
}

// FromImage samples a decoded image the same way Rasterize samples a buffer.
func FromImage(img image.Image, gridSide int, opts Options) ([]float64, error) {
	bounds := img.Bounds()
	size := Size{Width: bounds.Dx(), Height: bounds.Dy()}
	return sample(size, gridSide, opts, func(x, y int) float64 {
		c := color.NRGBAModel.Convert(img.At(bounds.Min.X+x, bounds.Min.Y+y)).(color.NRGBA)
		return Luminance(c.R, c.G, c.B, c.A)
	})
}

// sample visits at most gridSide² × samplesPerAxis² source pixels,
// regardless of the source resolution.
func sample(size Size, gridSide int, opts Options, at func(x, y int) float64) ([]float64, error) {
	if gridSide <= 0 || size.Width < gridSide || size.Height < gridSide {
		return nil, apperrors.WithMetadata(apperrors.CodeInvalidArgument,
			fmt.Sprintf("grid side %d does not fit %dx%d surface", gridSide, size.Width, size.Height),
			map[string]string{"grid_side": strconv.Itoa(gridSide)})
	}
	spa := opts.samplesPerAxis()
	cellW := float64(size.Width) / float64(gridSide)
	cellH := float64(size.Height) / float64(gridSide)
	inv := 1 / float64(spa*spa)

	grid := make([]float64, gridSide*gridSide)
	for gy := 0; gy < gridSide; gy++ {
		y0 := float64(gy) * cellH
		for gx := 0; gx < gridSide; gx++ {
			x0 := float64(gx) * cellW
			sum := 0.0
			for sy := 0; sy < spa; sy++ {
				py := clampIndex(int(y0+(float64(sy)+0.5)*cellH/float64(spa)), size.Height)
				for sx := 0; sx < spa; sx++ {
					px := clampIndex(int(x0+(float64(sx)+0.5)*cellW/float64(spa)), size.Width)
					sum += at(px, py)
				}
			}
			grid[gy*gridSide+gx] = clamp01(sum * inv)
		}
	}
	return grid, nil
}

func clampIndex(v, n int) int {
	if v < 0 {
		return 0
	}
	if v >= n {
		return n - 1
	}
	return v
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
