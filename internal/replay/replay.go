// Package replay drives recorded pointer events through the drawing surface,
// the rasterizer and the engine, the way the digit demo does live.
package replay

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"mathlab/internal/metrics"
	"mathlab/internal/model"
	"mathlab/internal/raster"
	"mathlab/internal/surface"
)

// Predictor is the part of the engine replay needs.
type Predictor interface {
	Predict(ctx context.Context, raw []float64) (model.Prediction, error)
	Schedule(input func() []float64, deliver func(model.Prediction, error)) bool
	CancelPending()
}

// RunConfig captures the knobs required by the replay loop.
type RunConfig struct {
	Predictor Predictor
	Canvas    *surface.Canvas
	Events    []surface.Event
	GridSide  int
	Raster    raster.Options
	LogEvery  int
	// OnPreview, when set, receives debounced predictions scheduled on
	// every move while the pointer is down.
	OnPreview func(model.Prediction, error)
}

// Frame is the prediction made when a stroke ended.
type Frame struct {
	Stroke     int
	Prediction model.Prediction
	RasterTime time.Duration
	InferTime  time.Duration
}

// LoadScript decodes a JSON array of pointer events.
func LoadScript(r io.Reader) ([]surface.Event, error) {
	var events []surface.Event
	if err := json.NewDecoder(r).Decode(&events); err != nil {
		return nil, fmt.Errorf("decode stroke script: %w", err)
	}
	for i, ev := range events {
		switch ev.Kind {
		case surface.EventDown, surface.EventMove, surface.EventUp, surface.EventClear:
		default:
			return nil, fmt.Errorf("event %d: unknown type %q", i, ev.Kind)
		}
	}
	return events, nil
}

// Run applies every event to the canvas and predicts synchronously each
// time a stroke ends.
func Run(ctx context.Context, cfg RunConfig) ([]Frame, error) {
	if cfg.Predictor == nil {
		return nil, errors.New("replay: predictor is required")
	}
	if cfg.Canvas == nil {
		return nil, errors.New("replay: canvas is required")
	}
	if cfg.GridSide <= 0 {
		cfg.GridSide = raster.DefaultGridSide
	}
	if cfg.LogEvery <= 0 {
		cfg.LogEvery = 10
	}

	var window metrics.Window
	var frames []Frame
	for _, ev := range cfg.Events {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		cfg.Canvas.Apply(ev)

		switch ev.Kind {
		case surface.EventMove:
			if cfg.OnPreview != nil && cfg.Canvas.Drawing() {
				schedulePreview(cfg)
			}
		case surface.EventUp:
			// The stroke's own prediction supersedes any pending preview.
			cfg.Predictor.CancelPending()
			frame, err := predict(ctx, cfg)
			if err != nil {
				return frames, fmt.Errorf("stroke %d: %w", len(frames)+1, err)
			}
			frame.Stroke = len(frames) + 1
			frames = append(frames, frame)
			window.Record(frame.RasterTime, frame.InferTime, frame.Prediction.Confidence)

			if frame.Stroke%cfg.LogEvery == 0 {
				snap := window.Snapshot()
				log.Printf("stroke=%d predictions=%d predictions_per_sec=%.1f raster_ms=%.3f infer_ms=%.3f confidence=%.3f",
					frame.Stroke,
					snap.Predictions,
					snap.PredictionsPerSec,
					snap.AvgRasterMS,
					snap.AvgInferMS,
					snap.LastConfidence,
				)
			}
		}
	}
	return frames, nil
}

func predict(ctx context.Context, cfg RunConfig) (Frame, error) {
	startRaster := time.Now()
	grid, err := cfg.Canvas.Grid(cfg.GridSide, cfg.Raster)
	if err != nil {
		return Frame{}, err
	}
	rasterTime := time.Since(startRaster)

	startInfer := time.Now()
	pred, err := cfg.Predictor.Predict(ctx, grid)
	if err != nil {
		return Frame{}, err
	}
	return Frame{
		Prediction: pred,
		RasterTime: rasterTime,
		InferTime:  time.Since(startInfer),
	}, nil
}

// schedulePreview rasterizes the canvas now, on the replay goroutine, and
// hands the grid to the debounced task.
func schedulePreview(cfg RunConfig) {
	grid, err := cfg.Canvas.Grid(cfg.GridSide, cfg.Raster)
	if err != nil {
		cfg.OnPreview(model.Prediction{}, err)
		return
	}
	cfg.Predictor.Schedule(func() []float64 { return grid }, cfg.OnPreview)
}
