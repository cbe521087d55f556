package replay

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"mathlab/internal/engine"
	"mathlab/internal/model"
	"mathlab/internal/surface"
)

type staticSource struct {
	payload *model.Payload
}

func (s staticSource) Load(context.Context) (*model.Payload, error) {
	return s.payload, nil
}

// cornerPayload classifies a 2x2 grid: class 0 for the top-left cell,
// class 1 for the bottom-right cell.
func cornerPayload(t *testing.T) *model.Payload {
	t.Helper()
	l, err := model.NewLayer([][]float64{{4, 0, 0, 0}, {0, 0, 0, 4}}, []float64{0, 0})
	if err != nil {
		t.Fatalf("NewLayer: %v", err)
	}
	return &model.Payload{InputSize: 4, Layers: []model.Layer{l}, Normalization: model.Normalization{Std: 1}}
}

func readyEngine(t *testing.T, opts engine.Options) *engine.Engine {
	t.Helper()
	e := engine.New(staticSource{payload: cornerPayload(t)}, opts)
	e.Start(context.Background())
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if got := e.Wait(ctx); got != engine.StateReady {
		t.Fatalf("engine state = %s", got)
	}
	t.Cleanup(e.Close)
	return e
}

const script = `[
  {"type": "down", "x": 3, "y": 3},
  {"type": "move", "x": 7, "y": 7},
  {"type": "up"},
  {"type": "clear"},
  {"type": "down", "x": 15, "y": 15},
  {"type": "move", "x": 17, "y": 17},
  {"type": "up"},
  {"type": "clear"},
  {"type": "up"}
]`

func TestLoadScript(t *testing.T) {
	events, err := LoadScript(strings.NewReader(script))
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	if len(events) != 9 || events[0].Kind != surface.EventDown || events[1].X != 7 {
		t.Fatalf("unexpected events %+v", events)
	}
	if _, err := LoadScript(strings.NewReader(`[{"type": "hover"}]`)); err == nil {
		t.Fatal("expected unknown event error")
	}
	if _, err := LoadScript(strings.NewReader(`{`)); err == nil {
		t.Fatal("expected decode error")
	}
}

func TestRunPredictsEachStroke(t *testing.T) {
	events, err := LoadScript(strings.NewReader(script))
	if err != nil {
		t.Fatalf("LoadScript: %v", err)
	}
	e := readyEngine(t, engine.Options{})
	canvas := surface.New(20, 20, surface.Brush{Radius: 3, Color: surface.DefaultBrush().Color})

	frames, err := Run(context.Background(), RunConfig{
		Predictor: e,
		Canvas:    canvas,
		Events:    events,
		GridSide:  2,
		LogEvery:  2,
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if len(frames) != 3 {
		t.Fatalf("expected 3 frames, got %d", len(frames))
	}
	if frames[0].Prediction.Empty || frames[0].Prediction.Label != 0 {
		t.Fatalf("first stroke: %+v", frames[0].Prediction)
	}
	if frames[1].Prediction.Empty || frames[1].Prediction.Label != 1 {
		t.Fatalf("second stroke: %+v", frames[1].Prediction)
	}
	if !frames[2].Prediction.Empty {
		t.Fatalf("blank canvas should give an empty prediction: %+v", frames[2].Prediction)
	}
	for i, f := range frames {
		if f.Stroke != i+1 {
			t.Fatalf("frame %d has stroke %d", i, f.Stroke)
		}
	}
}

func TestRunSchedulesPreviews(t *testing.T) {
	var mu sync.Mutex
	var previews []model.Prediction
	done := make(chan struct{}, 1)
	e := readyEngine(t, engine.Options{Debounce: 5 * time.Millisecond})
	canvas := surface.New(20, 20, surface.Brush{Radius: 3, Color: surface.DefaultBrush().Color})

	_, err := Run(context.Background(), RunConfig{
		Predictor: e,
		Canvas:    canvas,
		Events: []surface.Event{
			{Kind: surface.EventDown, X: 15, Y: 15},
			{Kind: surface.EventMove, X: 16, Y: 16},
			{Kind: surface.EventMove, X: 17, Y: 17},
		},
		GridSide: 2,
		OnPreview: func(pred model.Prediction, err error) {
			if err != nil {
				t.Errorf("preview: %v", err)
			}
			mu.Lock()
			previews = append(previews, pred)
			mu.Unlock()
			done <- struct{}{}
		},
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("no preview delivered")
	}
	time.Sleep(30 * time.Millisecond)
	mu.Lock()
	defer mu.Unlock()
	if len(previews) != 1 {
		t.Fatalf("expected a single debounced preview, got %d", len(previews))
	}
	if previews[0].Label != 1 {
		t.Fatalf("preview = %+v", previews[0])
	}
}

func TestRunHonorsCancellation(t *testing.T) {
	e := readyEngine(t, engine.Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Run(ctx, RunConfig{
		Predictor: e,
		Canvas:    surface.New(20, 20, surface.DefaultBrush()),
		Events:    []surface.Event{{Kind: surface.EventUp}},
		GridSide:  2,
	})
	if err != context.Canceled {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestRunRequiresCollaborators(t *testing.T) {
	if _, err := Run(context.Background(), RunConfig{Canvas: surface.New(4, 4, surface.DefaultBrush())}); err == nil {
		t.Fatal("expected error without predictor")
	}
	e := readyEngine(t, engine.Options{})
	if _, err := Run(context.Background(), RunConfig{Predictor: e}); err == nil {
		t.Fatal("expected error without canvas")
	}
}

func TestRunCancelsPreviewWhenStrokeEnds(t *testing.T) {
	e := readyEngine(t, engine.Options{Debounce: time.Hour})
	previews := 0
	frames, err := Run(context.Background(), RunConfig{
		Predictor: e,
		Canvas:    surface.New(20, 20, surface.Brush{Radius: 3, Color: surface.DefaultBrush().Color}),
		Events: []surface.Event{
			{Kind: surface.EventDown, X: 15, Y: 15},
			{Kind: surface.EventMove, X: 17, Y: 17},
			{Kind: surface.EventUp},
		},
		GridSide:  2,
		OnPreview: func(model.Prediction, error) { previews++ },
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if e.Pending() {
		t.Fatal("preview still pending after the stroke ended")
	}
	if previews != 0 {
		t.Fatalf("expected no preview, got %d", previews)
	}
	if len(frames) != 1 || frames[0].Prediction.Label != 1 {
		t.Fatalf("unexpected frames %+v", frames)
	}
}
