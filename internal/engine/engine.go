// Package engine owns the loaded model and serves predictions for the
// drawing demo. It replaces ambient UI state with an explicit object that
// has a clear start, a terminal failure state and a teardown.
package engine

import (
	"context"
	"fmt"
	"log"
	"math"
	"strconv"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	apperrors "mathlab/internal/errors"
	"mathlab/internal/model"
)

const (
	// DefaultDebounce is the quiet period before a scheduled prediction runs.
	DefaultDebounce = 150 * time.Millisecond
	// DefaultSignalThreshold is the cell value a blank canvas never exceeds.
	DefaultSignalThreshold = 0.05
)

// State guard errors returned by Predict.
var (
	ErrLoading     = apperrors.New(apperrors.CodeEngineLoading, "model is still loading")
	ErrUnavailable = apperrors.New(apperrors.CodeEngineUnavailable, "model is unavailable")
	ErrClosed      = apperrors.New(apperrors.CodeEngineClosed, "engine is closed")
)

var tracer = otel.Tracer("mathlab/internal/engine")

// State is the engine lifecycle state.
type State int

const (
	StateLoading State = iota
	StateReady
	StateUnavailable
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateLoading:
		return "loading"
	case StateReady:
		return "ready"
	case StateUnavailable:
		return "unavailable"
	case StateClosed:
		return "closed"
	default:
		return "State(" + strconv.Itoa(int(s)) + ")"
	}
}

// PayloadSource produces the model payload once.
type PayloadSource interface {
	Load(ctx context.Context) (*model.Payload, error)
}

// Options tunes an Engine.
type Options struct {
	Debounce        time.Duration
	SignalThreshold float64
	// AfterFunc replaces time.AfterFunc for the debounce timer.
	AfterFunc AfterFunc
}

// Engine serves predictions from a payload loaded once in the background.
type Engine struct {
	src       PayloadSource
	threshold float64
	sched     *Scheduler
	ready     chan struct{}
	readyOnce sync.Once

	mu         sync.Mutex
	state      State
	started    bool
	classifier model.Classifier
	loadErr    error
	cancel     context.CancelFunc
}

// New returns an engine in the loading state. Call Start to fetch the payload.
func New(src PayloadSource, opts Options) *Engine {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.SignalThreshold <= 0 {
		opts.SignalThreshold = DefaultSignalThreshold
	}
	return &Engine{
		src:       src,
		threshold: opts.SignalThreshold,
		sched:     NewScheduler(opts.Debounce, opts.AfterFunc),
		ready:     make(chan struct{}),
		state:     StateLoading,
	}
}

// Start begins loading the payload in the background. Only the first call
// has an effect.
func (e *Engine) Start(ctx context.Context) {
	e.mu.Lock()
	if e.started || e.state == StateClosed {
		e.mu.Unlock()
		return
	}
	e.started = true
	ctx, e.cancel = context.WithCancel(ctx)
	e.mu.Unlock()

	go e.load(ctx)
}

func (e *Engine) load(ctx context.Context) {
	start := time.Now()
	p, err := e.src.Load(ctx)
	if err == nil {
		err = p.Validate()
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	defer e.settle()
	if e.state == StateClosed {
		return
	}
	if err != nil {
		// Sources outside the loader may fail with uncoded errors; the
		// engine treats every load failure as a terminal fetch failure.
		if !apperrors.CodeOf(err).Terminal() {
			err = apperrors.Wrap(apperrors.CodePayloadFetchFailure, "load model payload", err)
		}
		e.state = StateUnavailable
		e.loadErr = err
		log.Printf("model_state=%s code=%s elapsed_ms=%d err=%v", e.state, apperrors.CodeOf(err), time.Since(start).Milliseconds(), err)
		return
	}
	e.classifier = model.NewNetwork(p)
	e.state = StateReady
	log.Printf("model_state=%s architecture=%q input_size=%d layers=%d outputs=%d elapsed_ms=%d",
		e.state, p.Architecture, p.InputSize, len(p.Layers), p.OutputSize(), time.Since(start).Milliseconds())
}

func (e *Engine) settle() {
	e.readyOnce.Do(func() { close(e.ready) })
}

// Ready is closed once loading has settled (ready, unavailable or closed).
func (e *Engine) Ready() <-chan struct{} {
	return e.ready
}

// Wait blocks until loading settles or ctx is done and returns the state.
func (e *Engine) Wait(ctx context.Context) State {
	select {
	case <-e.ready:
	case <-ctx.Done():
	}
	return e.State()
}

// State returns the current lifecycle state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Err returns the load error once the engine is unavailable.
func (e *Engine) Err() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.loadErr
}

// InputSize is the expected raw input length, or 0 before the model is ready.
func (e *Engine) InputSize() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.classifier == nil {
		return 0
	}
	return e.classifier.InputSize()
}

func (e *Engine) current() (model.Classifier, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch e.state {
	case StateReady:
		return e.classifier, nil
	case StateLoading:
		return nil, ErrLoading
	case StateUnavailable:
		return nil, apperrors.Wrap(apperrors.CodeEngineUnavailable, "model is unavailable", e.loadErr)
	default:
		return nil, ErrClosed
	}
}

// Predict classifies raw. Input without signal yields an Empty prediction
// without running the network; NaN or Inf cells are rejected first.
func (e *Engine) Predict(ctx context.Context, raw []float64) (model.Prediction, error) {
	_, span := tracer.Start(ctx, "engine.Predict")
	defer span.End()

	classifier, err := e.current()
	if err != nil {
		span.RecordError(err)
		return model.Prediction{}, err
	}
	if want := classifier.InputSize(); len(raw) != want {
		err := apperrors.WithMetadata(apperrors.CodeDimensionMismatch,
			fmt.Sprintf("engine expects %d inputs, got %d", want, len(raw)),
			map[string]string{"want": strconv.Itoa(want), "got": strconv.Itoa(len(raw))})
		span.RecordError(err)
		return model.Prediction{}, err
	}
	for i, v := range raw {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			err := apperrors.WithMetadata(apperrors.CodeInvalidArgument,
				fmt.Sprintf("input %d is %v", i, v),
				map[string]string{"index": strconv.Itoa(i)})
			span.RecordError(err)
			return model.Prediction{}, err
		}
	}
	if !model.HasSignal(raw, e.threshold) {
		span.SetAttributes(attribute.Bool("prediction.empty", true))
		return model.Prediction{Empty: true}, nil
	}
	pred, err := classifier.Predict(raw)
	if err != nil {
		span.RecordError(err)
		return model.Prediction{}, err
	}
	span.SetAttributes(
		attribute.Int("prediction.label", pred.Label),
		attribute.Float64("prediction.confidence", pred.Confidence),
	)
	return pred, nil
}

// Schedule runs a debounced prediction: input is sampled and deliver called
// once the debounce period passes without another Schedule call. It reports
// false when the engine is closed.
func (e *Engine) Schedule(input func() []float64, deliver func(model.Prediction, error)) bool {
	return e.sched.Schedule(func() {
		pred, err := e.Predict(context.Background(), input())
		deliver(pred, err)
	})
}

// CancelPending drops a debounced prediction that has not run yet.
func (e *Engine) CancelPending() {
	e.sched.Cancel()
}

// Pending reports whether a debounced prediction is waiting.
func (e *Engine) Pending() bool {
	return e.sched.Pending()
}

// Close cancels an in-flight load and any pending prediction and releases
// the model. It is safe to call more than once.
func (e *Engine) Close() {
	e.sched.Close()

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state == StateClosed {
		return
	}
	e.state = StateClosed
	e.classifier = nil
	if e.cancel != nil {
		e.cancel()
	}
	e.settle()
}
