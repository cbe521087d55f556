package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"mathlab/internal/config"
	"mathlab/internal/engine"
	"mathlab/internal/linefit"
	"mathlab/internal/loader"
	"mathlab/internal/model"
	"mathlab/internal/platform/otel"
	"mathlab/internal/raster"
	"mathlab/internal/replay"
	"mathlab/internal/surface"
)

const (
	serviceName              = "mathlab"
	telemetryShutdownTimeout = 5 * time.Second
)

const usage = `usage:
  mathlab predict -model <url|path> -image <png|jpeg>
  mathlab replay  -model <url|path> -script <events.json>
  mathlab fit     [-points "x,y x,y ..."] [-slope m -intercept b]`

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		log.Fatalf("mathlab: %v", err)
	}
}

func run(args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return errors.New(usage)
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdown, err := otel.Setup(ctx, serviceName)
	if err != nil {
		return fmt.Errorf("setup telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), telemetryShutdownTimeout)
		defer cancel()
		if err := shutdown(shutdownCtx); err != nil {
			log.Printf("%s otel shutdown: %v", serviceName, err)
		}
	}()

	switch args[0] {
	case "predict":
		return runPredict(ctx, cfg, args[1:], stdout)
	case "replay":
		return runReplay(ctx, cfg, args[1:], stdout)
	case "fit":
		return runFit(args[1:], stdout)
	default:
		return fmt.Errorf("unknown command %q\n%s", args[0], usage)
	}
}

// bindEngineFlags registers the flags shared by commands that load a model.
func bindEngineFlags(fs *flag.FlagSet, o *config.Overrides) {
	fs.StringVar(&o.ModelURL, "model", "", "Model payload URL or path")
	fs.DurationVar(&o.FetchTimeout, "timeout", 0, "Model fetch timeout")
	fs.IntVar(&o.GridSide, "grid-side", 0, "Raster grid side")
	fs.IntVar(&o.SamplesPerAxis, "samples", 0, "Samples per cell axis")
	fs.Float64Var(&o.SignalThreshold, "threshold", 0, "Blank-input threshold")
}

func parseFlags(cfg *config.Config, fs *flag.FlagSet, o *config.Overrides, args []string) error {
	if err := fs.Parse(args); err != nil {
		return err
	}
	cfg.ApplyOverrides(*o)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

func newEngine(cfg *config.Config) *engine.Engine {
	src := loader.New(loader.Config{
		Source:  cfg.ModelURL,
		Timeout: cfg.FetchTimeout,
	})
	return engine.New(src, engine.Options{
		Debounce:        cfg.Debounce,
		SignalThreshold: cfg.SignalThreshold,
	})
}

// awaitEngine blocks until the model is ready or loading failed.
func awaitEngine(ctx context.Context, eng *engine.Engine) error {
	switch eng.Wait(ctx) {
	case engine.StateReady:
		return nil
	case engine.StateUnavailable:
		return eng.Err()
	default:
		if err := ctx.Err(); err != nil {
			return err
		}
		return engine.ErrClosed
	}
}

func runPredict(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	var o config.Overrides
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	bindEngineFlags(fs, &o)
	imagePath := fs.String("image", "", "Path to a PNG or JPEG drawing")
	if err := parseFlags(cfg, fs, &o, args); err != nil {
		return err
	}
	if *imagePath == "" {
		return errors.New("predict: -image is required")
	}

	eng := newEngine(cfg)
	defer eng.Close()

	var img image.Image
	g, gctx := errgroup.WithContext(ctx)
	eng.Start(gctx)
	g.Go(func() error {
		return awaitEngine(gctx, eng)
	})
	g.Go(func() error {
		f, err := os.Open(*imagePath)
		if err != nil {
			return fmt.Errorf("open image: %w", err)
		}
		defer f.Close()
		img, _, err = image.Decode(f)
		if err != nil {
			return fmt.Errorf("decode image: %w", err)
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	grid, err := raster.FromImage(img, cfg.GridSide, raster.Options{SamplesPerAxis: cfg.SamplesPerAxis})
	if err != nil {
		return err
	}
	pred, err := eng.Predict(ctx, grid)
	if err != nil {
		return err
	}
	printPrediction(stdout, pred)
	return nil
}

func runReplay(ctx context.Context, cfg *config.Config, args []string, stdout io.Writer) error {
	var o config.Overrides
	fs := flag.NewFlagSet("replay", flag.ContinueOnError)
	bindEngineFlags(fs, &o)
	fs.IntVar(&o.CanvasSize, "canvas-size", 0, "Drawing surface side in pixels")
	fs.Float64Var(&o.BrushRadius, "brush-radius", 0, "Brush radius in pixels")
	fs.DurationVar(&o.Debounce, "debounce", 0, "Preview debounce")
	fs.IntVar(&o.LogEvery, "log-every", 0, "Log stats every N strokes")
	scriptPath := fs.String("script", "", "Path to a JSON pointer-event script")
	preview := fs.Bool("preview", false, "Log debounced previews while drawing")
	if err := parseFlags(cfg, fs, &o, args); err != nil {
		return err
	}
	if *scriptPath == "" {
		return errors.New("replay: -script is required")
	}

	f, err := os.Open(*scriptPath)
	if err != nil {
		return fmt.Errorf("open script: %w", err)
	}
	events, err := replay.LoadScript(f)
	f.Close()
	if err != nil {
		return err
	}

	eng := newEngine(cfg)
	defer eng.Close()
	eng.Start(ctx)
	if err := awaitEngine(ctx, eng); err != nil {
		return err
	}

	brush := surface.DefaultBrush()
	brush.Radius = cfg.BrushRadius
	runCfg := replay.RunConfig{
		Predictor: eng,
		Canvas:    surface.New(cfg.CanvasSize, cfg.CanvasSize, brush),
		Events:    events,
		GridSide:  cfg.GridSide,
		Raster:    raster.Options{SamplesPerAxis: cfg.SamplesPerAxis},
		LogEvery:  cfg.LogEvery,
	}
	if *preview {
		runCfg.OnPreview = func(pred model.Prediction, err error) {
			if err != nil {
				log.Printf("preview err=%v", err)
				return
			}
			log.Printf("preview label=%d confidence=%.3f empty=%t", pred.Label, pred.Confidence, pred.Empty)
		}
	}

	frames, err := replay.Run(ctx, runCfg)
	if err != nil {
		return err
	}
	p := message.NewPrinter(language.English)
	for _, frame := range frames {
		p.Fprintf(stdout, "stroke %d: ", frame.Stroke)
		printPrediction(stdout, frame.Prediction)
	}
	return nil
}

func runFit(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fit", flag.ContinueOnError)
	pointsArg := fs.String("points", "", `Points as "x,y x,y ..." (default: demo seed)`)
	slope := fs.Float64("slope", 0, "Candidate slope to compare with the best fit")
	intercept := fs.Float64("intercept", 0, "Candidate intercept to compare with the best fit")
	if err := fs.Parse(args); err != nil {
		return err
	}
	candidate := false
	fs.Visit(func(f *flag.Flag) {
		if f.Name == "slope" || f.Name == "intercept" {
			candidate = true
		}
	})

	points := linefit.DefaultSeed()
	if strings.TrimSpace(*pointsArg) != "" {
		var err error
		points, err = parsePoints(*pointsArg)
		if err != nil {
			return err
		}
	}

	set := linefit.NewSet(points)
	res, err := set.Fit()
	p := message.NewPrinter(language.English)
	switch {
	case errors.Is(err, linefit.ErrDegenerateFit):
		p.Fprintf(stdout, "degenerate fit over %d points: y = %.4f\n", set.Len(), res.Intercept)
	case err != nil:
		return err
	default:
		p.Fprintf(stdout, "best fit over %d points: slope=%.4f intercept=%.4f mse=%.6f\n",
			set.Len(), res.Slope, res.Intercept, linefit.MeanSquaredError(set.Points(), res.Slope, res.Intercept))
	}
	if candidate {
		p.Fprintf(stdout, "candidate: slope=%.4f intercept=%.4f mse=%.6f\n",
			*slope, *intercept, linefit.MeanSquaredError(set.Points(), *slope, *intercept))
	}
	return nil
}

// parsePoints reads whitespace or semicolon separated "x,y" pairs. Spaces
// around the comma are allowed.
func parsePoints(s string) ([]linefit.Point, error) {
	fields := pointFields(s)
	points := make([]linefit.Point, 0, len(fields))
	for _, field := range fields {
		xs, ys, ok := strings.Cut(field, ",")
		if !ok {
			return nil, fmt.Errorf("point %q: missing ','", field)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(xs), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: x: %w", field, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(ys), 64)
		if err != nil {
			return nil, fmt.Errorf("point %q: y: %w", field, err)
		}
		points = append(points, linefit.Point{X: x, Y: y})
	}
	return points, nil
}

// pointFields splits s on separators and rejoins halves of a pair split by
// whitespace next to the comma ("3, 7" and "3 ,7").
func pointFields(s string) []string {
	tokens := strings.FieldsFunc(s, func(r rune) bool {
		return r == ';' || r == ' ' || r == '\t' || r == '\n' || r == '\r'
	})
	fields := make([]string, 0, len(tokens))
	for _, tok := range tokens {
		if n := len(fields); n > 0 && (strings.HasSuffix(fields[n-1], ",") || strings.HasPrefix(tok, ",")) {
			fields[n-1] += tok
			continue
		}
		fields = append(fields, tok)
	}
	return fields
}

func printPrediction(w io.Writer, pred model.Prediction) {
	p := message.NewPrinter(language.English)
	if pred.Empty {
		p.Fprintln(w, "no prediction (blank input)")
		return
	}
	p.Fprintf(w, "label=%d confidence=%.1f%%\n", pred.Label, pred.Confidence*100)
	for i, prob := range pred.Probabilities {
		p.Fprintf(w, "  %d: %.4f\n", i, prob)
	}
}
