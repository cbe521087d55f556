package metrics

import "time"

// Window accumulates prediction timing stats between snapshots.
type Window struct {
	predictions    int
	raster         time.Duration
	infer          time.Duration
	lastConfidence float64
}

// Record adds one rasterize+infer measurement to the window.
func (w *Window) Record(rasterTime, inferTime time.Duration, confidence float64) {
	w.predictions++
	w.raster += rasterTime
	w.infer += inferTime
	w.lastConfidence = confidence
}

// Count is the number of predictions recorded since the last snapshot.
func (w *Window) Count() int {
	return w.predictions
}

// Snapshot returns aggregated metrics and resets the window.
func (w *Window) Snapshot() Snapshot {
	snap := Snapshot{Predictions: w.predictions}
	total := w.raster + w.infer
	if total > 0 {
		snap.PredictionsPerSec = float64(w.predictions) / total.Seconds()
	}
	if w.predictions > 0 {
		snap.AvgRasterMS = (w.raster.Seconds() * 1000) / float64(w.predictions)
		snap.AvgInferMS = (w.infer.Seconds() * 1000) / float64(w.predictions)
	}
	snap.LastConfidence = w.lastConfidence

	w.predictions = 0
	w.raster = 0
	w.infer = 0
	return snap
}

// Snapshot represents loggable metrics.
type Snapshot struct {
	Predictions       int
	PredictionsPerSec float64
	AvgRasterMS       float64
	AvgInferMS        float64
	LastConfidence    float64
}
