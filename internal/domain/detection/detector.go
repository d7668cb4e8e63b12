package detection

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync/atomic"
	"time"

	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
	"denticheck-server/internal/platform/observability"
)

// Backend runs a detection model over an image file.
type Backend interface {
	Name() string
	Infer(ctx context.Context, imagePath string) ([]Prediction, error)
	Close() error
}

// Options tunes post-processing of backend predictions.
type Options struct {
	Threshold    float64
	NMSThreshold float64
	Timeout      time.Duration
	Logger       *logging.Logger
}

type model struct {
	backend Backend
	classes ClassTable
}

// Detector applies thresholding, box sanitation, non-max suppression and
// class lookup on top of a Backend. The backend and class table can be
// swapped at runtime; a call in flight keeps the pair it started with.
type Detector struct {
	current atomic.Pointer[model]
	opts    Options
	logger  *logging.Logger
}

func NewDetector(backend Backend, classes ClassTable, opts Options) (*Detector, error) {
	const op = "detection.new"
	if backend == nil {
		return nil, apperrors.New(apperrors.KindModelUnavailable, op, "no detection backend loaded")
	}
	if classes.Len() == 0 {
		return nil, apperrors.New(apperrors.KindConfig, op, "class table is empty")
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, apperrors.New(apperrors.KindConfig, op, fmt.Sprintf("threshold %.3f out of range", opts.Threshold))
	}
	d := &Detector{opts: opts, logger: opts.Logger}
	d.current.Store(&model{backend: backend, classes: classes})
	return d, nil
}

// Swap installs a new backend and class table and returns the previous
// backend so the caller can close it once in-flight calls drain.
func (d *Detector) Swap(backend Backend, classes ClassTable) (Backend, error) {
	if backend == nil {
		return nil, apperrors.New(apperrors.KindModelUnavailable, "detection.swap", "no detection backend loaded")
	}
	if classes.Len() == 0 {
		return nil, apperrors.New(apperrors.KindConfig, "detection.swap", "class table is empty")
	}
	prev := d.current.Swap(&model{backend: backend, classes: classes})
	d.logger.InfoTag("DETECT", "model swapped: backend=%s classes=%s", backend.Name(), classes.Version)
	if prev == nil {
		return nil, nil
	}
	return prev.backend, nil
}

// SwapClasses installs a new class table and keeps the current backend.
func (d *Detector) SwapClasses(classes ClassTable) error {
	if classes.Len() == 0 {
		return apperrors.New(apperrors.KindConfig, "detection.swap_classes", "class table is empty")
	}
	for {
		prev := d.current.Load()
		next := &model{backend: prev.backend, classes: classes}
		if d.current.CompareAndSwap(prev, next) {
			d.logger.InfoTag("DETECT", "class table %s replaced by %s", prev.classes.Version, classes.Version)
			return nil
		}
	}
}

// BackendName and ClassTableVersion describe the currently installed model.
func (d *Detector) BackendName() string       { return d.current.Load().backend.Name() }
func (d *Detector) ClassTableVersion() string { return d.current.Load().classes.Version }
func (d *Detector) Threshold() float64        { return d.opts.Threshold }

// Infer returns detections with score >= threshold in backend emission
// order. Scores outside [0,1] are dropped. Backend failures surface as errors, never as an empty result.
func (d *Detector) Infer(ctx context.Context, imagePath string) (raws []RawDetection, classVersion string, err error) {
	const op = "detection.infer"
	m := d.current.Load()

	ctx, end := observability.StartSpan(ctx, "detection", "infer")
	defer func() { end(err) }()

	if d.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.opts.Timeout)
		defer cancel()
	}

	preds, err := m.backend.Infer(ctx, imagePath)
	if err != nil {
		return nil, m.classes.Version, apperrors.Wrap(apperrors.KindInference, op,
			fmt.Sprintf("backend %s failed", m.backend.Name()), err)
	}

	kept := make([]Prediction, 0, len(preds))
	for _, p := range preds {
		if math.IsNaN(p.Confidence) || p.Confidence < 0 || p.Confidence > 1 {
			d.logger.DebugTag("DETECT", "dropped out-of-range confidence %v for class %d", p.Confidence, p.ClassID)
			continue
		}
		if p.Confidence < d.opts.Threshold {
			continue
		}
		box, ok := sanitizeBox(p.Box)
		if !ok {
			d.logger.DebugTag("DETECT", "dropped degenerate box for class %d", p.ClassID)
			continue
		}
		p.Box = box
		kept = append(kept, p)
	}
	if d.opts.NMSThreshold > 0 {
		kept = suppress(kept, d.opts.NMSThreshold)
	}

	raws = make([]RawDetection, 0, len(kept))
	for _, p := range kept {
		name, known := m.classes.Name(p.ClassID)
		if !known {
			d.logger.WarnTag("DETECT", "class id %d not in table %s", p.ClassID, m.classes.Version)
		}
		raws = append(raws, RawDetection{
			ClassID:   p.ClassID,
			ClassName: name,
			Score:     p.Confidence,
			Box:       p.Box,
		})
	}
	return raws, m.classes.Version, nil
}

// Close releases the installed backend.
func (d *Detector) Close() error {
	return d.current.Load().backend.Close()
}

// sanitizeBox clips a center box to the unit square. Boxes with no area
// left are rejected.
func sanitizeBox(b BoundingBox) (BoundingBox, bool) {
	for _, v := range []float64{b.X, b.Y, b.W, b.H} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return BoundingBox{}, false
		}
	}
	x1 := clamp01(b.X - b.W/2)
	y1 := clamp01(b.Y - b.H/2)
	x2 := clamp01(b.X + b.W/2)
	y2 := clamp01(b.Y + b.H/2)
	if x2 <= x1 || y2 <= y1 {
		return BoundingBox{}, false
	}
	return BoundingBox{
		X: (x1 + x2) / 2,
		Y: (y1 + y2) / 2,
		W: x2 - x1,
		H: y2 - y1,
	}, true
}

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// iou computes intersection over union of two center boxes.
func iou(a, b BoundingBox) float64 {
	ix := math.Min(a.X+a.W/2, b.X+b.W/2) - math.Max(a.X-a.W/2, b.X-b.W/2)
	iy := math.Min(a.Y+a.H/2, b.Y+b.H/2) - math.Max(a.Y-a.H/2, b.Y-b.H/2)
	if ix <= 0 || iy <= 0 {
		return 0
	}
	inter := ix * iy
	union := a.Area() + b.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// suppress runs greedy per-class non-max suppression and keeps the
// survivors in their original order.
func suppress(preds []Prediction, threshold float64) []Prediction {
	order := make([]int, len(preds))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return preds[order[a]].Confidence > preds[order[b]].Confidence
	})

	dropped := make([]bool, len(preds))
	for i, oi := range order {
		if dropped[oi] {
			continue
		}
		for _, oj := range order[i+1:] {
			if dropped[oj] || preds[oj].ClassID != preds[oi].ClassID {
				continue
			}
			if iou(preds[oi].Box, preds[oj].Box) > threshold {
				dropped[oj] = true
			}
		}
	}

	out := make([]Prediction, 0, len(preds))
	for i, p := range preds {
		if !dropped[i] {
			out = append(out, p)
		}
	}
	return out
}
