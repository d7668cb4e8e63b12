package detection

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "denticheck-server/internal/platform/errors"
)

type stubBackend struct {
	name  string
	preds []Prediction
	err   error
	delay time.Duration

	mu     sync.Mutex
	paths  []string
	closed bool
}

func (b *stubBackend) Name() string { return b.name }

func (b *stubBackend) Infer(ctx context.Context, imagePath string) ([]Prediction, error) {
	b.mu.Lock()
	b.paths = append(b.paths, imagePath)
	b.mu.Unlock()
	if b.delay > 0 {
		select {
		case <-time.After(b.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return b.preds, b.err
}

func (b *stubBackend) Close() error {
	b.closed = true
	return nil
}

func testTable(t *testing.T) ClassTable {
	t.Helper()
	table, err := NewClassTable("test-v1", map[int]string{0: "caries", 1: "calculus", 2: "lesion"})
	require.NoError(t, err)
	return table
}

func TestNewClassTable(t *testing.T) {
	_, err := NewClassTable("", map[int]string{0: "caries"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
	_, err = NewClassTable("v1", nil)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
	_, err = NewClassTable("v1", map[int]string{-1: "caries"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))

	src := map[int]string{2: "lesion", 0: "caries"}
	table, err := NewClassTable("v1", src)
	require.NoError(t, err)
	src[0] = "mutated"
	name, ok := table.Name(0)
	assert.True(t, ok)
	assert.Equal(t, "caries", name)
	assert.Equal(t, []int{0, 2}, table.IDs())
}

func TestNewDetector_NoBackend(t *testing.T) {
	_, err := NewDetector(nil, testTable(t), Options{Threshold: 0.25})
	assert.True(t, apperrors.IsKind(err, apperrors.KindModelUnavailable))
}

func TestDetector_ThresholdAndLookup(t *testing.T) {
	backend := &stubBackend{name: "stub", preds: []Prediction{
		{ClassID: 1, Confidence: 0.8, Box: BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}},
		{ClassID: 0, Confidence: 0.24, Box: BoundingBox{X: 0.3, Y: 0.3, W: 0.1, H: 0.1}},
		{ClassID: 0, Confidence: 0.25, Box: BoundingBox{X: 0.7, Y: 0.7, W: 0.1, H: 0.1}},
		{ClassID: 9, Confidence: 0.5, Box: BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}},
	}}
	d, err := NewDetector(backend, testTable(t), Options{Threshold: 0.25})
	require.NoError(t, err)

	raws, version, err := d.Infer(context.Background(), "/tmp/img.jpg")
	require.NoError(t, err)
	assert.Equal(t, "test-v1", version)
	require.Len(t, raws, 3)

	assert.Equal(t, "calculus", raws[0].ClassName)
	assert.Equal(t, 0.8, raws[0].Score)
	assert.Equal(t, "caries", raws[1].ClassName)
	assert.Equal(t, 0.25, raws[1].Score, "score equal to threshold is kept")
	assert.Equal(t, "", raws[2].ClassName, "unknown ids resolve to an empty name")
	for _, r := range raws {
		assert.GreaterOrEqual(t, r.Score, d.Threshold())
	}
	assert.Equal(t, []string{"/tmp/img.jpg"}, backend.paths)
}

func TestDetector_DropsOutOfRangeConfidence(t *testing.T) {
	box := BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}
	backend := &stubBackend{name: "stub", preds: []Prediction{
		{ClassID: 1, Confidence: 1.7, Box: box},
		{ClassID: 1, Confidence: -0.3, Box: box},
		{ClassID: 0, Confidence: 1, Box: BoundingBox{X: 0.2, Y: 0.2, W: 0.1, H: 0.1}},
	}}
	d, err := NewDetector(backend, testTable(t), Options{Threshold: 0})
	require.NoError(t, err)

	raws, _, err := d.Infer(context.Background(), "/tmp/img.jpg")
	require.NoError(t, err)
	require.Len(t, raws, 1)
	assert.Equal(t, "caries", raws[0].ClassName)
	assert.Equal(t, 1.0, raws[0].Score)
}

func TestDetector_SanitizesBoxes(t *testing.T) {
	backend := &stubBackend{name: "stub", preds: []Prediction{
		{ClassID: 0, Confidence: 0.9, Box: BoundingBox{X: 0.95, Y: 0.5, W: 0.2, H: 0.2}},
		{ClassID: 0, Confidence: 0.9, Box: BoundingBox{X: 0.5, Y: 0.5, W: 0, H: 0.2}},
		{ClassID: 0, Confidence: 0.9, Box: BoundingBox{X: 1.5, Y: 1.5, W: 0.2, H: 0.2}},
	}}
	d, err := NewDetector(backend, testTable(t), Options{Threshold: 0.25})
	require.NoError(t, err)

	raws, _, err := d.Infer(context.Background(), "img")
	require.NoError(t, err)
	require.Len(t, raws, 1)
	b := raws[0].Box
	assert.InDelta(t, 0.925, b.X, 1e-9)
	assert.InDelta(t, 0.15, b.W, 1e-9)
	for _, v := range []float64{b.X, b.Y, b.W, b.H} {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 1.0)
	}
}

func TestDetector_NonMaxSuppression(t *testing.T) {
	backend := &stubBackend{name: "stub", preds: []Prediction{
		{ClassID: 0, Confidence: 0.6, Box: BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}},
		{ClassID: 0, Confidence: 0.9, Box: BoundingBox{X: 0.51, Y: 0.5, W: 0.2, H: 0.2}},
		{ClassID: 1, Confidence: 0.7, Box: BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}},
		{ClassID: 0, Confidence: 0.5, Box: BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}},
	}}
	d, err := NewDetector(backend, testTable(t), Options{Threshold: 0.25, NMSThreshold: 0.45})
	require.NoError(t, err)

	raws, _, err := d.Infer(context.Background(), "img")
	require.NoError(t, err)
	require.Len(t, raws, 3)
	assert.Equal(t, 0.9, raws[0].Score, "higher-scoring overlap survives")
	assert.Equal(t, "calculus", raws[1].ClassName, "other classes are not suppressed")
	assert.Equal(t, 0.5, raws[2].Score)
}

func TestDetector_BackendFailure(t *testing.T) {
	backend := &stubBackend{name: "stub", err: errors.New("cuda error")}
	d, err := NewDetector(backend, testTable(t), Options{Threshold: 0.25})
	require.NoError(t, err)

	raws, _, err := d.Infer(context.Background(), "img")
	assert.Nil(t, raws)
	assert.True(t, apperrors.IsKind(err, apperrors.KindInference))

	backend.err = apperrors.New(apperrors.KindModelUnavailable, "backend", "weights missing")
	_, _, err = d.Infer(context.Background(), "img")
	assert.True(t, apperrors.IsKind(err, apperrors.KindModelUnavailable))
}

func TestDetector_Timeout(t *testing.T) {
	backend := &stubBackend{name: "slow", delay: time.Second}
	d, err := NewDetector(backend, testTable(t), Options{Threshold: 0.25, Timeout: 20 * time.Millisecond})
	require.NoError(t, err)

	_, _, err = d.Infer(context.Background(), "img")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestDetector_Swap(t *testing.T) {
	first := &stubBackend{name: "first", preds: []Prediction{{ClassID: 0, Confidence: 0.9, Box: BoundingBox{X: 0.5, Y: 0.5, W: 0.1, H: 0.1}}}}
	d, err := NewDetector(first, testTable(t), Options{Threshold: 0.25})
	require.NoError(t, err)

	v2, err := NewClassTable("test-v2", map[int]string{0: "tartar"})
	require.NoError(t, err)
	second := &stubBackend{name: "second", preds: first.preds}

	prev, err := d.Swap(second, v2)
	require.NoError(t, err)
	assert.Same(t, first, prev)
	assert.Equal(t, "second", d.BackendName())

	raws, version, err := d.Infer(context.Background(), "img")
	require.NoError(t, err)
	assert.Equal(t, "test-v2", version)
	assert.Equal(t, "tartar", raws[0].ClassName)

	_, err = d.Swap(nil, v2)
	assert.True(t, apperrors.IsKind(err, apperrors.KindModelUnavailable))
	require.NoError(t, d.Close())
	assert.True(t, second.closed)
}

func TestIoU(t *testing.T) {
	a := BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}
	assert.InDelta(t, 1.0, iou(a, a), 1e-9)
	assert.Equal(t, 0.0, iou(a, BoundingBox{X: 0.1, Y: 0.1, W: 0.1, H: 0.1}))
}

func TestDetector_SwapClassesKeepsBackend(t *testing.T) {
	b := &stubBackend{name: "stub", preds: []Prediction{{ClassID: 1, Confidence: 0.9, Box: BoundingBox{X: 0.5, Y: 0.5, W: 0.2, H: 0.2}}}}
	d, err := NewDetector(b, testTable(t), Options{Threshold: 0.25})
	require.NoError(t, err)

	renamed, err := NewClassTable("v2", map[int]string{1: "tartar"})
	require.NoError(t, err)
	require.NoError(t, d.SwapClasses(renamed))

	assert.Equal(t, "stub", d.BackendName())
	raws, version, err := d.Infer(context.Background(), "x.png")
	require.NoError(t, err)
	assert.Equal(t, "v2", version)
	require.Len(t, raws, 1)
	assert.Equal(t, "tartar", raws[0].ClassName)

	err = d.SwapClasses(ClassTable{})
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
	assert.Equal(t, "v2", d.ClassTableVersion())
}

func TestLoadClassTable(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "classes.yaml")
	require.NoError(t, os.WriteFile(path, []byte("version: v3\nclasses:\n  0: caries\n  2: lesion\n"), 0o600))

	table, err := LoadClassTable(path)
	require.NoError(t, err)
	assert.Equal(t, "v3", table.Version)
	assert.Equal(t, []int{0, 2}, table.IDs())

	require.NoError(t, os.WriteFile(path, []byte("classes:\n  0: caries\n"), 0o600))
	_, err = LoadClassTable(path)
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))

	_, err = LoadClassTable(filepath.Join(dir, "missing.yaml"))
	assert.True(t, apperrors.IsKind(err, apperrors.KindConfig))
}
