//go:build gocv
// +build gocv

package backend

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"gocv.io/x/gocv"

	"denticheck-server/internal/domain/detection"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

// ONNXConfig configures in-process YOLO inference.
type ONNXConfig struct {
	ModelPath string
	InputSize int
	// ScoreFloor discards anchors early; the detector threshold still applies.
	ScoreFloor float64
	Logger     *logging.Logger
}

// ONNXBackend runs a YOLOv8-style ONNX export through OpenCV DNN. The
// network is not safe for concurrent use, so calls are serialized.
type ONNXBackend struct {
	mu         sync.Mutex
	net        gocv.Net
	inputSize  int
	scoreFloor float64
	logger     *logging.Logger
}

func NewONNXBackend(_ context.Context, cfg ONNXConfig) (*ONNXBackend, error) {
	const op = "backend.onnx.new"
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, apperrors.Wrap(apperrors.KindModelUnavailable, op, fmt.Sprintf("model file %s not readable", cfg.ModelPath), err)
	}

	net := gocv.ReadNetFromONNX(cfg.ModelPath)
	if net.Empty() {
		return nil, apperrors.New(apperrors.KindModelUnavailable, op, "failed to load network")
	}
	if err := net.SetPreferableBackend(gocv.NetBackendDefault); err != nil {
		net.Close()
		return nil, apperrors.Wrap(apperrors.KindModelUnavailable, op, "set backend", err)
	}
	if err := net.SetPreferableTarget(gocv.NetTargetCPU); err != nil {
		net.Close()
		return nil, apperrors.Wrap(apperrors.KindModelUnavailable, op, "set target", err)
	}

	if cfg.InputSize <= 0 {
		cfg.InputSize = 640
	}
	cfg.Logger.InfoTag("DETECT", "onnx model loaded: %s (input %d)", cfg.ModelPath, cfg.InputSize)
	return &ONNXBackend{
		net:        net,
		inputSize:  cfg.InputSize,
		scoreFloor: cfg.ScoreFloor,
		logger:     cfg.Logger,
	}, nil
}

func (b *ONNXBackend) Name() string { return "onnx" }

func (b *ONNXBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.net.Close()
}

// Infer decodes output of shape [1, 4+classes, anchors]; each anchor holds
// cx, cy, w, h in input pixels followed by per-class scores.
func (b *ONNXBackend) Infer(ctx context.Context, imagePath string) ([]detection.Prediction, error) {
	const op = "backend.onnx.infer"
	img := gocv.IMRead(imagePath, gocv.IMReadColor)
	if img.Empty() {
		return nil, apperrors.New(apperrors.KindInference, op, "image could not be decoded")
	}
	defer img.Close()

	blob := gocv.BlobFromImage(img, 1.0/255.0, image.Pt(b.inputSize, b.inputSize), gocv.NewScalar(0, 0, 0, 0), true, false)
	defer blob.Close()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	b.mu.Lock()
	b.net.SetInput(blob, "")
	out := b.net.Forward("")
	b.mu.Unlock()
	defer out.Close()

	dims := out.Size()
	if len(dims) != 3 || dims[1] < 5 {
		return nil, apperrors.New(apperrors.KindInference, op, fmt.Sprintf("unexpected output shape %v", dims))
	}
	rows, anchors := dims[1], dims[2]
	data, err := out.DataPtrFloat32()
	if err != nil {
		return nil, apperrors.Wrap(apperrors.KindInference, op, "read output tensor", err)
	}

	size := float64(b.inputSize)
	var preds []detection.Prediction
	for i := 0; i < anchors; i++ {
		bestClass, bestScore := -1, float32(0)
		for c := 4; c < rows; c++ {
			if s := data[c*anchors+i]; s > bestScore {
				bestClass, bestScore = c-4, s
			}
		}
		if bestClass < 0 || float64(bestScore) < b.scoreFloor {
			continue
		}
		preds = append(preds, detection.Prediction{
			ClassID:    bestClass,
			Confidence: float64(bestScore),
			Box: detection.BoundingBox{
				X: float64(data[0*anchors+i]) / size,
				Y: float64(data[1*anchors+i]) / size,
				W: float64(data[2*anchors+i]) / size,
				H: float64(data[3*anchors+i]) / size,
			},
		})
	}
	return preds, nil
}
