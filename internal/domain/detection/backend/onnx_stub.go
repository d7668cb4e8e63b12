//go:build !gocv
// +build !gocv

package backend

import (
	"context"

	"denticheck-server/internal/domain/detection"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

// ONNXConfig configures in-process YOLO inference.
type ONNXConfig struct {
	ModelPath  string
	InputSize  int
	ScoreFloor float64
	Logger     *logging.Logger
}

// ONNXBackend is unavailable in builds without the gocv tag.
type ONNXBackend struct{}

// NewONNXBackend always fails: build with -tags gocv for in-process inference.
func NewONNXBackend(context.Context, ONNXConfig) (*ONNXBackend, error) {
	return nil, apperrors.New(apperrors.KindModelUnavailable, "backend.onnx.new",
		"onnx backend requires a build with -tags gocv")
}

func (b *ONNXBackend) Name() string { return "onnx" }

func (b *ONNXBackend) Close() error { return nil }

func (b *ONNXBackend) Infer(context.Context, string) ([]detection.Prediction, error) {
	return nil, apperrors.New(apperrors.KindModelUnavailable, "backend.onnx.infer", "onnx backend not built")
}
