package backend

import (
	"context"
	"fmt"

	"denticheck-server/internal/domain/detection"
	"denticheck-server/internal/platform/config"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
)

const (
	DriverHTTP = "http"
	DriverONNX = "onnx"
)

// New builds the backend selected by cfg.Backend. Load failures are
// model_unavailable errors.
func New(ctx context.Context, cfg config.DetectorConfig, logger *logging.Logger) (detection.Backend, error) {
	switch cfg.Backend {
	case DriverHTTP, "":
		return NewHTTPBackend(ctx, HTTPConfig{
			Endpoint:  cfg.Endpoint,
			Threshold: cfg.ConfidenceThreshold,
			Timeout:   cfg.Timeout,
			Probe:     cfg.ProbeOnStart,
			Logger:    logger,
		})
	case DriverONNX:
		return NewONNXBackend(ctx, ONNXConfig{
			ModelPath:  cfg.ModelPath,
			InputSize:  cfg.InputSize,
			ScoreFloor: cfg.ConfidenceThreshold,
			Logger:     logger,
		})
	default:
		return nil, apperrors.New(apperrors.KindConfig, "backend.new", fmt.Sprintf("unknown detector backend %q", cfg.Backend))
	}
}
