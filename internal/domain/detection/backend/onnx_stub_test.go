//go:build !gocv

package backend

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "denticheck-server/internal/platform/errors"
)

func TestONNXRequiresGocvBuild(t *testing.T) {
	_, err := NewONNXBackend(context.Background(), ONNXConfig{ModelPath: "missing.onnx"})
	assert.True(t, apperrors.IsKind(err, apperrors.KindModelUnavailable))
}
