package backend

import (
	"context"

	"denticheck-server/internal/domain/detection"
	apperrors "denticheck-server/internal/platform/errors"
)

// Unavailable stands in for a backend that failed to load so the server can
// still start; every inference reports model_unavailable.
type Unavailable struct {
	cause error
}

var _ detection.Backend = (*Unavailable)(nil)

func NewUnavailable(cause error) *Unavailable {
	return &Unavailable{cause: cause}
}

func (u *Unavailable) Name() string { return "unavailable" }

func (u *Unavailable) Infer(context.Context, string) ([]detection.Prediction, error) {
	const op = "backend.unavailable"
	if u.cause == nil {
		return nil, apperrors.New(apperrors.KindModelUnavailable, op, "no detection model loaded")
	}
	return nil, apperrors.Wrap(apperrors.KindModelUnavailable, op, "no detection model loaded", u.cause)
}

func (u *Unavailable) Close() error { return nil }
