package detection

import (
	"context"
	"time"

	"github.com/google/uuid"

	"denticheck-server/internal/domain/acquire"
	"denticheck-server/internal/domain/eventbus"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
	"denticheck-server/internal/platform/observability"
)

// ImageSource materializes request images as temporary files.
type ImageSource interface {
	FromUpload(ctx context.Context, data []byte, filename string) (*acquire.TempImage, error)
	FromReference(ctx context.Context, storageKey, imageURL string) (*acquire.TempImage, error)
}

// Inferencer is satisfied by *Detector.
type Inferencer interface {
	Infer(ctx context.Context, imagePath string) ([]RawDetection, string, error)
}

// ServiceOptions wires the detection pipeline.
type ServiceOptions struct {
	Source    ImageSource
	Detector  Inferencer
	Aggregate AggregateOptions
	Publisher eventbus.Publisher
	Logger    *logging.Logger

	// DegradeOnFailure turns upstream, model and inference failures into a
	// degraded Outcome instead of an error.
	DegradeOnFailure bool
}

// Service runs acquisition, inference, normalization and aggregation for
// one image per call. Calls are independent and safe for concurrent use.
type Service struct {
	source    ImageSource
	detector  Inferencer
	aggregate AggregateOptions
	publisher eventbus.Publisher
	logger    *logging.Logger
	degrade   bool
}

func NewService(opts ServiceOptions) (*Service, error) {
	const op = "detection.service"
	if opts.Source == nil {
		return nil, apperrors.New(apperrors.KindConfig, op, "image source is required")
	}
	if opts.Detector == nil {
		return nil, apperrors.New(apperrors.KindModelUnavailable, op, "detector is required")
	}
	if opts.Publisher == nil {
		opts.Publisher = eventbus.Discard{}
	}
	return &Service{
		source:    opts.Source,
		detector:  opts.Detector,
		aggregate: opts.Aggregate,
		publisher: opts.Publisher,
		logger:    opts.Logger,
		degrade:   opts.DegradeOnFailure,
	}, nil
}

// DetectReference runs detection on an image fetched by storage key or URL.
func (s *Service) DetectReference(ctx context.Context, requestID, storageKey, imageURL string) (*Outcome, error) {
	return s.run(ctx, requestID, "reference", func(ctx context.Context) (*acquire.TempImage, error) {
		return s.source.FromReference(ctx, storageKey, imageURL)
	})
}

// DetectUpload runs detection on uploaded bytes.
func (s *Service) DetectUpload(ctx context.Context, requestID string, data []byte, filename string) (*Outcome, error) {
	return s.run(ctx, requestID, "upload", func(ctx context.Context) (*acquire.TempImage, error) {
		return s.source.FromUpload(ctx, data, filename)
	})
}

func (s *Service) run(ctx context.Context, requestID, source string, acquireFn func(context.Context) (*acquire.TempImage, error)) (outcome *Outcome, err error) {
	if requestID == "" {
		requestID = uuid.NewString()
	}
	start := time.Now()
	ctx, end := observability.StartSpan(ctx, "detection", "detect")
	defer func() {
		end(err)
		s.publish(requestID, source, outcome, err, time.Since(start))
	}()

	err = acquire.Scoped(ctx, acquireFn, func(ctx context.Context, img *acquire.TempImage) error {
		raws, version, err := s.detector.Infer(ctx, img.Path)
		if err != nil {
			return err
		}
		dets := Normalized(raws)
		outcome = &Outcome{
			RequestID:         requestID,
			Detections:        dets,
			Summary:           Aggregate(dets, s.aggregate),
			ClassTableVersion: version,
		}
		return nil
	})
	if err != nil {
		if s.degrade && Degradable(err) {
			s.logger.WarnTag("DETECT", "request %s degraded to empty result: kind=%s err=%v",
				requestID, apperrors.KindOf(err), err)
			outcome, err = Degraded(requestID, err), nil
			return outcome, nil
		}
		s.logger.WarnTag("DETECT", "request %s failed: kind=%s err=%v", requestID, apperrors.KindOf(err), err)
		return nil, err
	}

	s.logger.InfoTag("DETECT", "request %s: %d detections, labels=%d, %s",
		requestID, len(outcome.Detections), len(outcome.Summary), time.Since(start).Round(time.Millisecond))
	observability.RecordMetric(ctx, "detection.count", float64(len(outcome.Detections)), map[string]string{"source": source})
	return outcome, nil
}

// Normalized maps raw detections onto the label taxonomy, keeping order.
func Normalized(raws []RawDetection) []Detection {
	dets := make([]Detection, 0, len(raws))
	for _, r := range raws {
		dets = append(dets, Detection{
			Label: Normalize(r.ClassName),
			Score: r.Score,
			BBox:  r.Box,
		})
	}
	return dets
}

// Degradable reports whether err may be served as a degraded outcome.
// Caller mistakes are never degraded.
func Degradable(err error) bool {
	switch apperrors.KindOf(err) {
	case apperrors.KindUpstreamFetch, apperrors.KindUpstreamTimeout,
		apperrors.KindModelUnavailable, apperrors.KindInference:
		return true
	default:
		return false
	}
}

// Degraded builds the empty, explicitly flagged outcome that stands in for
// a failed request.
func Degraded(requestID string, err error) *Outcome {
	return &Outcome{
		RequestID:  requestID,
		Detections: []Detection{},
		Summary:    map[Label]LabelSummary{},
		Degraded:   true,
		Failure: &Failure{
			Kind:    string(apperrors.KindOf(err)),
			Message: apperrors.MessageOf(err),
		},
	}
}

func (s *Service) publish(requestID, source string, outcome *Outcome, err error, elapsed time.Duration) {
	ev := eventbus.RunEvent{
		RequestID: requestID,
		Operation: eventbus.OperationDetect,
		Source:    source,
		Status:    eventbus.StatusCompleted,
		Duration:  elapsed,
		At:        time.Now(),
	}
	switch {
	case err != nil:
		ev.Status = eventbus.StatusFailed
		ev.ErrorKind = string(apperrors.KindOf(err))
	case outcome != nil && outcome.Degraded:
		ev.Status = eventbus.StatusDegraded
		ev.ErrorKind = outcome.Failure.Kind
	case outcome != nil:
		ev.Labels = make(map[string]int, len(outcome.Summary))
		for label, s := range outcome.Summary {
			ev.Labels[string(label)] = s.Count
		}
	}
	s.publisher.PublishAsync(eventbus.TopicRun, ev)
}
