package report

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"denticheck-server/internal/domain/eventbus"
	apperrors "denticheck-server/internal/platform/errors"
	"denticheck-server/internal/platform/logging"
	"denticheck-server/internal/platform/observability"
)

// Synthesizer turns a composed context into report prose.
type Synthesizer interface {
	Synthesize(ctx context.Context, rc *Context) (*Outcome, error)
}

// Service composes context and synthesizes a report. Failures are always
// returned as errors; there is no partial or placeholder report.
type Service struct {
	composer    *Composer
	synthesizer Synthesizer
	publisher   eventbus.Publisher
	logger      *logging.Logger
}

func NewService(composer *Composer, synth Synthesizer, publisher eventbus.Publisher, logger *logging.Logger) (*Service, error) {
	const op = "report.service"
	if composer == nil {
		return nil, apperrors.New(apperrors.KindConfig, op, "composer is required")
	}
	if synth == nil {
		return nil, apperrors.New(apperrors.KindConfig, op, "synthesizer is required")
	}
	if publisher == nil {
		publisher = eventbus.Discard{}
	}
	return &Service{composer: composer, synthesizer: synth, publisher: publisher, logger: logger}, nil
}

// Generate runs Compose then Synthesize.
func (s *Service) Generate(ctx context.Context, req Request) (out *Outcome, err error) {
	const op = "report.generate"
	requestID := uuid.NewString()
	start := time.Now()
	ctx, end := observability.StartSpan(ctx, "report", "generate")
	defer func() {
		end(err)
		s.publish(requestID, req, err, time.Since(start))
	}()

	rc, err := s.composer.Compose(ctx, req)
	if err != nil {
		s.logger.WarnTag("REPORT", "request %s: compose failed: kind=%s err=%v", requestID, apperrors.KindOf(err), err)
		return nil, err
	}

	out, err = s.synthesizer.Synthesize(ctx, rc)
	if err != nil {
		s.logger.ErrorTag("REPORT", "request %s: synthesis failed: %v", requestID, err)
		return nil, apperrors.Reclassify(apperrors.KindSynthesis, op, "report synthesis failed", err)
	}
	if out == nil || strings.TrimSpace(out.Summary) == "" || strings.TrimSpace(out.Details) == "" {
		err = apperrors.New(apperrors.KindSynthesis, op, "synthesizer returned an incomplete report")
		s.logger.ErrorTag("REPORT", "request %s: %v", requestID, err)
		return nil, err
	}
	out.Language = rc.Language

	s.logger.InfoTag("REPORT", "request %s: report generated (lang=%s, passages=%d) in %s",
		requestID, rc.Language, len(rc.Passages), time.Since(start).Round(time.Millisecond))
	return out, nil
}

func (s *Service) publish(requestID string, req Request, err error, elapsed time.Duration) {
	ev := eventbus.RunEvent{
		RequestID: requestID,
		Operation: eventbus.OperationReport,
		Status:    eventbus.StatusCompleted,
		Duration:  elapsed,
		At:        time.Now(),
	}
	if err != nil {
		ev.Status = eventbus.StatusFailed
		ev.ErrorKind = string(apperrors.KindOf(err))
	} else {
		ev.Labels = make(map[string]int, len(req.Findings))
		for label, f := range req.Findings {
			if f.IsPresent() {
				ev.Labels[label] = f.Count
			}
		}
	}
	s.publisher.PublishAsync(eventbus.TopicRun, ev)
}
