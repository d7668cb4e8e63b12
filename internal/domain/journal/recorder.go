package journal

import (
	"context"
	"time"

	"denticheck-server/internal/domain/eventbus"
	"denticheck-server/internal/platform/logging"
)

// Subscriber is the subset of the event bus the recorder needs.
type Subscriber interface {
	Subscribe(topic string, fn interface{}) error
	Unsubscribe(topic string, handler interface{}) error
}

// Recorder appends every run event to a Store. Store failures are logged
// and never reach the request path.
type Recorder struct {
	store   Store
	logger  *logging.Logger
	timeout time.Duration
}

func NewRecorder(store Store, logger *logging.Logger) *Recorder {
	return &Recorder{store: store, logger: logger, timeout: 5 * time.Second}
}

// Attach subscribes the recorder to run events; call the returned function
// to detach.
func (r *Recorder) Attach(bus Subscriber) (func(), error) {
	if err := bus.Subscribe(eventbus.TopicRun, r.Handle); err != nil {
		return nil, err
	}
	return func() { _ = bus.Unsubscribe(eventbus.TopicRun, r.Handle) }, nil
}

func (r *Recorder) Handle(ev eventbus.RunEvent) {
	ctx, cancel := context.WithTimeout(context.Background(), r.timeout)
	defer cancel()
	rec := FromEvent(ev)
	if err := r.store.Append(ctx, rec); err != nil {
		r.logger.WarnTag("JOURNAL", "failed to record %s %s: %v", rec.Operation, rec.RequestID, err)
		return
	}
	r.logger.DebugTag("JOURNAL", "recorded %s %s status=%s", rec.Operation, rec.RequestID, rec.Status)
}
