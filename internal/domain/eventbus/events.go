package eventbus

import "time"

const (
	// TopicRun carries one RunEvent per finished detection or report request.
	TopicRun = "run:finished"
)

// Operation names.
const (
	OperationDetect  = "detect"
	OperationReport  = "report"
	OperationQuality = "quality"
)

// Status values.
const (
	StatusCompleted = "completed"
	StatusDegraded  = "degraded"
	StatusFailed    = "failed"
)

// RunEvent is request metadata only; image bytes and report text are never
// published.
type RunEvent struct {
	RequestID string         `json:"request_id"`
	Operation string         `json:"operation"`
	Source    string         `json:"source,omitempty"`
	Status    string         `json:"status"`
	ErrorKind string         `json:"error_kind,omitempty"`
	Labels    map[string]int `json:"labels,omitempty"`
	Duration  time.Duration  `json:"duration"`
	At        time.Time      `json:"at"`
}

// Publisher is the subset of the bus producers depend on.
type Publisher interface {
	PublishAsync(topic string, args ...interface{})
}

// Discard is a Publisher that drops everything.
type Discard struct{}

func (Discard) PublishAsync(string, ...interface{}) {}
