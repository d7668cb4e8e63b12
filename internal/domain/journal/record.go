package journal

import (
	"context"
	"time"

	"github.com/google/uuid"

	"denticheck-server/internal/domain/eventbus"
)

// Record is the journaled metadata of one finished request. It never holds
// image bytes or report text.
type Record struct {
	ID         string         `json:"id"`
	RequestID  string         `json:"request_id"`
	Operation  string         `json:"operation"`
	Source     string         `json:"source,omitempty"`
	Status     string         `json:"status"`
	ErrorKind  string         `json:"error_kind,omitempty"`
	Labels     map[string]int `json:"labels,omitempty"`
	DurationMs int64          `json:"duration_ms"`
	CreatedAt  time.Time      `json:"created_at"`
}

// FromEvent converts a bus event into a record with a fresh ID.
func FromEvent(ev eventbus.RunEvent) Record {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}
	return Record{
		ID:         uuid.NewString(),
		RequestID:  ev.RequestID,
		Operation:  ev.Operation,
		Source:     ev.Source,
		Status:     ev.Status,
		ErrorKind:  ev.ErrorKind,
		Labels:     ev.Labels,
		DurationMs: ev.Duration.Milliseconds(),
		CreatedAt:  at.UTC(),
	}
}

// Store persists records. List returns the newest records first.
type Store interface {
	Append(ctx context.Context, rec Record) error
	List(ctx context.Context, limit int) ([]Record, error)
	Close() error
}

const defaultListLimit = 50

func clampLimit(limit, capacity int) int {
	if limit <= 0 {
		limit = defaultListLimit
	}
	if capacity > 0 && limit > capacity {
		limit = capacity
	}
	return limit
}
