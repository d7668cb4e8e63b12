package eventbus

import (
	"sync"
	"sync/atomic"

	evbus "github.com/asaskevich/EventBus"

	"denticheck-server/internal/platform/logging"
)

// AsyncEventBus delivers events to subscribers on a fixed worker pool.
// Handlers run off the request path; a full queue drops the event.
type AsyncEventBus struct {
	bus       evbus.Bus
	workerNum int
	workChan  chan asyncEvent
	stopChan  chan struct{}
	wg        sync.WaitGroup
	inflight  sync.WaitGroup
	dropped   atomic.Int64
	stopOnce  sync.Once
	logger    *logging.Logger
}

type asyncEvent struct {
	topic string
	args  []interface{}
}

// NewAsyncEventBus creates a bus with workerNum workers and a queue of
// queueSize pending events.
func NewAsyncEventBus(workerNum, queueSize int, logger *logging.Logger) *AsyncEventBus {
	if workerNum <= 0 {
		workerNum = 2
	}
	if queueSize <= 0 {
		queueSize = 1000
	}
	return &AsyncEventBus{
		bus:       evbus.New(),
		workerNum: workerNum,
		workChan:  make(chan asyncEvent, queueSize),
		stopChan:  make(chan struct{}),
		logger:    logger,
	}
}

// Start launches the workers.
func (aeb *AsyncEventBus) Start() {
	for i := 0; i < aeb.workerNum; i++ {
		aeb.wg.Add(1)
		go aeb.worker()
	}
}

// Stop delivers what is already queued, then stops the workers.
func (aeb *AsyncEventBus) Stop() {
	aeb.stopOnce.Do(func() {
		aeb.inflight.Wait()
		close(aeb.stopChan)
		aeb.wg.Wait()
	})
}

func (aeb *AsyncEventBus) worker() {
	defer aeb.wg.Done()

	for {
		select {
		case <-aeb.stopChan:
			return
		case event := <-aeb.workChan:
			aeb.deliver(event)
		}
	}
}

func (aeb *AsyncEventBus) deliver(event asyncEvent) {
	defer aeb.inflight.Done()
	defer func() {
		if r := recover(); r != nil {
			aeb.logger.ErrorTag("JOURNAL", "event handler panicked: topic=%s panic=%v", event.topic, r)
		}
	}()
	aeb.bus.Publish(event.topic, event.args...)
}

// Publish delivers synchronously on the caller's goroutine.
func (aeb *AsyncEventBus) Publish(topic string, args ...interface{}) {
	aeb.bus.Publish(topic, args...)
}

// PublishAsync queues the event and never blocks.
func (aeb *AsyncEventBus) PublishAsync(topic string, args ...interface{}) {
	aeb.inflight.Add(1)
	select {
	case aeb.workChan <- asyncEvent{topic: topic, args: args}:
	default:
		aeb.inflight.Done()
		n := aeb.dropped.Add(1)
		aeb.logger.WarnTag("JOURNAL", "event queue full, dropped topic=%s total_dropped=%d", topic, n)
	}
}

// Subscribe registers fn for topic. fn's parameters must match the
// published arguments.
func (aeb *AsyncEventBus) Subscribe(topic string, fn interface{}) error {
	return aeb.bus.Subscribe(topic, fn)
}

func (aeb *AsyncEventBus) Unsubscribe(topic string, handler interface{}) error {
	return aeb.bus.Unsubscribe(topic, handler)
}

func (aeb *AsyncEventBus) HasCallback(topic string) bool {
	return aeb.bus.HasCallback(topic)
}

// Dropped reports how many events were discarded because the queue was full.
func (aeb *AsyncEventBus) Dropped() int64 {
	return aeb.dropped.Load()
}

// Flush blocks until every queued event has been delivered.
func (aeb *AsyncEventBus) Flush() {
	aeb.inflight.Wait()
}
