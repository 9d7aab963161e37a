package tracking

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ignite/engagement-tracker/internal/domain"
	"github.com/ignite/engagement-tracker/internal/metrics"
	"github.com/ignite/engagement-tracker/internal/pkg/logger"
	trackingsvc "github.com/ignite/engagement-tracker/internal/service/tracking"
)

// Recorder is the subset of *tracking.Recorder the sinks need.
type Recorder interface {
	Record(ctx context.Context, evt domain.EngagementEvent) (trackingsvc.Outcome, error)
}

// Dispatcher is an in-process EventSink: a bounded queue drained by a fixed
// pool of workers. When the queue is full new events are dropped.
type Dispatcher struct {
	rec     Recorder
	queue   chan domain.EngagementEvent
	workers int
	timeout time.Duration

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewDispatcher creates a dispatcher. timeout bounds each Record call.
func NewDispatcher(rec Recorder, workers, queueSize int, timeout time.Duration) *Dispatcher {
	if workers <= 0 {
		workers = 4
	}
	if queueSize <= 0 {
		queueSize = 1024
	}
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Dispatcher{
		rec:     rec,
		queue:   make(chan domain.EngagementEvent, queueSize),
		workers: workers,
		timeout: timeout,
	}
}

// Start launches the worker pool.
func (d *Dispatcher) Start() {
	for i := 0; i < d.workers; i++ {
		d.wg.Add(1)
		go d.work()
	}
	logger.Info("tracking dispatcher started", "workers", d.workers, "queue", cap(d.queue))
}

// Submit enqueues evt. It never blocks.
func (d *Dispatcher) Submit(evt domain.EngagementEvent) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		metrics.SinkDropped.WithLabelValues("dispatcher", "stopped").Inc()
		return
	}
	select {
	case d.queue <- evt:
	default:
		metrics.SinkDropped.WithLabelValues("dispatcher", "queue_full").Inc()
		logger.Warn("tracking queue full, event dropped", "kind", string(evt.Kind), "token", logger.RedactToken(evt.Token))
	}
}

// Stop rejects new events and waits for queued ones to be recorded.
func (d *Dispatcher) Stop() {
	d.mu.Lock()
	if !d.closed {
		d.closed = true
		close(d.queue)
	}
	d.mu.Unlock()
	d.wg.Wait()
}

func (d *Dispatcher) work() {
	defer d.wg.Done()
	for evt := range d.queue {
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		_, err := d.rec.Record(ctx, evt)
		cancel()
		if err != nil {
			if errors.Is(err, trackingsvc.ErrPersistence) {
				metrics.SinkDropped.WithLabelValues("dispatcher", "persistence").Inc()
			}
			logger.Error("tracking event not recorded", "kind", string(evt.Kind), "token", logger.RedactToken(evt.Token), "err", err)
		}
	}
}
