package api

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	log "github.com/sirupsen/logrus"

	"streamlet-api/domain"
)

type dispatcherConfig struct {
	workerCount    int
	bufferSize     int
	batchSize      int
	publishTimeout time.Duration
	handoffTimeout time.Duration
}

func dispatcherConfigFromEnv() dispatcherConfig {
	return dispatcherConfig{
		workerCount:    envInt("EVENT_WORKERS", 4),
		bufferSize:     envInt("EVENT_BUFFER", 1024),
		batchSize:      envInt("EVENT_BATCH", 16),
		publishTimeout: envDur("EVENT_TIMEOUT", 30*time.Second),
		handoffTimeout: envDur("EVENT_HANDOFF_TIMEOUT", 15*time.Millisecond),
	}
}

// EventDispatcher fans todo events out to a publisher on a fixed worker pool
// so request handlers never wait on the downstream queue.
type EventDispatcher struct {
	cfg       dispatcherConfig
	publisher EventPublisher
	logger    *log.Logger

	mu       sync.RWMutex
	closed   bool
	jobs     chan domain.TodoEvent
	workerWG sync.WaitGroup

	published atomic.Uint64
	dropped   atomic.Uint64
}

var _ domain.EventSink = (*EventDispatcher)(nil)

// NewEventDispatcher starts a dispatcher configured from EVENT_* variables.
func NewEventDispatcher(publisher EventPublisher, logger *log.Logger) *EventDispatcher {
	return newEventDispatcher(dispatcherConfigFromEnv(), publisher, logger)
}

func newEventDispatcher(cfg dispatcherConfig, publisher EventPublisher, logger *log.Logger) *EventDispatcher {
	if publisher == nil {
		panic("event publisher is required")
	}
	if logger == nil {
		panic("logger is required")
	}
	if cfg.workerCount <= 0 {
		cfg.workerCount = 1
	}
	if cfg.batchSize <= 0 {
		cfg.batchSize = 1
	}
	if cfg.bufferSize < 0 {
		cfg.bufferSize = 0
	}
	if cfg.publishTimeout <= 0 {
		cfg.publishTimeout = 30 * time.Second
	}

	d := &EventDispatcher{
		cfg:       cfg,
		publisher: publisher,
		logger:    logger,
		jobs:      make(chan domain.TodoEvent, cfg.bufferSize),
	}
	for i := 0; i < cfg.workerCount; i++ {
		d.workerWG.Add(1)
		go d.worker(i)
	}
	logger.Infof("event dispatcher started, workers: %d, buffer: %d, batch: %d, timeout: %v, handoff: %v",
		cfg.workerCount, cfg.bufferSize, cfg.batchSize, cfg.publishTimeout, cfg.handoffTimeout)
	return d
}

// Publish hands ev to a worker. Events are dropped, with a warning, when the
// buffer stays full for longer than the handoff timeout.
func (d *EventDispatcher) Publish(ev domain.TodoEvent) {
	if d.tryEnqueue(ev) {
		return
	}
	d.dropped.Add(1)
	d.logger.WithFields(log.Fields{"todo": ev.Todo.ID, "type": ev.Type}).Warn("event buffer saturated; dropping event")
}

// Close stops accepting events and waits for in-flight batches.
func (d *EventDispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	close(d.jobs)
	d.mu.Unlock()
	d.workerWG.Wait()
}

// Stats reports how many events were published and dropped.
func (d *EventDispatcher) Stats() (published, dropped uint64) {
	return d.published.Load(), d.dropped.Load()
}

func (d *EventDispatcher) worker(id int) {
	defer d.workerWG.Done()
	batch := make([]domain.TodoEvent, 0, d.cfg.batchSize)
	for ev := range d.jobs {
		batch = append(batch[:0], ev)
	drain:
		for len(batch) < d.cfg.batchSize {
			select {
			case next, ok := <-d.jobs:
				if !ok {
					break drain
				}
				batch = append(batch, next)
			default:
				break drain
			}
		}

		ctx, cancel := context.WithTimeout(context.Background(), d.cfg.publishTimeout)
		err := d.publisher.PublishEvents(ctx, batch)
		cancel()
		if err != nil {
			d.logger.Errorf("event publish failed, err: %v, count: %d, worker: %d", err, len(batch), id)
			continue
		}
		d.published.Add(uint64(len(batch)))
	}
}

func (d *EventDispatcher) tryEnqueue(ev domain.TodoEvent) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return false
	}

	if trySendNonBlocking(d.jobs, ev) {
		return true
	}
	if d.cfg.handoffTimeout <= 0 {
		return false
	}

	timer := time.NewTimer(d.cfg.handoffTimeout)
	defer timer.Stop()
	return sendWithTimer(d.jobs, ev, timer.C)
}

func trySendNonBlocking(ch chan<- domain.TodoEvent, ev domain.TodoEvent) bool {
	select {
	case ch <- ev:
		return true
	default:
		return false
	}
}

func sendWithTimer(ch chan<- domain.TodoEvent, ev domain.TodoEvent, timer <-chan time.Time) bool {
	select {
	case ch <- ev:
		return true
	case <-timer:
		return false
	}
}
