package api

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus/hooks/test"

	"streamlet-api/domain"
)

type recordingPublisher struct {
	mu      sync.Mutex
	batches [][]domain.TodoEvent
	block   chan struct{}
	err     error
}

func (p *recordingPublisher) PublishEvents(ctx context.Context, events []domain.TodoEvent) error {
	if p.block != nil {
		select {
		case <-p.block:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.batches = append(p.batches, append([]domain.TodoEvent(nil), events...))
	return p.err
}

func (p *recordingPublisher) events() []domain.TodoEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []domain.TodoEvent
	for _, b := range p.batches {
		out = append(out, b...)
	}
	return out
}

func testEvent(kind string) domain.TodoEvent {
	return domain.TodoEvent{Type: kind, Todo: domain.Todo{ID: uuid.New(), Title: kind}}
}

func TestEventDispatcherPublishesAll(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &recordingPublisher{}
	d := newEventDispatcher(dispatcherConfig{
		workerCount:    2,
		bufferSize:     64,
		batchSize:      8,
		publishTimeout: time.Second,
		handoffTimeout: 50 * time.Millisecond,
	}, pub, logger)

	for i := 0; i < 20; i++ {
		d.Publish(testEvent(domain.TodoCreated))
	}
	d.Close()

	if got := len(pub.events()); got != 20 {
		t.Fatalf("expected 20 events, got %d", got)
	}
	published, dropped := d.Stats()
	if published != 20 || dropped != 0 {
		t.Fatalf("unexpected stats published=%d dropped=%d", published, dropped)
	}
	for _, b := range pub.batches {
		if len(b) > 8 {
			t.Fatalf("batch exceeds limit: %d", len(b))
		}
	}
}

func TestEventDispatcherDropsWhenSaturated(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &recordingPublisher{block: make(chan struct{})}
	d := newEventDispatcher(dispatcherConfig{
		workerCount:    1,
		bufferSize:     1,
		batchSize:      1,
		publishTimeout: time.Second,
		handoffTimeout: time.Millisecond,
	}, pub, logger)

	// one event held by the blocked worker, one in the buffer, the rest dropped
	for i := 0; i < 5; i++ {
		d.Publish(testEvent(domain.TodoUpdated))
		time.Sleep(5 * time.Millisecond)
	}
	close(pub.block)
	d.Close()

	_, dropped := d.Stats()
	if dropped == 0 {
		t.Fatal("expected dropped events")
	}
	warned := false
	for _, entry := range hook.AllEntries() {
		if entry.Message == "event buffer saturated; dropping event" {
			warned = true
		}
	}
	if !warned {
		t.Fatal("expected saturation warning")
	}
}

func TestEventDispatcherPublishAfterClose(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &recordingPublisher{}
	d := newEventDispatcher(dispatcherConfig{workerCount: 1, bufferSize: 4}, pub, logger)
	d.Close()
	d.Close()

	d.Publish(testEvent(domain.TodoDeleted))
	if _, dropped := d.Stats(); dropped != 1 {
		t.Fatalf("expected 1 dropped event, got %d", dropped)
	}
	if len(pub.events()) != 0 {
		t.Fatal("closed dispatcher must not publish")
	}
}

func TestEventDispatcherPublishError(t *testing.T) {
	logger, hook := test.NewNullLogger()
	pub := &recordingPublisher{err: errors.New("queue down")}
	d := newEventDispatcher(dispatcherConfig{workerCount: 1, bufferSize: 4, batchSize: 4}, pub, logger)
	d.Publish(testEvent(domain.TodoCreated))
	d.Close()

	if published, _ := d.Stats(); published != 0 {
		t.Fatalf("failed batches must not count as published, got %d", published)
	}
	if entry := hook.LastEntry(); entry == nil || entry.Level.String() != "error" {
		t.Fatalf("expected error log, got %#v", entry)
	}
}

func TestEventDispatcherAsServiceSink(t *testing.T) {
	logger, _ := test.NewNullLogger()
	pub := &recordingPublisher{}
	d := newEventDispatcher(dispatcherConfig{workerCount: 1, bufferSize: 16, batchSize: 4}, pub, logger)

	var sink domain.EventSink = d
	sink.Publish(testEvent(domain.TodoCreated))
	sink.Publish(testEvent(domain.TodoDeleted))
	d.Close()

	events := pub.events()
	if len(events) != 2 || events[0].Type != domain.TodoCreated || events[1].Type != domain.TodoDeleted {
		t.Fatalf("unexpected events %#v", events)
	}
}

func TestNewEventDispatcherRequiresPublisher(t *testing.T) {
	logger, _ := test.NewNullLogger()
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for nil publisher")
		}
	}()
	newEventDispatcher(dispatcherConfig{}, nil, logger)
}

func TestDispatcherConfigFromEnv(t *testing.T) {
	t.Setenv("EVENT_WORKERS", "7")
	t.Setenv("EVENT_BUFFER", "bogus")
	t.Setenv("EVENT_HANDOFF_TIMEOUT", "2ms")

	cfg := dispatcherConfigFromEnv()
	if cfg.workerCount != 7 {
		t.Fatalf("expected 7 workers, got %d", cfg.workerCount)
	}
	if cfg.bufferSize != 1024 {
		t.Fatalf("expected default buffer, got %d", cfg.bufferSize)
	}
	if cfg.handoffTimeout != 2*time.Millisecond {
		t.Fatalf("expected 2ms handoff, got %v", cfg.handoffTimeout)
	}
	if cfg.publishTimeout != 30*time.Second {
		t.Fatalf("expected default publish timeout, got %v", cfg.publishTimeout)
	}
}
