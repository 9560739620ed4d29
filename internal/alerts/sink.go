package alerts

import (
	"sync"

	"github.com/banshee-data/area-monitor/internal/monitoring"
)

// Sink receives every alert the engine fires. Storage and notification
// collaborators implement it.
type Sink interface {
	RecordAlert(a Alert) error
}

// Acknowledger is implemented by sinks that persist acknowledgement.
type Acknowledger interface {
	AcknowledgeAlert(id string) error
}

// SinkFunc adapts a function to the Sink interface.
type SinkFunc func(a Alert) error

func (f SinkFunc) RecordAlert(a Alert) error { return f(a) }

type sinkEvent struct {
	alert Alert
	ackID string
}

// AsyncSink decouples a slow sink (for example a database) from frame
// processing. Events are queued on a bounded channel and delivered by a
// single goroutine; when the queue is full the event is dropped and
// counted.
type AsyncSink struct {
	inner Sink
	queue chan sinkEvent
	done  chan struct{}

	mu      sync.Mutex
	dropped int64
	closed  bool
}

// NewAsyncSink starts the delivery goroutine. Close must be called to
// flush and stop it.
func NewAsyncSink(inner Sink, buffer int) *AsyncSink {
	if buffer < 1 {
		buffer = 1
	}
	s := &AsyncSink{
		inner: inner,
		queue: make(chan sinkEvent, buffer),
		done:  make(chan struct{}),
	}
	go s.run()
	return s
}

func (s *AsyncSink) run() {
	defer close(s.done)
	for ev := range s.queue {
		if ev.ackID != "" {
			if ack, ok := s.inner.(Acknowledger); ok {
				if err := ack.AcknowledgeAlert(ev.ackID); err != nil {
					monitoring.Logf("alert sink: acknowledge %s: %v", ev.ackID, err)
				}
			}
			continue
		}
		if err := s.inner.RecordAlert(ev.alert); err != nil {
			monitoring.Logf("alert sink: record %s: %v", ev.alert.ID, err)
		}
	}
}

// RecordAlert queues a without blocking.
func (s *AsyncSink) RecordAlert(a Alert) error {
	s.enqueue(sinkEvent{alert: a})
	return nil
}

// AcknowledgeAlert queues an acknowledgement without blocking.
func (s *AsyncSink) AcknowledgeAlert(id string) error {
	s.enqueue(sinkEvent{ackID: id})
	return nil
}

func (s *AsyncSink) enqueue(ev sinkEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		s.dropped++
		return
	}
	select {
	case s.queue <- ev:
	default:
		s.dropped++
	}
}

// Dropped returns the number of events discarded because the queue was
// full or the sink was closed.
func (s *AsyncSink) Dropped() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close stops accepting events and waits for queued ones to be delivered.
func (s *AsyncSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.queue)
	}
	s.mu.Unlock()
	<-s.done
}
