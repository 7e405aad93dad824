package http

import (
	"sync"

	"trivia-room-service/internal/domain"
)

const sinkBuffer = 64

// connSink queues outbound events for one connection's writer goroutine. Send never blocks: when
// the queue is full the oldest event is discarded. The out channel is never closed so room
// actors can keep sending after the connection is gone.
type connSink struct {
	out  chan domain.Event
	done chan struct{}
	once sync.Once
}

func newConnSink(size int) *connSink {
	return &connSink{
		out:  make(chan domain.Event, size),
		done: make(chan struct{}),
	}
}

func (s *connSink) Send(ev domain.Event) {
	select {
	case <-s.done:
		return
	default:
	}
	for {
		select {
		case s.out <- ev:
			return
		default:
		}
		select {
		case <-s.out:
		default:
		}
	}
}

func (s *connSink) close() {
	s.once.Do(func() { close(s.done) })
}
