package selfplay

import (
	"sync"

	"github.com/lox/chessrl/internal/experience"
	"github.com/lox/chessrl/internal/replay"
)

// BufferSink adapts a replay.Buffer (not safe for concurrent writers on its
// own) into a concurrency-safe Sink for the worker pool.
type BufferSink struct {
	mu  sync.Mutex
	buf replay.Buffer
}

var _ Sink = (*BufferSink)(nil)

func NewBufferSink(buf replay.Buffer) *BufferSink {
	return &BufferSink{buf: buf}
}

func (s *BufferSink) AddTransition(t experience.Transition) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf.Add(t)
}
