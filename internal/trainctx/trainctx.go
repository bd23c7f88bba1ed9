// Package trainctx carries the run-scoped collaborators — seeded RNG,
// component-tagged logger, and recoverable-error counters — that training
// components receive explicitly instead of reaching for process-global
// state.
package trainctx

import (
	"math/rand"
	"sync"

	"github.com/rs/zerolog"

	"github.com/lox/chessrl/internal/chesserr"
)

// TrainingContext is the shared per-run context. The RNG and error counters
// are shared by every derived context; the logger is tagged per component.
type TrainingContext struct {
	RNG    *rand.Rand
	Logger zerolog.Logger
	Errors *ErrorCounts
}

// New builds a root context: one seeded RNG for the whole run, the given
// logger, and a fresh error-count table.
func New(seed int64, logger zerolog.Logger) *TrainingContext {
	return &TrainingContext{
		RNG:    rand.New(rand.NewSource(seed)),
		Logger: logger,
		Errors: NewErrorCounts(),
	}
}

// Component derives a context whose logger carries the component name; the
// RNG and error counters stay shared with the root.
func (c *TrainingContext) Component(name string) *TrainingContext {
	return &TrainingContext{
		RNG:    c.RNG,
		Logger: c.Logger.With().Str("component", name).Logger(),
		Errors: c.Errors,
	}
}

// ErrorCounts tallies recoverable errors by taxonomy kind. The owner resets
// it at cycle boundaries, so counts describe the current cycle only.
type ErrorCounts struct {
	mu     sync.Mutex
	counts map[chesserr.Kind]int
}

func NewErrorCounts() *ErrorCounts {
	return &ErrorCounts{counts: make(map[chesserr.Kind]int)}
}

// Record tallies one occurrence of kind.
func (e *ErrorCounts) Record(kind chesserr.Kind) {
	e.mu.Lock()
	e.counts[kind]++
	e.mu.Unlock()
}

// RecordError tallies err under its taxonomy kind; errors outside the
// taxonomy are not counted.
func (e *ErrorCounts) RecordError(err error) {
	if kind, ok := chesserr.KindOf(err); ok {
		e.Record(kind)
	}
}

// Count reports how many times kind has been recorded since the last Reset.
func (e *ErrorCounts) Count(kind chesserr.Kind) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.counts[kind]
}

// Reset clears every count. Called by the pipeline at cycle boundaries.
func (e *ErrorCounts) Reset() {
	e.mu.Lock()
	e.counts = make(map[chesserr.Kind]int)
	e.mu.Unlock()
}
