package trainctx_test

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/trainctx"
)

func TestComponentSharesRNGAndErrors(t *testing.T) {
	root := trainctx.New(1, zerolog.Nop())
	child := root.Component("selfplay")

	require.Same(t, root.RNG, child.RNG)
	require.Same(t, root.Errors, child.Errors)

	child.Errors.Record(chesserr.WorkerError)
	require.Equal(t, 1, root.Errors.Count(chesserr.WorkerError))
}

func TestErrorCountsRecordAndReset(t *testing.T) {
	counts := trainctx.NewErrorCounts()
	counts.Record(chesserr.CheckpointError)
	counts.Record(chesserr.CheckpointError)
	counts.Record(chesserr.WorkerError)
	require.Equal(t, 2, counts.Count(chesserr.CheckpointError))
	require.Equal(t, 1, counts.Count(chesserr.WorkerError))

	counts.Reset()
	require.Zero(t, counts.Count(chesserr.CheckpointError))
	require.Zero(t, counts.Count(chesserr.WorkerError))
}

func TestRecordErrorClassifiesWrappedKinds(t *testing.T) {
	counts := trainctx.NewErrorCounts()

	inner := chesserr.New(chesserr.EngineError, "bad FEN")
	counts.RecordError(fmt.Errorf("loading position: %w", inner))
	require.Equal(t, 1, counts.Count(chesserr.EngineError))

	// Errors outside the taxonomy are not counted.
	counts.RecordError(fmt.Errorf("plain error"))
	require.Zero(t, counts.Count(chesserr.WorkerError))
}
