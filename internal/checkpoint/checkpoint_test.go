package checkpoint_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lox/chessrl/internal/checkpoint"
	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/codec"
	"github.com/lox/chessrl/internal/network"
)

func widths() []int { return []int{codec.FeatureSize, 8, codec.ActionSpaceSize} }

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	src := network.NewMLP(widths(), 0.01, 1)

	meta := checkpoint.Metadata{Cycle: 5, CreatedAt: time.Now(), MeanReward: 0.42}
	require.NoError(t, checkpoint.Save(dir, "cycle-5", src, meta))

	dst := network.NewMLP(widths(), 0.01, 2)
	loaded, err := checkpoint.Load(dir, "cycle-5", dst)
	require.NoError(t, err)
	require.Equal(t, 5, loaded.Cycle)
	require.Equal(t, 0.42, loaded.MeanReward)

	in := [][]float64{make([]float64, codec.FeatureSize)}
	srcOut, _ := src.Forward(in)
	dstOut, _ := dst.Forward(in)
	require.Equal(t, srcOut, dstOut)
}

func TestLoadMissingCheckpointErrors(t *testing.T) {
	dir := t.TempDir()
	dst := network.NewMLP(widths(), 0.01, 1)
	_, err := checkpoint.Load(dir, "does-not-exist", dst)
	require.Error(t, err)
	require.True(t, chesserr.As(err, chesserr.CheckpointError))
}

func TestBestTrackingAndList(t *testing.T) {
	dir := t.TempDir()
	net := network.NewMLP(widths(), 0.01, 1)

	require.NoError(t, checkpoint.Save(dir, "cycle-1", net, checkpoint.Metadata{Cycle: 1}))
	require.NoError(t, checkpoint.Save(dir, "cycle-2", net, checkpoint.Metadata{Cycle: 2}))
	require.NoError(t, checkpoint.SaveBest(dir, net, checkpoint.Metadata{Cycle: 2, MeanReward: 0.9}))

	entries, err := checkpoint.List(dir)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	require.Equal(t, 1, entries[0].Cycle)

	best, err := checkpoint.LoadBest(dir, network.NewMLP(widths(), 0.01, 3))
	require.NoError(t, err)
	require.Equal(t, 0.9, best.MeanReward)
}

func TestListOnMissingDirectoryReturnsEmpty(t *testing.T) {
	entries, err := checkpoint.List("/nonexistent/path/for/test")
	require.NoError(t, err)
	require.Empty(t, entries)
}

func TestSaveFillsCheckpointIDAndBackendType(t *testing.T) {
	dir := t.TempDir()
	net := network.NewMLP(widths(), 0.01, 1)
	require.NoError(t, checkpoint.Save(dir, "cycle-1", net, checkpoint.Metadata{Cycle: 1}))

	loaded, err := checkpoint.Load(dir, "cycle-1", network.NewMLP(widths(), 0.01, 2))
	require.NoError(t, err)
	require.NotEmpty(t, loaded.CheckpointID)
	require.Equal(t, checkpoint.DefaultBackend, loaded.BackendType)
}

func TestLoadRejectsBackendMismatch(t *testing.T) {
	dir := t.TempDir()
	net := network.NewMLP(widths(), 0.01, 1)
	require.NoError(t, checkpoint.Save(dir, "cycle-1", net, checkpoint.Metadata{Cycle: 1}))

	_, err := checkpoint.Load(dir, "cycle-1", network.NewMLP(widths(), 0.01, 2), "some-other-backend")
	require.Error(t, err)
	require.True(t, chesserr.As(err, chesserr.CheckpointError))
}
