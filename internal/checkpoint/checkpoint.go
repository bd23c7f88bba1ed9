// Package checkpoint persists and restores trained network weights:
// versioned metadata sidecar JSON next to an opaque weights blob, written
// atomically via write-temp-then-rename, with best-checkpoint tracking and
// directory listing.
package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/lox/chessrl/internal/chesserr"
	"github.com/lox/chessrl/internal/network"
)

const formatVersion = 1

// DefaultBackend tags checkpoints produced by this module's sole concrete
// network.Trainable (internal/network.MLP, gob-encoded).
const DefaultBackend = "mlp-gob"

// weightsExt is the suffix used for the binary weights blob; the metadata
// sidecar always sits next to it as the same basename with .json appended.
const weightsExt = ".weights"

// Metadata is the sidecar JSON stored next to every checkpoint's weights
// blob.
type Metadata struct {
	Version      int       `json:"version"`
	CheckpointID string    `json:"checkpoint_id"`
	Cycle        int       `json:"cycle"`
	CreatedAt    time.Time `json:"created_at"`
	MeanReward   float64   `json:"mean_reward"`
	WinRate      float64   `json:"win_rate,omitempty"`
	// Performance is the primary metric (evaluation win rate, falling back
	// to average reward) used for best-checkpoint comparisons.
	Performance float64 `json:"performance"`
	IsBest      bool    `json:"is_best"`
	Description string  `json:"description,omitempty"`
	// BackendType names the concrete network.Trainable implementation that
	// produced Save()'s bytes, so Load can report an actionable mismatch
	// rather than a raw decode failure.
	BackendType string `json:"backend_type"`
}

func weightsPath(dir, name string) string  { return filepath.Join(dir, name+weightsExt) }
func metadataPath(dir, name string) string { return filepath.Join(dir, name+weightsExt+".json") }

// Save atomically writes net's weights and the given metadata under name
// within dir, creating dir if needed.
func Save(dir, name string, net network.Trainable, meta Metadata) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return chesserr.Wrap(chesserr.CheckpointError, "create checkpoint directory", err)
	}
	meta.Version = formatVersion
	if meta.CheckpointID == "" {
		meta.CheckpointID = uuid.NewString()
	}
	if meta.BackendType == "" {
		meta.BackendType = DefaultBackend
	}

	data, err := net.Save()
	if err != nil {
		return chesserr.Wrap(chesserr.CheckpointError, "serialize network weights", err)
	}
	if err := atomicWrite(weightsPath(dir, name), data); err != nil {
		return err
	}

	metaBytes, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return chesserr.Wrap(chesserr.CheckpointError, "encode checkpoint metadata", err)
	}
	if err := atomicWrite(metadataPath(dir, name), metaBytes); err != nil {
		return err
	}
	return nil
}

func atomicWrite(path string, data []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return chesserr.Wrap(chesserr.CheckpointError, "create temporary checkpoint file", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return chesserr.Wrap(chesserr.CheckpointError, "write temporary checkpoint file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return chesserr.Wrap(chesserr.CheckpointError, "close temporary checkpoint file", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return chesserr.Wrap(chesserr.CheckpointError, "rename checkpoint into place", err)
	}
	return nil
}

// Load restores net's weights from name within dir and returns the sidecar
// metadata. net must already have the correct architecture. When
// expectedBackend is given and does not match the checkpoint's recorded
// BackendType, Load fails with an actionable CheckpointError naming both the
// detected format and the backend the caller should have requested, rather
// than letting net.Load fail on an opaque decode error.
func Load(dir, name string, net network.Trainable, expectedBackend ...string) (Metadata, error) {
	var meta Metadata
	metaBytes, err := os.ReadFile(metadataPath(dir, name))
	if err != nil {
		return meta, chesserr.Wrap(chesserr.CheckpointError, "read checkpoint metadata", err)
	}
	if err := json.Unmarshal(metaBytes, &meta); err != nil {
		return meta, chesserr.Wrap(chesserr.CheckpointError, "decode checkpoint metadata", err)
	}
	if meta.Version != formatVersion {
		return meta, chesserr.New(chesserr.CheckpointError, fmt.Sprintf("unsupported checkpoint format version %d", meta.Version))
	}
	if len(expectedBackend) > 0 && expectedBackend[0] != "" && meta.BackendType != "" && meta.BackendType != expectedBackend[0] {
		return meta, chesserr.New(chesserr.CheckpointError, fmt.Sprintf(
			"checkpoint %q was saved with backend %q, not %q; load it with --backend=%s",
			name, meta.BackendType, expectedBackend[0], meta.BackendType))
	}

	data, err := os.ReadFile(weightsPath(dir, name))
	if err != nil {
		return meta, chesserr.Wrap(chesserr.CheckpointError, "read checkpoint weights", err)
	}
	if err := net.Load(data); err != nil {
		return meta, chesserr.Wrap(chesserr.CheckpointError, "load checkpoint weights into network", err)
	}
	return meta, nil
}

// SaveBest writes the checkpoint under the fixed name "best", overwriting
// any previous best.
func SaveBest(dir string, net network.Trainable, meta Metadata) error {
	return Save(dir, "best", net, meta)
}

// LoadBest restores the checkpoint saved by SaveBest.
func LoadBest(dir string, net network.Trainable) (Metadata, error) {
	return Load(dir, "best", net)
}

// Entry describes one checkpoint found by List.
type Entry struct {
	Name string
	Metadata
}

// List enumerates checkpoints in dir, sorted by cycle ascending.
func List(dir string) ([]Entry, error) {
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, chesserr.Wrap(chesserr.CheckpointError, "list checkpoint directory", err)
	}

	var entries []Entry
	for _, f := range files {
		if f.IsDir() || !strings.HasSuffix(f.Name(), weightsExt) {
			continue
		}
		name := strings.TrimSuffix(f.Name(), weightsExt)
		metaBytes, err := os.ReadFile(metadataPath(dir, name))
		if err != nil {
			continue
		}
		var meta Metadata
		if err := json.Unmarshal(metaBytes, &meta); err != nil {
			continue
		}
		entries = append(entries, Entry{Name: name, Metadata: meta})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Cycle < entries[j].Cycle })
	return entries, nil
}
