package knowledge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

const snapshotVersion = 1

// snapshotFile is the on-disk layout: per chunk the source tag, raw text,
// embedding vector and insertion timestamp/sequence.
type snapshotFile struct {
	Version   int       `json:"version"`
	Dimension int       `json:"dimension"`
	SavedAt   time.Time `json:"saved_at"`
	Chunks    []Chunk   `json:"chunks"`
}

// FileSnapshot persists the chunk set as a JSON file.
type FileSnapshot struct {
	Path string
}

func NewFileSnapshot(path string) *FileSnapshot {
	return &FileSnapshot{Path: path}
}

// Load reads the snapshot. A missing file is an empty store, not an error.
func (f *FileSnapshot) Load(ctx context.Context) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(f.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot %s: %w", f.Path, err)
	}

	var snap snapshotFile
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", f.Path, err)
	}
	if snap.Version != snapshotVersion {
		return nil, fmt.Errorf("snapshot %s: unsupported version %d", f.Path, snap.Version)
	}
	return snap.Chunks, nil
}

// Save writes to a temp file in the same directory and renames it over the
// target, so readers see either the old or the new snapshot.
func (f *FileSnapshot) Save(ctx context.Context, chunks []Chunk) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	snap := snapshotFile{
		Version: snapshotVersion,
		SavedAt: time.Now().UTC(),
		Chunks:  chunks,
	}
	if snap.Chunks == nil {
		snap.Chunks = []Chunk{}
	}
	if len(chunks) > 0 {
		snap.Dimension = len(chunks[0].Embedding)
	}

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}

	dir := filepath.Dir(f.Path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".knowledge-*.json")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp snapshot: %w", err)
	}
	if err := os.Rename(tmpName, f.Path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}
