package index

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// Snapshot is the on-disk form of a memory index: the entry set plus enough
// metadata to decide whether it can be reused.
type Snapshot struct {
	Dimensions int       `json:"dimensions"`
	SavedAt    time.Time `json:"saved_at"`
	Entries    []Entry   `json:"entries"`
}

// SaveSnapshot writes the index contents to path as JSON. The file is written
// to a temp sibling and renamed into place so a crash mid-write never leaves
// a truncated snapshot.
func SaveSnapshot(ctx context.Context, idx Index, path string) error {
	entries, err := idx.All(ctx)
	if err != nil {
		return fmt.Errorf("index: snapshot read: %w", err)
	}
	snap := Snapshot{SavedAt: time.Now().UTC(), Entries: entries}
	if len(entries) > 0 {
		snap.Dimensions = len(entries[0].Embedding)
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("index: snapshot encode: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("index: snapshot dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("index: snapshot temp: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("index: snapshot write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("index: snapshot close: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("index: snapshot rename: %w", err)
	}
	return nil
}

// LoadSnapshot reads a snapshot from path and loads it into idx. A missing
// file is not an error: the index is left empty and ok is false.
func LoadSnapshot(ctx context.Context, idx Index, path string) (ok bool, err error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("index: snapshot read %q: %w", path, err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return false, fmt.Errorf("index: snapshot decode %q: %w", path, err)
	}
	if err := idx.Replace(ctx, snap.Entries); err != nil {
		return false, fmt.Errorf("index: snapshot load: %w", err)
	}
	return true, nil
}
