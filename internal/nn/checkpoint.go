package nn

import (
	"encoding/gob"
	"fmt"
	"os"
	"path/filepath"
)

// checkpointEntry is the on-disk form of one weight tensor.
type checkpointEntry struct {
	Name  string
	Shape []int
	Data  []float32
}

// SaveCheckpoint writes the weights to path as a gob stream, creating parent
// directories as needed.
func SaveCheckpoint(path string, weights []*Weight) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create checkpoint directory: %w", err)
		}
	}

	entries := make([]checkpointEntry, 0, len(weights))
	for _, w := range weights {
		data := w.Value.Data().([]float32)
		entry := checkpointEntry{
			Name:  w.Name,
			Shape: append([]int(nil), w.Value.Shape()...),
			Data:  make([]float32, len(data)),
		}
		copy(entry.Data, data)
		entries = append(entries, entry)
	}

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create checkpoint %s: %w", path, err)
	}
	defer f.Close()

	if err := gob.NewEncoder(f).Encode(entries); err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}
	return nil
}

// LoadCheckpoint restores weights in place from a checkpoint written by
// SaveCheckpoint. Every weight must be present with a matching shape.
func LoadCheckpoint(path string, weights []*Weight) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open checkpoint %s: %w", path, err)
	}
	defer f.Close()

	var entries []checkpointEntry
	if err := gob.NewDecoder(f).Decode(&entries); err != nil {
		return fmt.Errorf("decode checkpoint %s: %w", path, err)
	}

	byName := make(map[string]checkpointEntry, len(entries))
	for _, entry := range entries {
		byName[entry.Name] = entry
	}

	for _, w := range weights {
		entry, ok := byName[w.Name]
		if !ok {
			return fmt.Errorf("checkpoint %s is missing weight %s", path, w.Name)
		}
		if !shapeEqual(entry.Shape, w.Value.Shape()) {
			return fmt.Errorf("checkpoint weight %s has shape %v, want %v", w.Name, entry.Shape, w.Value.Shape())
		}
		dst := w.Value.Data().([]float32)
		if len(entry.Data) != len(dst) {
			return fmt.Errorf("checkpoint weight %s has %d values, want %d", w.Name, len(entry.Data), len(dst))
		}
		copy(dst, entry.Data)
	}
	return nil
}

func shapeEqual(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
