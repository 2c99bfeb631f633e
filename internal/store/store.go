package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"dhtprobe/internal/model"
)

// ErrCorruptStore means a snapshot exists but cannot be parsed. Proceeding
// without trusted prior state would silently discard probe history, so
// callers treat this as fatal.
var ErrCorruptStore = errors.New("store: snapshot is corrupt")

// Store persists the full probe record set, keyed by record key. Save
// replaces the previous snapshot as a whole; there is no partial write.
type Store interface {
	Load(ctx context.Context) (map[string]model.ProbeRecord, error)
	Save(ctx context.Context, records map[string]model.ProbeRecord) error
}

// Open selects a backend for the given location: an http(s) URL gets the
// remote snapshot endpoint, anything else is a local file path.
func Open(location string) Store {
	if strings.HasPrefix(location, "http://") || strings.HasPrefix(location, "https://") {
		return NewHTTPStore(location)
	}
	return &FileStore{Path: location}
}

// FileStore keeps the snapshot as a single JSON document on disk.
type FileStore struct {
	Path string
}

// Load reads the snapshot. A missing file is an empty store.
func (s *FileStore) Load(ctx context.Context) (map[string]model.ProbeRecord, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]model.ProbeRecord{}, nil
		}
		return nil, err
	}
	return decodeSnapshot(data)
}

// Save writes the full snapshot atomically: a temp file in the same
// directory is renamed over the old snapshot, so a concurrent reader sees
// either the previous version or the new one, never a partial write.
func (s *FileStore) Save(ctx context.Context, records map[string]model.ProbeRecord) error {
	data, err := encodeSnapshot(records)
	if err != nil {
		return err
	}

	dir := filepath.Dir(s.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, filepath.Base(s.Path)+".tmp-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		os.Remove(tmp.Name())
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

func decodeSnapshot(data []byte) (map[string]model.ProbeRecord, error) {
	var records map[string]model.ProbeRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptStore, err)
	}
	if records == nil {
		records = map[string]model.ProbeRecord{}
	}
	return records, nil
}

func encodeSnapshot(records map[string]model.ProbeRecord) ([]byte, error) {
	if records == nil {
		records = map[string]model.ProbeRecord{}
	}
	return json.Marshal(records)
}
