package snapshot

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"npcchat/dialogue"
)

// FileLoader reads the dataset from a JSON or YAML file. The file holds either
// a list of entries or an object {"version": ..., "entries": [...]}.
type FileLoader struct {
	Path string
}

type fileDocument struct {
	Version string `json:"version" yaml:"version"`
	Entries []any  `json:"entries" yaml:"entries"`
}

func NewFileLoader(path string) *FileLoader {
	return &FileLoader{Path: filepath.Clean(path)}
}

func (l *FileLoader) Fetch(ctx context.Context) (*dialogue.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}

	var snap *dialogue.Snapshot
	switch strings.ToLower(filepath.Ext(l.Path)) {
	case ".yaml", ".yml":
		snap, err = decodeYAML(data)
	case ".json", "":
		snap, err = decodeJSON(data)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", filepath.Ext(l.Path))
	}
	if err != nil {
		return nil, fmt.Errorf("parse dataset %s: %w", l.Path, err)
	}
	if snap.Version == "" {
		snap.Version = contentVersion(data)
	}
	return snap, nil
}

func (l *FileLoader) Close() error { return nil }

func decodeJSON(data []byte) (*dialogue.Snapshot, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []any
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return nil, err
		}
		return &dialogue.Snapshot{Records: toRecords(items)}, nil
	}
	var doc fileDocument
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, err
	}
	return &dialogue.Snapshot{Version: doc.Version, Records: toRecords(doc.Entries)}, nil
}

func decodeYAML(data []byte) (*dialogue.Snapshot, error) {
	var root any
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, err
	}
	switch t := root.(type) {
	case []any:
		return &dialogue.Snapshot{Records: toRecords(t)}, nil
	case map[string]any:
		var doc fileDocument
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, err
		}
		return &dialogue.Snapshot{Version: doc.Version, Records: toRecords(doc.Entries)}, nil
	case nil:
		return &dialogue.Snapshot{}, nil
	default:
		return nil, fmt.Errorf("unexpected top-level %T", root)
	}
}

// MemoryLoader serves a fixed snapshot.
type MemoryLoader struct {
	Snapshot dialogue.Snapshot
}

func (l *MemoryLoader) Fetch(_ context.Context) (*dialogue.Snapshot, error) {
	snap := l.Snapshot
	return &snap, nil
}

func (l *MemoryLoader) Close() error { return nil }
