// Package jsonfile persists the download queue as a single JSON document.
package jsonfile

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/comicaholic/genai-studio/internal/logctx"
	"github.com/comicaholic/genai-studio/internal/queue"
)

const (
	dirPerm  = 0o755
	filePerm = 0o644
)

type document struct {
	Downloads []queue.Item `json:"downloads"`
}

// Store reads and writes {"downloads": [...]} at path. Saves go through a temp file in the
// same directory that is synced and renamed over the target.
type Store struct {
	path string

	rename func(oldpath, newpath string) error
	remove func(name string) error
}

// New returns a store for the document at path. Nothing is touched until the first call.
func New(path string) *Store {
	return &Store{
		path:   path,
		rename: os.Rename,
		remove: os.Remove,
	}
}

// Path returns the document location.
func (s *Store) Path() string {
	return s.path
}

// Save replaces the document with items. When the atomic rename is not possible it degrades
// to remove-then-rename and finally to writing the target in place, logging each step.
func (s *Store) Save(ctx context.Context, items []queue.Item) error {
	logger := logctx.LoggerFromContext(ctx)

	if items == nil {
		items = []queue.Item{}
	}

	data, err := json.MarshalIndent(document{Downloads: items}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode queue: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return fmt.Errorf("failed to create queue directory: %w", err)
	}

	tmpName, err := s.writeTemp(dir, data)
	if err != nil {
		logger.Warn("failed to stage queue file, writing in place", "path", s.path, "err", err)

		return s.writeDirect(data)
	}

	err = s.rename(tmpName, s.path)
	if err == nil {
		return nil
	}

	logger.Warn("failed to replace queue file atomically, removing target first", "path", s.path, "err", err)

	if rmErr := s.remove(s.path); rmErr != nil && !errors.Is(rmErr, fs.ErrNotExist) {
		logger.Warn("failed to remove queue file, writing in place", "path", s.path, "err", rmErr)
	} else if err := s.rename(tmpName, s.path); err != nil {
		logger.Warn("failed to move staged queue file, writing in place", "path", s.path, "err", err)
	} else {
		return nil
	}

	_ = os.Remove(tmpName)

	return s.writeDirect(data)
}

func (s *Store) writeTemp(dir string, data []byte) (string, error) {
	tmp, err := os.CreateTemp(dir, s.tempPattern())
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}

	name := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(name)

		return "", fmt.Errorf("failed to write temp file: %w", err)
	}

	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(name)

		return "", fmt.Errorf("failed to sync temp file: %w", err)
	}

	if err := tmp.Close(); err != nil {
		os.Remove(name)

		return "", fmt.Errorf("failed to close temp file: %w", err)
	}

	return name, nil
}

func (s *Store) writeDirect(data []byte) error {
	if err := os.WriteFile(s.path, data, filePerm); err != nil {
		return fmt.Errorf("failed to write queue file: %w", err)
	}

	return nil
}

func (s *Store) tempPattern() string {
	return filepath.Base(s.path) + ".*.tmp"
}

// Load returns the persisted items. A missing, empty or unparsable document yields an empty
// queue; only read errors are returned.
func (s *Store) Load(ctx context.Context) ([]queue.Item, error) {
	logger := logctx.LoggerFromContext(ctx)

	s.removeStaleTemps(ctx)

	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		return []queue.Item{}, nil
	}

	if err != nil {
		return nil, fmt.Errorf("failed to read queue file: %w", err)
	}

	if len(bytes.TrimSpace(data)) == 0 {
		logger.Warn("queue file is empty, starting with an empty queue", "path", s.path)

		return []queue.Item{}, nil
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		logger.Warn("queue file is corrupt, starting with an empty queue", "path", s.path, "err", err)

		return []queue.Item{}, nil
	}

	if doc.Downloads == nil {
		return []queue.Item{}, nil
	}

	return doc.Downloads, nil
}

// removeStaleTemps deletes temp files left behind by an interrupted Save.
func (s *Store) removeStaleTemps(ctx context.Context) {
	matches, err := filepath.Glob(filepath.Join(filepath.Dir(s.path), s.tempPattern()))
	if err != nil {
		return
	}

	for _, m := range matches {
		if err := os.Remove(m); err == nil {
			logctx.LoggerFromContext(ctx).Debug("removed stale queue temp file", "path", m)
		}
	}
}
