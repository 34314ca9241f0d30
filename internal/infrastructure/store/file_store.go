package store

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/baechuer/seatwatch/internal/domain"
)

// Mirror receives a copy of every successfully saved snapshot (e.g. an S3 backup).
type Mirror interface {
	Put(ctx context.Context, data []byte) error
}

// FileStore persists the RequestSet as one JSON document.
// Saves go through a temp file in the same directory followed by a rename, so a crash
// leaves either the old or the new document on disk.
type FileStore struct {
	path   string
	lg     zerolog.Logger
	mirror Mirror

	// rename is swapped in tests to simulate a crash before the live file is replaced.
	rename func(oldpath, newpath string) error

	// one uploader goroutine; only the newest unsent snapshot is kept
	mirrorMu   sync.Mutex
	pending    []byte
	closed     bool
	wake       chan struct{}
	mirrorDone chan struct{}
}

const defaultFileMode fs.FileMode = 0o644

func NewFileStore(path string, lg zerolog.Logger) *FileStore {
	return &FileStore{
		path:   path,
		lg:     lg.With().Str("component", "file_store").Logger(),
		rename: os.Rename,
	}
}

// WithMirror attaches a best-effort snapshot mirror and starts its uploader.
// Call Close to flush the last snapshot.
func (s *FileStore) WithMirror(m Mirror) *FileStore {
	s.mirror = m
	s.wake = make(chan struct{}, 1)
	s.mirrorDone = make(chan struct{})
	go s.runMirror()
	return s
}

// Close stops the mirror uploader after it has pushed the newest pending
// snapshot, or returns ctx's error if that takes too long.
func (s *FileStore) Close(ctx context.Context) error {
	if s.mirror == nil {
		return nil
	}
	s.mirrorMu.Lock()
	if !s.closed {
		s.closed = true
		close(s.wake)
	}
	s.mirrorMu.Unlock()

	select {
	case <-s.mirrorDone:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *FileStore) Path() string { return s.path }

// Load reads the document. A missing file is an empty set; anything unparseable is CorruptState.
func (s *FileStore) Load() (domain.RequestSet, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, fs.ErrNotExist) {
		s.lg.Info().Str("path", s.path).Msg("no state file yet, starting empty")
		return domain.RequestSet{}, nil
	}
	if err != nil {
		return domain.RequestSet{}, fmt.Errorf("read state file: %w", err)
	}

	set, err := decode(data)
	if err != nil {
		return domain.RequestSet{}, domain.ErrCorruptState(s.path, err)
	}
	s.lg.Info().Str("path", s.path).Int("requests", set.Len()).Msg("state loaded")
	return set, nil
}

// Save replaces the document atomically.
func (s *FileStore) Save(set domain.RequestSet) error {
	data, err := encode(set)
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}

	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}

	tmpFile, err := os.CreateTemp(dir, ".seatwatch-*.json.tmp")
	if err != nil {
		return fmt.Errorf("create temp state file: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		tmpFile.Close()
		return fmt.Errorf("write temp state file: %w", err)
	}
	if err := tmpFile.Chmod(s.fileMode()); err != nil {
		tmpFile.Close()
		return fmt.Errorf("chmod temp state file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		return fmt.Errorf("sync temp state file: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("close temp state file: %w", err)
	}
	if err := s.rename(tmpPath, s.path); err != nil {
		return fmt.Errorf("replace state file: %w", err)
	}
	success = true
	syncDir(dir)

	if s.mirror != nil {
		s.queueMirror(data)
	}
	return nil
}

// fileMode keeps the live file's permissions across saves. CreateTemp makes 0600 files.
func (s *FileStore) fileMode() fs.FileMode {
	if fi, err := os.Stat(s.path); err == nil {
		return fi.Mode().Perm()
	}
	return defaultFileMode
}

func (s *FileStore) queueMirror(data []byte) {
	s.mirrorMu.Lock()
	defer s.mirrorMu.Unlock()
	if s.closed {
		return
	}
	s.pending = data
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *FileStore) runMirror() {
	defer close(s.mirrorDone)
	for range s.wake {
		s.mirrorMu.Lock()
		data := s.pending
		s.pending = nil
		s.mirrorMu.Unlock()

		if data != nil {
			s.pushMirror(data)
		}
	}
}

func (s *FileStore) pushMirror(data []byte) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := s.mirror.Put(ctx, data); err != nil {
		s.lg.Warn().Err(err).Msg("state mirror failed (local save succeeded)")
	}
}

// syncDir flushes the rename itself; not every platform supports it, so errors are ignored.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

func decode(data []byte) (domain.RequestSet, error) {
	var top map[string]json.RawMessage
	if err := json.Unmarshal(data, &top); err != nil {
		return domain.RequestSet{}, err
	}
	if top == nil {
		return domain.RequestSet{}, errors.New("document is not a JSON object")
	}

	set := domain.RequestSet{}
	var raws []map[string]json.RawMessage
	if raw, ok := top[requestsKey]; ok && !bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		if err := json.Unmarshal(raw, &raws); err != nil {
			return domain.RequestSet{}, fmt.Errorf("requests: %w", err)
		}
	}
	delete(top, requestsKey)
	if len(top) > 0 {
		set.Extra = top
	}

	seen := make(map[string]bool, len(raws))
	for i, obj := range raws {
		b, _ := json.Marshal(obj)
		var rec record
		if err := json.Unmarshal(b, &rec); err != nil {
			return domain.RequestSet{}, fmt.Errorf("requests[%d]: %w", i, err)
		}
		r, err := fromRecord(rec)
		if err != nil {
			return domain.RequestSet{}, fmt.Errorf("requests[%d]: %w", i, err)
		}
		if seen[r.ID] {
			return domain.RequestSet{}, fmt.Errorf("requests[%d]: duplicate id %s", i, r.ID)
		}
		seen[r.ID] = true

		for k, v := range obj {
			if knownKeys[k] {
				continue
			}
			if r.Extra == nil {
				r.Extra = map[string]json.RawMessage{}
			}
			r.Extra[k] = v
		}
		set.Requests = append(set.Requests, r)
	}
	return set, nil
}

func encode(set domain.RequestSet) ([]byte, error) {
	objs := make([]map[string]json.RawMessage, 0, len(set.Requests))
	for _, r := range set.Requests {
		b, err := json.Marshal(toRecord(r))
		if err != nil {
			return nil, err
		}
		var obj map[string]json.RawMessage
		if err := json.Unmarshal(b, &obj); err != nil {
			return nil, err
		}
		for k, v := range r.Extra {
			if _, known := obj[k]; !known && !knownKeys[k] {
				obj[k] = v
			}
		}
		objs = append(objs, obj)
	}

	top := make(map[string]any, len(set.Extra)+1)
	for k, v := range set.Extra {
		top[k] = v
	}
	top[requestsKey] = objs

	out, err := json.MarshalIndent(top, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(out, '\n'), nil
}
