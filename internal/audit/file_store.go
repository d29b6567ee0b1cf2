// Storeguard - Storefront Authentication and Session Security
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/storeguard

package audit

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/goccy/go-json"

	"github.com/tomtom215/storeguard/internal/logging"
)

// archiveTimeFormat is the suffix layout of rotated files: security.log.2026-03-01-10-15-00
const archiveTimeFormat = "2006-01-02-15-04-05"

// maxLineSize bounds a single record when reading back.
const maxLineSize = 1 << 20

// Store persists audit events.
type Store interface {
	Append(event *Event) error
	Recent(n int) ([]Event, error)
}

// FileConfig configures a FileStore.
type FileConfig struct {
	// Path of the live log file. Archives are written next to it.
	Path string

	// MaxSize is the size in bytes at which the live file is rotated
	// before the next write. Default: 10 MiB
	MaxSize int64

	// Retention is the number of rotated archives kept. Default: 5
	Retention int
}

// FileStore is a JSON-lines Store with size-based rotation.
// All writes and reads are serialized by one mutex, and each record is
// written with a single O_APPEND write, so lines never interleave.
type FileStore struct {
	path      string
	maxSize   int64
	retention int

	mu  sync.Mutex
	now func() time.Time
}

// NewFileStore creates the log directory if needed and returns a FileStore.
func NewFileStore(cfg FileConfig) (*FileStore, error) {
	if cfg.Path == "" {
		return nil, errors.New("audit log path is required")
	}
	if cfg.MaxSize <= 0 {
		cfg.MaxSize = 10 * 1024 * 1024
	}
	if cfg.Retention <= 0 {
		cfg.Retention = 5
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Path), 0o750); err != nil {
		return nil, fmt.Errorf("create audit log directory: %w", err)
	}

	return &FileStore{
		path:      cfg.Path,
		maxSize:   cfg.MaxSize,
		retention: cfg.Retention,
		now:       time.Now,
	}, nil
}

// Append writes one event as a single line, rotating first if the live
// file has reached MaxSize.
func (s *FileStore) Append(event *Event) error {
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	line = append(line, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.rotateIfNeeded(); err != nil {
		// A failed rotation must not lose the event; keep appending to the
		// live file and try again on the next write.
		logging.Err(err).Str("path", s.path).Msg("Audit log rotation failed")
	}

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o640)
	if err != nil {
		return fmt.Errorf("open audit log: %w", err)
	}
	if _, err := f.Write(line); err != nil {
		_ = f.Close()
		return fmt.Errorf("write audit log: %w", err)
	}
	return f.Close()
}

// rotateIfNeeded must be called with mu held.
func (s *FileStore) rotateIfNeeded() error {
	info, err := os.Stat(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("stat audit log: %w", err)
	}
	if info.Size() < s.maxSize {
		return nil
	}

	archive := s.path + "." + s.now().Format(archiveTimeFormat)
	for i := 1; fileExists(archive); i++ {
		archive = fmt.Sprintf("%s.%s.%03d", s.path, s.now().Format(archiveTimeFormat), i)
	}

	if err := os.Rename(s.path, archive); err != nil {
		return fmt.Errorf("rotate audit log: %w", err)
	}
	logging.Info().Str("archive", archive).Int64("size", info.Size()).Msg("Audit log rotated")

	return s.prune()
}

// prune removes the oldest archives beyond the retention count.
func (s *FileStore) prune() error {
	archives, err := s.archives()
	if err != nil {
		return err
	}
	if len(archives) <= s.retention {
		return nil
	}

	for _, old := range archives[:len(archives)-s.retention] {
		if err := os.Remove(old); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("prune audit archive: %w", err)
		}
		logging.Debug().Str("archive", old).Msg("Audit archive pruned")
	}
	return nil
}

// archives returns rotated files oldest first. The timestamp suffix sorts
// lexically in creation order.
func (s *FileStore) archives() ([]string, error) {
	matches, err := filepath.Glob(globEscape(s.path) + ".*")
	if err != nil {
		return nil, fmt.Errorf("list audit archives: %w", err)
	}

	prefix := s.path + "."
	archives := matches[:0]
	for _, m := range matches {
		if strings.HasPrefix(m, prefix) && isArchiveSuffix(strings.TrimPrefix(m, prefix)) {
			archives = append(archives, m)
		}
	}
	sort.Strings(archives)
	return archives, nil
}

// Recent returns up to n events, newest first. It reads the live file and,
// when that holds fewer than n records, continues into archives from newest
// to oldest. Unparseable lines are skipped.
func (s *FileStore) Recent(n int) ([]Event, error) {
	if n <= 0 {
		return []Event{}, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	archives, err := s.archives()
	if err != nil {
		return nil, err
	}
	files := make([]string, 0, len(archives)+1)
	files = append(files, s.path)
	for i := len(archives) - 1; i >= 0; i-- {
		files = append(files, archives[i])
	}

	events := make([]Event, 0, n)
	for _, path := range files {
		tail, err := readTail(path, n-len(events))
		if err != nil {
			return nil, err
		}
		for i := len(tail) - 1; i >= 0; i-- {
			events = append(events, tail[i])
		}
		if len(events) >= n {
			break
		}
	}
	return events, nil
}

// readTail returns the last n parseable events of a file in file order.
func readTail(path string, n int) ([]Event, error) {
	if n <= 0 {
		return nil, nil
	}
	f, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("open audit log: %w", err)
	}
	defer func() { _ = f.Close() }()

	// ring holds the newest n events; next is the slot the following event
	// overwrites once the ring is full.
	ring := make([]Event, 0, n)
	next := 0
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		var ev Event
		if err := json.Unmarshal(scanner.Bytes(), &ev); err != nil {
			continue
		}
		if len(ring) < n {
			ring = append(ring, ev)
			continue
		}
		ring[next] = ev
		next = (next + 1) % n
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read audit log: %w", err)
	}
	if next == 0 {
		return ring, nil
	}
	ordered := make([]Event, 0, len(ring))
	ordered = append(ordered, ring[next:]...)
	return append(ordered, ring[:next]...), nil
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

// isArchiveSuffix matches "2006-01-02-15-04-05" optionally followed by ".NNN".
func isArchiveSuffix(suffix string) bool {
	stamp, _, _ := strings.Cut(suffix, ".")
	_, err := time.Parse(archiveTimeFormat, stamp)
	return err == nil
}

func globEscape(path string) string {
	r := strings.NewReplacer("*", `\*`, "?", `\?`, "[", `\[`)
	return r.Replace(path)
}
