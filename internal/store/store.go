// Package store is the flat file directory shared by all sessions.
package store

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/danmuck/fxchange/internal/protocol"
)

const maxNameLen = 255

// Store addresses files by bare name inside one root directory.
type Store struct {
	root  string
	locks *nameLocks
}

// New opens root, creating it when missing.
func New(root string) (*Store, error) {
	resolved := strings.TrimSpace(root)
	if resolved == "" {
		return nil, fmt.Errorf("store: root is required")
	}
	abs, err := filepath.Abs(resolved)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, fmt.Errorf("store: create root %s: %w", abs, err)
	}
	return &Store{root: abs, locks: newNameLocks()}, nil
}

func (s *Store) Root() string { return s.root }

// ValidateName accepts a single path element that can travel as one command
// argument: no separators, no dot segments, no whitespace or control bytes.
func ValidateName(name string) error {
	switch {
	case name == "", name == ".", name == "..":
		return fmt.Errorf("%w: %q", protocol.ErrInvalidFileName, name)
	case name == protocol.StatusError:
		return fmt.Errorf("%w: %q collides with the error status", protocol.ErrInvalidFileName, name)
	case len(name) > maxNameLen:
		return fmt.Errorf("%w: name longer than %d bytes", protocol.ErrInvalidFileName, maxNameLen)
	case strings.ContainsAny(name, `/\`):
		return fmt.Errorf("%w: %q contains a path separator", protocol.ErrInvalidFileName, name)
	case filepath.IsAbs(name) || filepath.VolumeName(name) != "":
		return fmt.Errorf("%w: %q is absolute", protocol.ErrInvalidFileName, name)
	}
	for _, r := range name {
		if unicode.IsSpace(r) || unicode.IsControl(r) {
			return fmt.Errorf("%w: %q contains whitespace or control characters", protocol.ErrInvalidFileName, name)
		}
	}
	return nil
}

// List returns the sorted names of regular files that are addressable over the wire.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("store: list %s: %w", s.root, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		if ValidateName(e.Name()) != nil {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)
	return names, nil
}

// Open returns a reader for name and its size. The name stays share-locked
// until the reader is closed.
func (s *Store) Open(name string) (io.ReadCloser, int64, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, 0, err
	}
	release, ok := s.locks.acquire(name, false)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s is being written", protocol.ErrFileBusy, name)
	}
	f, err := os.Open(p)
	if err != nil {
		release()
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, fmt.Errorf("%w: %s", protocol.ErrFileNotFound, name)
		}
		return nil, 0, fmt.Errorf("%w: %s: %w", protocol.ErrFileNotFound, name, err)
	}
	info, err := f.Stat()
	if err != nil || !info.Mode().IsRegular() {
		_ = f.Close()
		release()
		return nil, 0, fmt.Errorf("%w: %s is not a regular file", protocol.ErrFileNotFound, name)
	}
	return &lockedFile{File: f, release: release}, info.Size(), nil
}

// Create truncates or creates name for writing. The name stays exclusively
// locked until the writer is closed; partial content is kept on disk.
func (s *Store) Create(name string) (io.WriteCloser, error) {
	p, err := s.resolve(name)
	if err != nil {
		return nil, err
	}
	release, ok := s.locks.acquire(name, true)
	if !ok {
		return nil, fmt.Errorf("%w: %s is in use", protocol.ErrFileBusy, name)
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		release()
		return nil, fmt.Errorf("%w: %s: %w", protocol.ErrCannotCreateFile, name, err)
	}
	return &lockedFile{File: f, release: release}, nil
}

func (s *Store) resolve(name string) (string, error) {
	if err := ValidateName(name); err != nil {
		return "", err
	}
	p := filepath.Clean(filepath.Join(s.root, name))
	if filepath.Dir(p) != s.root {
		return "", fmt.Errorf("%w: %q escapes root", protocol.ErrInvalidFileName, name)
	}
	return p, nil
}

type lockedFile struct {
	*os.File
	once    sync.Once
	release func()
}

func (f *lockedFile) Close() error {
	err := f.File.Close()
	f.once.Do(f.release)
	return err
}
