// Package fsutil is the filesystem seam of the persistence engine: exclusive
// create, rename and a whole-system sync, with an in-memory double for tests.
package fsutil

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileSystem is what a flush needs from the disk.
type FileSystem interface {
	// CreateExclusive creates name for writing. It fails with fs.ErrExist
	// when name is already present.
	CreateExclusive(name string) (io.WriteCloser, error)

	// Rename atomically replaces newpath with oldpath.
	Rename(oldpath, newpath string) error

	// SyncAll flushes every filesystem to stable storage, not just one file.
	SyncAll() error

	// ReadFile returns the contents of name.
	ReadFile(name string) ([]byte, error)
}

// OSFileSystem is the FileSystem of the running device.
type OSFileSystem struct{}

func (OSFileSystem) CreateExclusive(name string) (io.WriteCloser, error) {
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
}

func (OSFileSystem) Rename(oldpath, newpath string) error {
	return os.Rename(oldpath, newpath)
}

// SyncAll asks the kernel to write back all dirty buffers.
func (OSFileSystem) SyncAll() error {
	return syncAll()
}

func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// MemoryFileSystem keeps files in a map. The exported hooks inject failures
// into create, write, rename and sync.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	syncs int

	// CreateErr, if set, is consulted before every CreateExclusive.
	CreateErr func(name string) error
	// WriteErr, if set, is returned by every Write on files it matches.
	WriteErr func(name string) error
	// RenameErr, if set, is consulted before every Rename.
	RenameErr func(oldpath, newpath string) error
	// SyncErr is returned by SyncAll.
	SyncErr error
}

// NewMemoryFileSystem returns an empty filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{files: make(map[string][]byte)}
}

// CreateExclusive registers an empty file at once, so a second create of the
// same name fails even before the first writer is closed. Written data
// becomes visible on Close.
func (m *MemoryFileSystem) CreateExclusive(name string) (io.WriteCloser, error) {
	name = filepath.Clean(name)
	if m.CreateErr != nil {
		if err := m.CreateErr(name); err != nil {
			return nil, &fs.PathError{Op: "create", Path: name, Err: err}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; ok {
		return nil, &fs.PathError{Op: "create", Path: name, Err: fs.ErrExist}
	}
	m.files[name] = []byte{}

	w := &memWriter{fs: m, name: name}
	if m.WriteErr != nil {
		w.err = m.WriteErr(name)
	}
	return w, nil
}

// WriteFile stores data under name, replacing any previous content.
func (m *MemoryFileSystem) WriteFile(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[filepath.Clean(name)] = append([]byte(nil), data...)
}

func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	name = filepath.Clean(name)
	data, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	return append([]byte(nil), data...), nil
}

func (m *MemoryFileSystem) Rename(oldpath, newpath string) error {
	oldpath, newpath = filepath.Clean(oldpath), filepath.Clean(newpath)
	if m.RenameErr != nil {
		if err := m.RenameErr(oldpath, newpath); err != nil {
			return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: err}
		}
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	data, ok := m.files[oldpath]
	if !ok {
		return &os.LinkError{Op: "rename", Old: oldpath, New: newpath, Err: fs.ErrNotExist}
	}
	delete(m.files, oldpath)
	m.files[newpath] = data
	return nil
}

// SyncAll counts the call and returns SyncErr.
func (m *MemoryFileSystem) SyncAll() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.syncs++
	return m.SyncErr
}

// Syncs returns how many times SyncAll was called.
func (m *MemoryFileSystem) Syncs() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.syncs
}

// Files returns the sorted paths of all files.
func (m *MemoryFileSystem) Files() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.files))
	for n := range m.files {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

type memWriter struct {
	fs   *MemoryFileSystem
	name string
	buf  []byte
	err  error
}

func (w *memWriter) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.buf = append(w.buf, p...)
	return len(p), nil
}

func (w *memWriter) Close() error {
	w.fs.mu.Lock()
	defer w.fs.mu.Unlock()
	w.fs.files[w.name] = w.buf
	return nil
}
