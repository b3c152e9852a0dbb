// Package fsutil abstracts the read-side filesystem operations the daemon
// performs against sysfs and procfs, so sensor behaviour can be exercised
// against an in-memory tree in tests.
package fsutil

import (
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"
)

// FileSystem is the surface the sensor reader and lid probe consume.
// Use OSFileSystem in production; MemoryFileSystem in tests.
type FileSystem interface {
	// ReadFile reads the named file and returns its contents.
	ReadFile(name string) ([]byte, error)

	// Glob returns the names of all files and directories matching pattern.
	Glob(pattern string) ([]string, error)

	// Exists checks if a file or directory exists.
	Exists(name string) bool
}

// OSFileSystem implements FileSystem using the os package.
type OSFileSystem struct{}

// ReadFile reads the named file.
func (OSFileSystem) ReadFile(name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Glob returns all paths matching pattern.
func (OSFileSystem) Glob(pattern string) ([]string, error) {
	return filepath.Glob(pattern)
}

// Exists checks if a file exists.
func (OSFileSystem) Exists(name string) bool {
	_, err := os.Stat(name)
	return err == nil
}

// MemoryFileSystem is an in-memory tree for tests. Besides plain files it
// supports forcing an error on a path, which is how sensor fault handling
// gets exercised: Remove models a device node vanishing across suspend,
// SetError models any other IO failure.
type MemoryFileSystem struct {
	mu    sync.RWMutex
	files map[string][]byte
	dirs  map[string]bool
	errs  map[string]error
}

// NewMemoryFileSystem creates an empty in-memory filesystem.
func NewMemoryFileSystem() *MemoryFileSystem {
	return &MemoryFileSystem{
		files: make(map[string][]byte),
		dirs:  make(map[string]bool),
		errs:  make(map[string]error),
	}
}

// WriteFile stores data at name, registering every parent as a directory.
func (m *MemoryFileSystem) WriteFile(name string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	buf := make([]byte, len(data))
	copy(buf, data)
	m.files[name] = buf
	delete(m.errs, name)
	for p := filepath.Dir(name); p != "." && p != "/"; p = filepath.Dir(p) {
		m.dirs[p] = true
	}
}

// Remove deletes a file, so subsequent reads fail with fs.ErrNotExist.
func (m *MemoryFileSystem) Remove(name string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, filepath.Clean(name))
}

// SetError forces reads of name to fail with err until cleared with a nil
// err or a subsequent WriteFile.
func (m *MemoryFileSystem) SetError(name string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	name = filepath.Clean(name)
	if err == nil {
		delete(m.errs, name)
		return
	}
	m.errs[name] = err
}

// ReadFile returns the stored contents of name.
func (m *MemoryFileSystem) ReadFile(name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if err, ok := m.errs[name]; ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: err}
	}
	data, ok := m.files[name]
	if !ok {
		return nil, &fs.PathError{Op: "read", Path: name, Err: fs.ErrNotExist}
	}
	out := make([]byte, len(data))
	copy(out, data)
	return out, nil
}

// Glob matches pattern against every stored file and directory.
func (m *MemoryFileSystem) Glob(pattern string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matches []string
	for name := range m.files {
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, name)
		}
	}
	for name := range m.dirs {
		ok, err := filepath.Match(pattern, name)
		if err != nil {
			return nil, err
		}
		if ok {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches, nil
}

// Exists checks if a file or directory exists.
func (m *MemoryFileSystem) Exists(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	name = filepath.Clean(name)
	if _, ok := m.files[name]; ok {
		return true
	}
	return m.dirs[name]
}
