// Package testing provides SSH mock utilities for testing.
// This package simulates a remote Linux machine: an in-memory filesystem
// plus the account, package, and service state provisioning manipulates.
package testing

import (
	"errors"
	"path/filepath"
	"strings"
	"sync"
)

// MockFS simulates an in-memory remote filesystem.
type MockFS struct {
	mu    sync.RWMutex
	files map[string][]byte   // path -> content
	modes map[string]uint32   // path -> permission bits
	dirs  map[string]struct{} // directories
}

// NewMockFS creates a new empty mock filesystem.
func NewMockFS() *MockFS {
	return &MockFS{
		files: make(map[string][]byte),
		modes: make(map[string]uint32),
		dirs:  make(map[string]struct{}),
	}
}

// MkdirAll creates a directory and all parent directories.
// This mimics the behavior of `mkdir -p`.
func (fs *MockFS) MkdirAll(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)

	parts := strings.Split(path, "/")
	current := ""
	for _, part := range parts {
		if part == "" {
			current = "/"
			continue
		}
		if current == "/" {
			current = "/" + part
		} else {
			current = current + "/" + part
		}
		fs.dirs[current] = struct{}{}
	}
	return nil
}

// WriteFile writes content to a file, creating parent directories as needed.
func (fs *MockFS) WriteFile(path string, content []byte) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)

	dir := filepath.Dir(path)
	if dir != "." && dir != "/" {
		fs.dirs[dir] = struct{}{}
	}

	fs.files[path] = content
	return nil
}

// ReadFile reads the content of a file. Returns error if file doesn't exist.
func (fs *MockFS) ReadFile(path string) ([]byte, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	path = filepath.Clean(path)

	content, exists := fs.files[path]
	if !exists {
		return nil, errors.New("file not found")
	}
	return content, nil
}

// Chmod records the permission bits for a path.
func (fs *MockFS) Chmod(path string, mode uint32) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	fs.modes[filepath.Clean(path)] = mode
}

// Mode returns the recorded permission bits for a path (0 if none recorded).
func (fs *MockFS) Mode(path string) uint32 {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.modes[filepath.Clean(path)]
}

// Remove removes a file or directory and all its contents.
// This mimics the behavior of `rm -rf`.
func (fs *MockFS) Remove(path string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = filepath.Clean(path)

	delete(fs.files, path)
	delete(fs.modes, path)
	delete(fs.dirs, path)

	prefix := path + "/"
	for p := range fs.files {
		if strings.HasPrefix(p, prefix) {
			delete(fs.files, p)
			delete(fs.modes, p)
		}
	}
	for p := range fs.dirs {
		if strings.HasPrefix(p, prefix) {
			delete(fs.dirs, p)
		}
	}
	return nil
}

// IsDir returns true if the path is a directory.
func (fs *MockFS) IsDir(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, exists := fs.dirs[filepath.Clean(path)]
	return exists
}

// IsFile returns true if the path is a regular file.
func (fs *MockFS) IsFile(path string) bool {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	_, exists := fs.files[filepath.Clean(path)]
	return exists
}

// Files returns a copy of all file paths, for test assertions.
func (fs *MockFS) Files() []string {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	paths := make([]string, 0, len(fs.files))
	for p := range fs.files {
		paths = append(paths, p)
	}
	return paths
}
