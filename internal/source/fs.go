// Package source provides the filesystem collaborator used by change
// detection and dependency extraction, and classifies files by kind.
package source

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"time"
)

// FileInfo is the subset of file metadata the engine reads.
type FileInfo struct {
	Size    int64
	ModTime time.Time
	IsDir   bool
}

// FileSystem reads and enumerates files. Paths are absolute.
type FileSystem interface {
	ReadFile(path string) ([]byte, error)
	Stat(path string) (FileInfo, error)
	// ReadDir returns the absolute paths of the regular files directly in dir,
	// sorted lexically.
	ReadDir(dir string) ([]string, error)
	// Walk calls fn for every regular file under root that match accepts.
	// Directories rejected by skipDir are not descended into.
	Walk(root string, skipDir func(name string) bool, accept func(path string) bool, fn func(path string) error) error
}

// OSFileSystem implements FileSystem on the host filesystem.
type OSFileSystem struct{}

var _ FileSystem = OSFileSystem{}

func (OSFileSystem) ReadFile(path string) ([]byte, error) {
	return os.ReadFile(path)
}

func (OSFileSystem) Stat(path string) (FileInfo, error) {
	info, err := os.Stat(path)
	if err != nil {
		return FileInfo{}, err
	}
	return FileInfo{Size: info.Size(), ModTime: info.ModTime(), IsDir: info.IsDir()}, nil
}

func (OSFileSystem) ReadDir(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type().IsRegular() {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

func (OSFileSystem) Walk(root string, skipDir func(string) bool, accept func(string) bool, fn func(string) error) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// Unreadable subtrees are skipped, the root itself is not.
			if path == root {
				return err
			}
			if d != nil && d.IsDir() {
				return fs.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			if path != root && skipDir != nil && skipDir(d.Name()) {
				return fs.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() {
			return nil
		}
		if accept != nil && !accept(path) {
			return nil
		}
		return fn(path)
	})
}

// Exists reports whether path names an existing regular file.
func Exists(fsys FileSystem, path string) bool {
	info, err := fsys.Stat(path)
	return err == nil && !info.IsDir
}

// IsNotExist reports whether err means the file is gone.
func IsNotExist(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}
