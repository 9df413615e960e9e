// Package envfiles finds environment property files inside a directory.
package envfiles

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultExtensions is the extension set used when none is configured
var DefaultExtensions = []string{"env"}

// DiscoveryError reports a directory that could not be listed
type DiscoveryError struct {
	Dir string
	Err error
}

func (e *DiscoveryError) Error() string {
	return fmt.Sprintf("discover %s: %v", e.Dir, e.Err)
}

func (e *DiscoveryError) Unwrap() error {
	return e.Err
}

// HasExtension reports whether name ends in ".<ext>" for one of extensions.
// Matching is case-sensitive. A bare ".env" has extension "env".
func HasExtension(name string, extensions []string) bool {
	ext := strings.TrimPrefix(filepath.Ext(name), ".")
	if ext == "" {
		return false
	}
	for _, want := range extensions {
		if ext == strings.TrimPrefix(want, ".") {
			return true
		}
	}
	return false
}

// Discover returns the regular files under root whose extension is in
// extensions, sorted lexicographically. Symlinks are followed only when they
// resolve to regular files. With recursive false only direct children of root
// are considered.
//
// On any I/O error Discover returns nil and a *DiscoveryError.
func Discover(root string, extensions []string, recursive bool) ([]string, error) {
	if len(extensions) == 0 {
		extensions = DefaultExtensions
	}

	info, err := os.Stat(root)
	if err != nil {
		return nil, &DiscoveryError{Dir: root, Err: err}
	}
	if !info.IsDir() {
		return nil, &DiscoveryError{Dir: root, Err: fmt.Errorf("not a directory")}
	}

	var files []string
	if recursive {
		files, err = walk(root, extensions)
	} else {
		files, err = list(root, extensions)
	}
	if err != nil {
		return nil, &DiscoveryError{Dir: root, Err: err}
	}

	sort.Strings(files)
	return files, nil
}

// list scans only the direct children of dir
func list(dir string, extensions []string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		path := filepath.Join(dir, entry.Name())
		if qualifies(path, entry, extensions) {
			files = append(files, path)
		}
	}
	return files, nil
}

// walk descends into real subdirectories; symlinked directories are not followed
func walk(root string, extensions []string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if qualifies(path, d, extensions) {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

func qualifies(path string, d fs.DirEntry, extensions []string) bool {
	if !HasExtension(d.Name(), extensions) {
		return false
	}

	mode := d.Type()
	if mode.IsRegular() {
		return true
	}
	if mode&fs.ModeSymlink == 0 {
		return false
	}

	// Follow the link; dangling links and links to directories are skipped.
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().IsRegular()
}
