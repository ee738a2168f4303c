// Package pathutil keeps downloaded and user-supplied files inside the
// directories sleepsync owns.
package pathutil

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrOutsideDir is returned when a path resolves outside every allowed directory.
var ErrOutsideDir = errors.New("path is outside the allowed directories")

// RedactPath shortens a path to .../<parent>/<base> for error messages, so
// "/home/user/.sleepsync/config.yaml" becomes ".../.sleepsync/config.yaml".
func RedactPath(path string) string {
	if path == "" {
		return ""
	}
	cleaned := filepath.Clean(path)
	parent := filepath.Base(filepath.Dir(cleaned))
	if parent == "." || parent == string(filepath.Separator) {
		return filepath.Base(cleaned)
	}
	return ".../" + parent + "/" + filepath.Base(cleaned)
}

// Contained resolves path, following symlinks in every component that
// exists (the final one included), and returns the resolved path when it
// lies within one of dirs. dirs are resolved the same way.
func Contained(path string, dirs ...string) (string, error) {
	switch {
	case path == "":
		return "", errors.New("path is empty")
	case strings.ContainsRune(path, 0):
		return "", errors.New("path contains a null byte")
	case len(dirs) == 0:
		return "", errors.New("no allowed directories given")
	}

	abs, err := filepath.Abs(path)
	if err != nil {
		return "", fmt.Errorf("resolving %s: %w", RedactPath(path), err)
	}
	resolved, err := resolve(abs)
	if err != nil {
		return "", err
	}

	for _, dir := range dirs {
		absDir, err := filepath.Abs(dir)
		if err != nil {
			continue
		}
		root, err := resolve(absDir)
		if err != nil {
			continue
		}
		if within(resolved, root) {
			return resolved, nil
		}
	}
	return "", fmt.Errorf("%w: %s", ErrOutsideDir, RedactPath(abs))
}

// resolve evaluates symlinks on the deepest existing ancestor of p and
// re-appends the components that do not exist yet.
func resolve(p string) (string, error) {
	if r, err := filepath.EvalSymlinks(p); err == nil {
		return r, nil
	}
	parent := filepath.Dir(p)
	if parent == p {
		return "", fmt.Errorf("cannot resolve %s", RedactPath(p))
	}
	r, err := resolve(parent)
	if err != nil {
		return "", err
	}
	return filepath.Join(r, filepath.Base(p)), nil
}

func within(p, root string) bool {
	if p == root {
		return true
	}
	return strings.HasPrefix(p, root+string(os.PathSeparator))
}
