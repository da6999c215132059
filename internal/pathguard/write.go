package pathguard

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// WriteFile writes data to rel under the root, creating parent directories
// as needed. Every directory on the way is canonicalized and checked for
// containment before it is used, and the file itself is written to a
// temporary sibling and renamed into place. It returns the canonical path
// of the written file.
func (r Root) WriteFile(rel string, data []byte) (string, error) {
	if err := CheckRelative(rel); err != nil {
		return "", err
	}

	clean := SanitizeRelative(strings.TrimSpace(rel))
	segments := strings.Split(clean, "/")
	name := segments[len(segments)-1]

	parent, err := r.MkdirAll(strings.Join(segments[:len(segments)-1], "/"))
	if err != nil {
		return "", err
	}

	target := filepath.Join(parent, name)
	if info, err := os.Lstat(target); err == nil {
		canonical, err := filepath.EvalSymlinks(target)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrResolutionFailed, rel, err)
		}
		if !r.Contains(canonical) {
			return "", fmt.Errorf("%w: %q resolves to %s outside %s", ErrPathTraversal, rel, canonical, r.path)
		}
		if info.IsDir() {
			return "", fmt.Errorf("cannot write %s: is a directory", rel)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", fmt.Errorf("failed to stat %s: %w", rel, err)
	}

	if err := atomicWrite(parent, name, data); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", rel, err)
	}

	return target, nil
}

// MkdirAll creates the directory rel under the root one component at a time
// and returns its canonical path. An empty rel names the root itself.
func (r Root) MkdirAll(rel string) (string, error) {
	current := r.path
	if strings.TrimSpace(rel) == "" {
		return current, nil
	}
	if err := CheckRelative(rel); err != nil {
		return "", err
	}

	for _, seg := range strings.Split(SanitizeRelative(rel), "/") {
		next := filepath.Join(current, seg)
		if err := os.Mkdir(next, 0755); err != nil && !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("failed to create directory %s: %w", seg, err)
		}

		canonical, err := filepath.EvalSymlinks(next)
		if err != nil {
			return "", fmt.Errorf("%w: %s: %w", ErrResolutionFailed, seg, err)
		}
		if !r.Contains(canonical) {
			return "", fmt.Errorf("%w: directory %q resolves to %s outside %s", ErrPathTraversal, rel, canonical, r.path)
		}

		info, err := os.Stat(canonical)
		if err != nil {
			return "", fmt.Errorf("failed to stat directory %s: %w", seg, err)
		}
		if !info.IsDir() {
			return "", fmt.Errorf("cannot create directory %s: a file is in the way", seg)
		}
		current = canonical
	}

	return current, nil
}

func atomicWrite(dir, name string, data []byte) error {
	tmp, err := os.CreateTemp(dir, "."+name+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Chmod(0644); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}

	return os.Rename(tmpName, filepath.Join(dir, name))
}
