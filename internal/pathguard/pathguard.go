// Package pathguard confines every filesystem access of an archive run to a
// single canonical root directory.
//
// A Root can only be obtained through ResolveRoot and always holds an
// absolute, symlink-free path. Relative paths go through three layers before
// they are opened: a syntactic check, per-component sanitization and a
// containment check on the fully resolved result.
package pathguard

import (
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// Untitled replaces names that sanitize to nothing usable.
const Untitled = "untitled"

var (
	// ErrUnsafeRoot is returned when the requested archive root cannot be used
	ErrUnsafeRoot = fmt.Errorf("unsafe archive root")
	// ErrPathTraversal is returned when a relative path would leave the archive root
	ErrPathTraversal = fmt.Errorf("path traversal rejected")
	// ErrResolutionFailed is returned when a path does not exist or cannot be canonicalized
	ErrResolutionFailed = fmt.Errorf("path resolution failed")
)

// Root is a canonical archive root directory.
type Root struct {
	path string
}

// ResolveRoot canonicalizes raw and checks that it names an existing
// directory inside the current working directory.
func ResolveRoot(raw string) (Root, error) {
	if strings.TrimSpace(raw) == "" {
		raw = "."
	}

	abs, err := filepath.Abs(raw)
	if err != nil {
		return Root{}, fmt.Errorf("%w: %s: %w", ErrUnsafeRoot, raw, err)
	}

	canonical, err := filepath.EvalSymlinks(abs)
	if err != nil {
		return Root{}, fmt.Errorf("%w: %s: %w", ErrUnsafeRoot, raw, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return Root{}, fmt.Errorf("%w: %s: %w", ErrUnsafeRoot, raw, err)
	}
	if !info.IsDir() {
		return Root{}, fmt.Errorf("%w: %s is not a directory", ErrUnsafeRoot, raw)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return Root{}, fmt.Errorf("%w: failed to get current directory: %w", ErrUnsafeRoot, err)
	}
	cwd, err = filepath.EvalSymlinks(cwd)
	if err != nil {
		return Root{}, fmt.Errorf("%w: failed to resolve current directory: %w", ErrUnsafeRoot, err)
	}

	if !within(cwd, canonical) {
		return Root{}, fmt.Errorf("%w: %s is outside the working directory %s", ErrUnsafeRoot, canonical, cwd)
	}

	return Root{path: canonical}, nil
}

// Path returns the canonical root directory.
func (r Root) Path() string {
	return r.path
}

func (r Root) String() string {
	return r.path
}

// IsZero reports whether r was never resolved.
func (r Root) IsZero() bool {
	return r.path == ""
}

// SanitizeComponent reduces name to a single safe path component.
// Backslashes count as separators and only the final component survives.
func SanitizeComponent(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	base := path.Base(name)
	switch base {
	case "", ".", "..", "/":
		return Untitled
	}
	return base
}

// SanitizeRelative sanitizes each slash-separated segment of rel. Empty and
// "." segments are dropped so that "images/./a.png" stays "images/a.png".
func SanitizeRelative(rel string) string {
	rel = strings.ReplaceAll(rel, "\\", "/")
	var parts []string
	for _, seg := range strings.Split(rel, "/") {
		if seg == "" || seg == "." {
			continue
		}
		parts = append(parts, SanitizeComponent(seg))
	}
	if len(parts) == 0 {
		return Untitled
	}
	return strings.Join(parts, "/")
}

// CheckRelative performs the syntactic traversal check. It never touches
// the filesystem.
func CheckRelative(rel string) error {
	trimmed := strings.TrimSpace(rel)
	if trimmed == "" {
		return fmt.Errorf("%w: empty path", ErrPathTraversal)
	}
	if strings.Contains(trimmed, "..") {
		return fmt.Errorf("%w: %q contains '..'", ErrPathTraversal, rel)
	}
	if strings.HasPrefix(trimmed, "/") || strings.HasPrefix(trimmed, "\\") {
		return fmt.Errorf("%w: %q is absolute", ErrPathTraversal, rel)
	}
	if filepath.IsAbs(trimmed) || filepath.VolumeName(trimmed) != "" {
		return fmt.Errorf("%w: %q is absolute", ErrPathTraversal, rel)
	}
	return nil
}

// Join returns the lexical location of rel under the root after the
// syntactic check and sanitization. The result is not canonicalized.
func (r Root) Join(rel string) (string, error) {
	if err := CheckRelative(rel); err != nil {
		return "", err
	}
	return filepath.Join(r.path, filepath.FromSlash(SanitizeRelative(strings.TrimSpace(rel)))), nil
}

// ResolveChild returns the canonical path of an existing entry under the
// root. Callers must open only the returned path.
func (r Root) ResolveChild(rel string) (string, error) {
	joined, err := r.Join(rel)
	if err != nil {
		return "", err
	}

	canonical, err := filepath.EvalSymlinks(joined)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrResolutionFailed, rel, err)
	}

	if !r.Contains(canonical) {
		return "", fmt.Errorf("%w: %q resolves to %s outside %s", ErrPathTraversal, rel, canonical, r.path)
	}

	return canonical, nil
}

// Contains reports whether the canonical path p lies within the root.
func (r Root) Contains(p string) bool {
	return within(r.path, p)
}

// ReadFile reads an existing file under the root through ResolveChild.
func (r Root) ReadFile(rel string) ([]byte, error) {
	canonical, err := r.ResolveChild(rel)
	if err != nil {
		return nil, err
	}
	return os.ReadFile(canonical)
}

func within(base, target string) bool {
	rel, err := filepath.Rel(base, target)
	if err != nil {
		return false
	}
	if rel == "." {
		return true
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
