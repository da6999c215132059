// Package integrity computes content fingerprints and decides whether stored
// artifacts can be trusted.
package integrity

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"github.com/code-bush/robustack-dl/internal/pathguard"
)

// PrefixLength is the number of fingerprint characters used in
// content-addressed file names.
const PrefixLength = 16

var (
	// ErrHashMismatch is returned when stored bytes no longer match their fingerprint
	ErrHashMismatch = fmt.Errorf("hash mismatch")
	// ErrFileMissing is returned when a recorded artifact is absent from disk
	ErrFileMissing = fmt.Errorf("file missing")
)

// Fingerprint returns the lowercase hex SHA-256 digest of data.
func Fingerprint(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// ContentAddressedName prefixes the sanitized name with the first
// PrefixLength characters of fp.
func ContentAddressedName(fp, name string) string {
	prefix := fp
	if len(prefix) > PrefixLength {
		prefix = prefix[:PrefixLength]
	}
	return prefix + "_" + pathguard.SanitizeComponent(name)
}

// Recorder is the read side of a manifest.
type Recorder interface {
	Contains(fingerprint string) bool
}

// ShouldSkip reports whether content with fingerprint fp is already recorded
// and rel still resolves safely under root. The bytes on disk are not
// re-hashed; that is the auditor's job.
func ShouldSkip(m Recorder, fp string, root pathguard.Root, rel string) bool {
	if m == nil || !m.Contains(fp) {
		return false
	}
	if _, err := root.ResolveChild(rel); err != nil {
		return false
	}
	return true
}

// Verify re-hashes the file at rel and compares it with expected. The
// boolean is only meaningful when err is nil.
func Verify(root pathguard.Root, rel, expected string) (bool, error) {
	canonical, err := root.ResolveChild(rel)
	if err != nil {
		return false, err
	}

	data, err := os.ReadFile(canonical)
	if err != nil {
		return false, fmt.Errorf("failed to read %s: %w", rel, err)
	}

	return Fingerprint(data) == expected, nil
}
