package manifest

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/code-bush/robustack-dl/internal/pathguard"
	"github.com/code-bush/robustack-dl/internal/schemas"
	schemafiles "github.com/code-bush/robustack-dl/schemas"
)

var (
	// ErrManifestCorrupt is returned when the manifest exists but cannot be parsed
	ErrManifestCorrupt = fmt.Errorf("manifest corrupt")
	// ErrManifestIO is returned when the manifest cannot be read or written
	ErrManifestIO = fmt.Errorf("manifest I/O failure")
)

// Load reads the manifest stored under root. A missing file yields an empty
// manifest; anything unreadable or malformed is a hard error.
func Load(root pathguard.Root) (*Manifest, error) {
	return LoadFile(root, FileName)
}

// LoadFile reads the manifest stored at rel under root.
func LoadFile(root pathguard.Root, rel string) (*Manifest, error) {
	joined, err := root.Join(rel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestIO, err)
	}

	if _, err := os.Lstat(joined); errors.Is(err, fs.ErrNotExist) {
		return New(), nil
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestIO, err)
	}

	canonical, err := root.ResolveChild(rel)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestIO, err)
	}

	info, err := os.Stat(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestIO, err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrManifestIO, rel)
	}

	data, err := os.ReadFile(canonical)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestIO, err)
	}

	return Decode(data)
}

// Decode parses a manifest document after validating it against the
// manifest schema.
func Decode(data []byte) (*Manifest, error) {
	if err := schemas.ValidateBytes(FileName, schemafiles.Manifest, data); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestCorrupt, err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrManifestCorrupt, err)
	}

	m := &Manifest{entries: make(map[string]Entry, len(doc.Entries))}
	for fp, e := range doc.Entries {
		if e.Fingerprint != fp {
			return nil, fmt.Errorf("%w: entry %s is keyed under %s", ErrManifestCorrupt, e.Fingerprint, fp)
		}
		m.entries[fp] = e
	}

	return m, nil
}

// Encode renders the manifest as indented JSON.
func (m *Manifest) Encode() ([]byte, error) {
	data, err := json.MarshalIndent(document{Entries: m.entries}, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to marshal manifest: %w", err)
	}
	return append(data, '\n'), nil
}

// Save replaces the manifest under root with the current contents.
func (m *Manifest) Save(root pathguard.Root) error {
	return m.SaveFile(root, FileName)
}

// SaveFile replaces the manifest at rel under root with the current contents.
func (m *Manifest) SaveFile(root pathguard.Root, rel string) error {
	data, err := m.Encode()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrManifestIO, err)
	}

	if _, err := root.WriteFile(rel, data); err != nil {
		return fmt.Errorf("%w: %w", ErrManifestIO, err)
	}

	m.dirty = false
	return nil
}
