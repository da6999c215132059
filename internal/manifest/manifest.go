// Package manifest records every artifact written into an archive root,
// keyed by content fingerprint.
package manifest

import (
	"sort"
	"time"
)

// FileName is the fixed name of the manifest directly under the archive root.
const FileName = "manifest.json"

// Entry describes one stored artifact.
type Entry struct {
	// SourceURL is kept for the audit trail and never used to build paths.
	SourceURL   string    `json:"source_url"`
	Fingerprint string    `json:"fingerprint"`
	LocalPath   string    `json:"local_path"`
	Size        int64     `json:"size"`
	RecordedAt  time.Time `json:"recorded_at"`
}

// Manifest maps fingerprints to entries. It is owned by a single run and is
// not safe for concurrent mutation.
type Manifest struct {
	entries map[string]Entry
	dirty   bool
}

type document struct {
	Entries map[string]Entry `json:"entries"`
}

// New returns an empty manifest. A new manifest counts as unsaved.
func New() *Manifest {
	return &Manifest{
		entries: make(map[string]Entry),
		dirty:   true,
	}
}

// Insert records e under its fingerprint, replacing any previous entry.
func (m *Manifest) Insert(e Entry) {
	m.entries[e.Fingerprint] = e
	m.dirty = true
}

// RemovePath drops every entry recorded at localPath and returns how many
// were removed.
func (m *Manifest) RemovePath(localPath string) int {
	removed := 0
	for fp, e := range m.entries {
		if e.LocalPath == localPath {
			delete(m.entries, fp)
			removed++
		}
	}
	if removed > 0 {
		m.dirty = true
	}
	return removed
}

// Contains reports whether fp has been recorded.
func (m *Manifest) Contains(fp string) bool {
	_, ok := m.entries[fp]
	return ok
}

// Get returns the entry recorded for fp.
func (m *Manifest) Get(fp string) (Entry, bool) {
	e, ok := m.entries[fp]
	return e, ok
}

// Len returns the number of entries.
func (m *Manifest) Len() int {
	return len(m.entries)
}

// Entries returns all entries ordered by local path, then fingerprint.
func (m *Manifest) Entries() []Entry {
	out := make([]Entry, 0, len(m.entries))
	for _, e := range m.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LocalPath != out[j].LocalPath {
			return out[i].LocalPath < out[j].LocalPath
		}
		return out[i].Fingerprint < out[j].Fingerprint
	})
	return out
}

// Dirty reports whether the manifest changed since it was loaded or saved.
func (m *Manifest) Dirty() bool {
	return m.dirty
}
