package manifest

import (
	"errors"
	"testing"
)

func FuzzDecode(f *testing.F) {
	valid := `{"entries":{"` + fpA + `":{"source_url":"https://example.substack.com/p/a","fingerprint":"` + fpA +
		`","local_path":"a.html","size":5,"recorded_at":"2024-03-01T10:00:00Z"}}}`
	f.Add([]byte(valid))
	f.Add([]byte(`{"entries":{}}`))
	f.Add([]byte(`{"entries":[]}`))
	f.Add([]byte(`{not json`))
	f.Add([]byte(`null`))
	f.Add([]byte(``))

	f.Fuzz(func(t *testing.T, data []byte) {
		m, err := Decode(data)
		if err != nil {
			if !errors.Is(err, ErrManifestCorrupt) {
				t.Fatalf("Decode error does not wrap ErrManifestCorrupt: %v", err)
			}
			return
		}
		if m.Dirty() {
			t.Fatal("decoded manifest is dirty")
		}
		for _, e := range m.Entries() {
			if !m.Contains(e.Fingerprint) {
				t.Fatalf("entry %s not reachable by its fingerprint", e.Fingerprint)
			}
		}

		encoded, err := m.Encode()
		if err != nil {
			t.Fatalf("Encode failed after successful Decode: %v", err)
		}
		again, err := Decode(encoded)
		if err != nil {
			t.Fatalf("re-decoding encoded manifest failed: %v", err)
		}
		if again.Len() != m.Len() {
			t.Fatalf("entry count changed on round trip: %d != %d", again.Len(), m.Len())
		}
	})
}
