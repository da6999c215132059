// Package audit re-verifies every artifact recorded in a manifest against
// the bytes currently on disk.
package audit

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"path/filepath"
	"runtime"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/code-bush/robustack-dl/internal/integrity"
	"github.com/code-bush/robustack-dl/internal/manifest"
	"github.com/code-bush/robustack-dl/internal/pathguard"
)

// ErrAuditFailed is returned when at least one entry failed or is missing.
var ErrAuditFailed = fmt.Errorf("audit failed")

// Status is the outcome for a single manifest entry.
type Status string

const (
	StatusPassed  Status = "passed"
	StatusFailed  Status = "failed"
	StatusMissing Status = "missing"
)

// Options configures an audit run.
type Options struct {
	// Jobs bounds how many files are hashed at once. Zero means one per CPU.
	Jobs   int
	Logger logrus.FieldLogger
}

// EntryResult is the verdict for one manifest entry.
type EntryResult struct {
	Entry  manifest.Entry
	Status Status
	Err    error
	// Actual is the fingerprint found on disk when it differs from the entry.
	Actual string
}

// Result aggregates an audit run.
type Result struct {
	Root         string
	ManifestPath string
	Entries      []EntryResult
	Passed       int
	Failed       int
	Missing      int
}

// Total returns the number of audited entries.
func (r *Result) Total() int {
	return len(r.Entries)
}

// OK reports whether every entry passed.
func (r *Result) OK() bool {
	return r.Failed == 0 && r.Missing == 0
}

// Problems returns the entries that did not pass.
func (r *Result) Problems() []EntryResult {
	var out []EntryResult
	for _, e := range r.Entries {
		if e.Status != StatusPassed {
			out = append(out, e)
		}
	}
	return out
}

// Run audits the manifest at manifestPath. The archive root is the
// manifest's parent directory. Every entry is checked even after failures;
// the returned error wraps ErrAuditFailed when anything failed or is missing.
func Run(ctx context.Context, manifestPath string, opts Options) (*Result, error) {
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	jobs := opts.Jobs
	if jobs <= 0 {
		jobs = runtime.NumCPU()
	}

	dir := filepath.Dir(manifestPath)
	if dir == "" {
		dir = "."
	}
	name := filepath.Base(manifestPath)
	if name != manifest.FileName {
		log.WithField("manifest", manifestPath).Warnf("Manifest is not named %s", manifest.FileName)
	}

	root, err := pathguard.ResolveRoot(dir)
	if err != nil {
		return nil, err
	}

	m, err := manifest.LoadFile(root, name)
	if err != nil {
		return nil, err
	}

	result := &Result{
		Root:         root.Path(),
		ManifestPath: filepath.Join(root.Path(), name),
	}

	entries := m.Entries()
	if len(entries) == 0 {
		log.WithField("manifest", result.ManifestPath).Warn("Manifest has no entries; nothing to audit")
		return result, nil
	}

	log.WithFields(logrus.Fields{
		"root":    result.Root,
		"entries": len(entries),
		"jobs":    jobs,
	}).Info("Starting audit")

	result.Entries = make([]EntryResult, len(entries))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, e := range entries {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			result.Entries[i] = CheckEntry(root, e)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("audit interrupted: %w", err)
	}

	for _, r := range result.Entries {
		fields := logrus.Fields{"path": r.Entry.LocalPath, "fingerprint": r.Entry.Fingerprint}
		switch r.Status {
		case StatusPassed:
			result.Passed++
			log.WithFields(fields).Debug("Verified")
		case StatusMissing:
			result.Missing++
			log.WithFields(fields).Warn("File missing")
		default:
			result.Failed++
			log.WithFields(fields).WithError(r.Err).Error("Verification failed")
		}
	}

	log.WithFields(logrus.Fields{
		"passed":  result.Passed,
		"failed":  result.Failed,
		"missing": result.Missing,
	}).Info("Audit complete")

	if !result.OK() {
		return result, fmt.Errorf("%w: %d failed, %d missing of %d", ErrAuditFailed, result.Failed, result.Missing, result.Total())
	}
	return result, nil
}

// CheckEntry classifies a single entry against the files under root.
func CheckEntry(root pathguard.Root, e manifest.Entry) EntryResult {
	res := EntryResult{Entry: e}

	if err := pathguard.CheckRelative(e.LocalPath); err != nil {
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	if _, err := root.ResolveChild(e.LocalPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			res.Status = StatusMissing
			res.Err = fmt.Errorf("%w: %s", integrity.ErrFileMissing, e.LocalPath)
			return res
		}
		res.Status = StatusFailed
		res.Err = err
		return res
	}

	ok, err := integrity.Verify(root, e.LocalPath, e.Fingerprint)
	switch {
	case err != nil:
		res.Status = StatusFailed
		res.Err = err
	case !ok:
		res.Status = StatusFailed
		res.Err = fmt.Errorf("%w: %s", integrity.ErrHashMismatch, e.LocalPath)
		if data, err := root.ReadFile(e.LocalPath); err == nil {
			res.Actual = integrity.Fingerprint(data)
		}
	default:
		res.Status = StatusPassed
	}
	return res
}
