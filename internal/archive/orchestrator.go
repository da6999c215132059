// Package archive drives a download run: it lists posts, fetches them and
// their assets, and stores everything content-addressed under one archive
// root while keeping the manifest current.
package archive

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/code-bush/robustack-dl/internal/integrity"
	"github.com/code-bush/robustack-dl/internal/manifest"
	"github.com/code-bush/robustack-dl/internal/pathguard"
	"github.com/code-bush/robustack-dl/internal/processor"
	"github.com/code-bush/robustack-dl/internal/types"
)

var (
	// ErrItemFetch is returned when a post body cannot be retrieved
	ErrItemFetch = fmt.Errorf("item fetch failed")
	// ErrAssetFetch is returned when an image or attachment cannot be retrieved
	ErrAssetFetch = fmt.Errorf("asset fetch failed")
	// ErrAssetStore is returned when a fetched asset cannot be written
	ErrAssetStore = fmt.Errorf("asset store failed")
)

// Fetcher retrieves remote content.
type Fetcher interface {
	FetchBytes(ctx context.Context, url string) ([]byte, error)
	FetchText(ctx context.Context, url string) (string, error)
	RateLimit() int
}

// Lister enumerates the posts of a publication.
type Lister interface {
	ListItems(ctx context.Context, baseURL string, filter types.Filter) ([]types.Post, error)
}

// Transformer renders HTML in an output format.
type Transformer interface {
	Transform(content string, format types.OutputFormat) string
}

// Options configures a run.
type Options struct {
	// Output is the archive root. It must lie inside the working directory.
	Output         string
	Format         types.OutputFormat
	DryRun         bool
	DownloadImages bool
	ImagesDir      string
	ImageQuality   types.ImageQuality
	DownloadFiles  bool
	FilesDir       string
	// FileExtensions restricts attachments; empty allows every non-page extension.
	FileExtensions []string
	AddSourceURL   bool
	CreateArchive  bool
	Filter         types.Filter
	Logger         logrus.FieldLogger
	// Now stamps manifest entries; defaults to time.Now.
	Now func() time.Time
}

// Summary reports what a run did.
type Summary struct {
	RunID           string
	DryRun          bool
	Posts           int
	Written         int
	Skipped         int
	Failed          int
	AssetsWritten   int
	AssetsSkipped   int
	AssetsFailed    int
	BytesWritten    int64
	ManifestEntries int
	ManifestSaved   bool
	IndexWritten    bool
	// Planned lists the post files a dry run would write.
	Planned []string
}

// Writes returns the number of files written, posts and assets together.
func (s *Summary) Writes() int {
	return s.Written + s.AssetsWritten
}

// Orchestrator runs archive jobs. It is single-threaded: posts, assets and
// manifest updates are processed one at a time.
type Orchestrator struct {
	fetcher     Fetcher
	lister      Lister
	transformer Transformer
	opts        Options
	log         logrus.FieldLogger
}

// New creates an Orchestrator. A nil transformer uses processor.Converter.
func New(fetcher Fetcher, lister Lister, transformer Transformer, opts Options) *Orchestrator {
	if transformer == nil {
		transformer = processor.Converter{}
	}
	if opts.Format == "" {
		opts.Format = types.FormatHTML
	}
	if opts.ImagesDir == "" {
		opts.ImagesDir = "images"
	}
	if opts.FilesDir == "" {
		opts.FilesDir = "files"
	}
	if opts.ImageQuality == "" {
		opts.ImageQuality = types.QualityHigh
	}
	if opts.Output == "" {
		opts.Output = "."
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Orchestrator{
		fetcher:     fetcher,
		lister:      lister,
		transformer: transformer,
		opts:        opts,
		log:         log,
	}
}

// reservedSuffix renames posts whose file would collide with a file the
// archive itself owns.
const reservedSuffix = "_post"

// PostFileName is the archive-relative file name of a post. Slugs that would
// produce index.html or manifest.json get reservedSuffix appended.
func PostFileName(p types.Post, format types.OutputFormat) string {
	stem := fileName(p.Slug)
	name := stem + "." + format.Extension()
	if strings.EqualFold(name, IndexFileName) || strings.EqualFold(name, manifest.FileName) {
		name = stem + reservedSuffix + "." + format.Extension()
	}
	return name
}

// run carries the state of a single Run call.
type run struct {
	root    pathguard.Root
	m       *manifest.Manifest
	summary *Summary
	log     logrus.FieldLogger
}

// Run archives every post of the publication at baseURL that passes the
// configured filter. Fetch failures are logged and counted; path-safety,
// write and manifest errors abort the run without saving the manifest.
func (o *Orchestrator) Run(ctx context.Context, baseURL string) (*Summary, error) {
	summary := &Summary{
		RunID:  uuid.NewString(),
		DryRun: o.opts.DryRun,
	}
	log := o.log.WithFields(logrus.Fields{
		"run_id":      summary.RunID,
		"publication": baseURL,
	})

	log.WithFields(logrus.Fields{
		"format":     o.opts.Format,
		"rate_limit": o.fetcher.RateLimit(),
		"dry_run":    o.opts.DryRun,
	}).Info("Starting archive run")

	posts, err := o.lister.ListItems(ctx, baseURL, o.opts.Filter)
	if err != nil {
		return summary, fmt.Errorf("failed to list posts: %w", err)
	}
	summary.Posts = len(posts)
	log.WithField("posts", len(posts)).Info("Listed posts")

	if o.opts.DryRun {
		for _, p := range posts {
			name := PostFileName(p, o.opts.Format)
			summary.Planned = append(summary.Planned, name)
			log.WithFields(logrus.Fields{"slug": p.Slug, "path": name}).Info("Would archive post")
		}
		return summary, nil
	}

	root, err := prepareRoot(o.opts.Output)
	if err != nil {
		return summary, err
	}

	m, err := manifest.Load(root)
	if err != nil {
		return summary, err
	}

	r := &run{root: root, m: m, summary: summary, log: log}
	for _, p := range posts {
		if err := ctx.Err(); err != nil {
			return summary, err
		}

		err := o.archivePost(ctx, r, p)
		switch {
		case err == nil:
		case errors.Is(err, ErrItemFetch):
			summary.Failed++
			log.WithField("slug", p.Slug).WithError(err).Warn("Skipping post")
		default:
			return summary, err
		}
	}

	if o.opts.CreateArchive {
		written, err := writeIndex(root, posts, o.opts.Format)
		if err != nil {
			return summary, err
		}
		summary.IndexWritten = written
	}

	if m.Dirty() {
		if err := m.Save(root); err != nil {
			return summary, err
		}
		summary.ManifestSaved = true
	}
	summary.ManifestEntries = m.Len()

	log.WithFields(logrus.Fields{
		"written":        summary.Written,
		"skipped":        summary.Skipped,
		"failed":         summary.Failed,
		"assets_written": summary.AssetsWritten,
		"assets_skipped": summary.AssetsSkipped,
		"assets_failed":  summary.AssetsFailed,
	}).Info("Archive run complete")

	return summary, nil
}

func (o *Orchestrator) archivePost(ctx context.Context, r *run, p types.Post) error {
	log := r.log.WithField("slug", p.Slug)

	body := p.BodyHTML
	if strings.TrimSpace(body) == "" {
		text, err := o.fetcher.FetchText(ctx, p.CanonicalURL)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrItemFetch, p.CanonicalURL, err)
		}
		body = text
	}

	var err error
	if o.opts.DownloadImages {
		if body, err = o.localizeImages(ctx, r, p, body); err != nil {
			return err
		}
	}
	if o.opts.DownloadFiles {
		if body, err = o.localizeFiles(ctx, r, p, body); err != nil {
			return err
		}
	}

	content := o.transformer.Transform(body, o.opts.Format)
	if o.opts.AddSourceURL {
		content = processor.AppendSourceURL(content, p.CanonicalURL)
	}

	data := []byte(content)
	name := PostFileName(p, o.opts.Format)
	stored, err := o.store(r, data, name, p.CanonicalURL)
	if err != nil {
		return err
	}

	if stored {
		r.summary.Written++
		r.summary.BytesWritten += int64(len(data))
		log.WithField("path", name).Info("Archived post")
	} else {
		r.summary.Skipped++
		log.WithField("path", name).Debug("Unchanged, skipping")
	}
	return nil
}

// store writes data to rel unless the gate says the same bytes are already
// recorded there. It reports whether a write happened.
func (o *Orchestrator) store(r *run, data []byte, rel, sourceURL string) (bool, error) {
	fp := integrity.Fingerprint(data)
	if integrity.ShouldSkip(r.m, fp, r.root, rel) {
		return false, nil
	}

	if _, err := r.root.WriteFile(rel, data); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", rel, err)
	}

	// Entries that pointed at the old contents of rel no longer describe it.
	r.m.RemovePath(pathguard.SanitizeRelative(rel))
	r.m.Insert(manifest.Entry{
		SourceURL:   sourceURL,
		Fingerprint: fp,
		LocalPath:   pathguard.SanitizeRelative(rel),
		Size:        int64(len(data)),
		RecordedAt:  o.opts.Now().UTC(),
	})
	return true, nil
}

// prepareRoot creates the output directory when it does not exist yet and
// resolves it. Directories outside the working directory are never created.
func prepareRoot(output string) (pathguard.Root, error) {
	if _, err := os.Stat(output); errors.Is(err, os.ErrNotExist) {
		abs, err := filepath.Abs(output)
		if err != nil {
			return pathguard.Root{}, fmt.Errorf("%w: %s: %w", pathguard.ErrUnsafeRoot, output, err)
		}
		cwd, err := os.Getwd()
		if err != nil {
			return pathguard.Root{}, fmt.Errorf("%w: %w", pathguard.ErrUnsafeRoot, err)
		}
		rel, err := filepath.Rel(cwd, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return pathguard.Root{}, fmt.Errorf("%w: %s is outside the working directory", pathguard.ErrUnsafeRoot, output)
		}
		if err := os.MkdirAll(abs, 0755); err != nil {
			return pathguard.Root{}, fmt.Errorf("failed to create output directory: %w", err)
		}
	}
	return pathguard.ResolveRoot(output)
}
