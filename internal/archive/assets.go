package archive

import (
	"context"
	"errors"
	"fmt"
	"html"
	"net/url"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"github.com/sirupsen/logrus"

	"github.com/code-bush/robustack-dl/internal/integrity"
	"github.com/code-bush/robustack-dl/internal/pathguard"
	"github.com/code-bush/robustack-dl/internal/processor"
	"github.com/code-bush/robustack-dl/internal/types"
)

// Link extensions that point at pages rather than downloadable files.
var pageExtensions = map[string]bool{
	"html": true, "htm": true, "php": true, "asp": true, "aspx": true, "jsp": true,
	"shtml": true, "xhtml": true, "cgi": true,
}

var (
	cdnWidth     = regexp.MustCompile(`\bw_\d+\b`)
	safeExtChars = regexp.MustCompile(`^\.[a-z0-9]{1,8}$`)
	dotRun       = regexp.MustCompile(`\.{2,}`)
)

// fileName reduces a remote name to one component without dot runs or
// edge dots, so that the archive path never trips the traversal check.
func fileName(name string) string {
	name = dotRun.ReplaceAllString(pathguard.SanitizeComponent(name), ".")
	name = strings.Trim(name, ".")
	if name == "" {
		return pathguard.Untitled
	}
	return name
}

// ApplyImageQuality rewrites the width transform of Substack CDN image URLs.
// Other URLs and the high quality setting are left alone.
func ApplyImageQuality(rawURL string, q types.ImageQuality) string {
	width := q.Width()
	if width == 0 || !strings.Contains(rawURL, "substackcdn.com") {
		return rawURL
	}
	return cdnWidth.ReplaceAllString(rawURL, "w_"+strconv.Itoa(width))
}

func (o *Orchestrator) localizeImages(ctx context.Context, r *run, p types.Post, body string) (string, error) {
	for _, src := range processor.ImageSources(body) {
		abs, ok := resolveReference(p.CanonicalURL, src)
		if !ok {
			continue
		}

		rel, err := o.storeAsset(ctx, r, ApplyImageQuality(abs, o.opts.ImageQuality), o.opts.ImagesDir, "")
		if err != nil {
			if assetRecoverable(err) {
				r.summary.AssetsFailed++
				r.log.WithFields(logrus.Fields{"slug": p.Slug, "url": abs}).WithError(err).Warn("Keeping remote image reference")
				continue
			}
			return "", err
		}
		body = rewriteReference(body, src, rel)
	}
	return body, nil
}

func (o *Orchestrator) localizeFiles(ctx context.Context, r *run, p types.Post, body string) (string, error) {
	for _, href := range processor.LinkTargets(body) {
		abs, ok := resolveReference(p.CanonicalURL, href)
		if !ok {
			continue
		}
		u, err := url.Parse(abs)
		if err != nil {
			continue
		}
		ext := strings.TrimPrefix(strings.ToLower(path.Ext(u.Path)), ".")
		if !AttachmentAllowed(ext, o.opts.FileExtensions) {
			continue
		}

		rel, err := o.storeAsset(ctx, r, abs, o.opts.FilesDir, path.Base(u.Path))
		if err != nil {
			if assetRecoverable(err) {
				r.summary.AssetsFailed++
				r.log.WithFields(logrus.Fields{"slug": p.Slug, "url": abs}).WithError(err).Warn("Keeping remote attachment link")
				continue
			}
			return "", err
		}
		body = rewriteReference(body, href, rel)
	}
	return body, nil
}

// assetRecoverable reports whether a failed asset leaves the post usable
// with its remote reference.
func assetRecoverable(err error) bool {
	return errors.Is(err, ErrAssetFetch) || errors.Is(err, ErrAssetStore)
}

// pathViolation reports a path-safety failure, which always aborts a run.
func pathViolation(err error) bool {
	return errors.Is(err, pathguard.ErrPathTraversal) || errors.Is(err, pathguard.ErrUnsafeRoot)
}

// AttachmentAllowed reports whether a link with extension ext (no dot)
// counts as a downloadable attachment under the allowlist.
func AttachmentAllowed(ext string, allow []string) bool {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	if ext == "" || pageExtensions[ext] {
		return false
	}
	if len(allow) == 0 {
		return true
	}
	for _, a := range allow {
		if strings.ToLower(strings.TrimPrefix(strings.TrimSpace(a), ".")) == ext {
			return true
		}
	}
	return false
}

// storeAsset fetches assetURL and stores it under dir. Images are named
// purely by content; attachments keep their original name behind the hash
// prefix. Content already recorded anywhere in the archive is reused.
func (o *Orchestrator) storeAsset(ctx context.Context, r *run, assetURL, dir, originalName string) (string, error) {
	data, err := o.fetcher.FetchBytes(ctx, assetURL)
	if err != nil {
		return "", fmt.Errorf("%w: %s: %w", ErrAssetFetch, assetURL, err)
	}

	fp := integrity.Fingerprint(data)
	if e, ok := r.m.Get(fp); ok && integrity.ShouldSkip(r.m, fp, r.root, e.LocalPath) {
		r.summary.AssetsSkipped++
		return e.LocalPath, nil
	}

	name := "image" + assetExtension(data, assetURL)
	if originalName != "" && originalName != "." && originalName != "/" {
		name = fileName(originalName)
	}
	rel := pathguard.SanitizeRelative(dir) + "/" + integrity.ContentAddressedName(fp, name)

	stored, err := o.store(r, data, rel, assetURL)
	if err != nil {
		if pathViolation(err) {
			return "", err
		}
		return "", fmt.Errorf("%w: %w", ErrAssetStore, err)
	}
	if stored {
		r.summary.AssetsWritten++
		r.summary.BytesWritten += int64(len(data))
		r.log.WithFields(logrus.Fields{"url": assetURL, "path": rel}).Debug("Stored asset")
	} else {
		r.summary.AssetsSkipped++
	}
	return rel, nil
}

// assetExtension derives a file extension from the content, then from the
// URL path, and finally falls back to .bin.
func assetExtension(data []byte, assetURL string) string {
	mime := mimetype.Detect(data)
	if ext := mime.Extension(); ext != "" && !mime.Is("application/octet-stream") {
		return ext
	}
	if u, err := url.Parse(assetURL); err == nil {
		if ext := strings.ToLower(path.Ext(u.Path)); safeExtChars.MatchString(ext) {
			return ext
		}
	}
	return ".bin"
}

// resolveReference makes ref absolute against the post URL. Only http and
// https references are archived.
func resolveReference(base, ref string) (string, bool) {
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", false
	}
	if baseURL, err := url.Parse(base); err == nil {
		refURL = baseURL.ResolveReference(refURL)
	}
	if refURL.Scheme != "http" && refURL.Scheme != "https" {
		return "", false
	}
	refURL.Fragment = ""
	return refURL.String(), true
}

// rewriteReference replaces quoted attribute values equal to ref, in raw or
// HTML-escaped form, with local.
func rewriteReference(body, ref, local string) string {
	for _, form := range []string{ref, html.EscapeString(ref)} {
		body = strings.ReplaceAll(body, `"`+form+`"`, `"`+local+`"`)
		body = strings.ReplaceAll(body, `'`+form+`'`, `'`+local+`'`)
	}
	return body
}
