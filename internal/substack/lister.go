// Package substack lists the posts of a Substack publication through its
// public archive API.
package substack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/code-bush/robustack-dl/internal/types"
)

const (
	// PageSize is the number of posts requested per API call.
	PageSize = 50
	// MaxOffset stops runaway pagination against misbehaving servers.
	MaxOffset = 20000
)

// TextFetcher is the part of the transport the lister needs.
type TextFetcher interface {
	FetchText(ctx context.Context, url string) (string, error)
}

// Lister pages through /api/v1/posts.
type Lister struct {
	fetcher TextFetcher
	log     logrus.FieldLogger
}

// NewLister creates a Lister. A nil logger uses the standard logger.
func NewLister(fetcher TextFetcher, log logrus.FieldLogger) *Lister {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Lister{fetcher: fetcher, log: log}
}

type pageEnvelope struct {
	Posts []types.Post `json:"posts"`
	Total int          `json:"total"`
}

// ListItems returns the posts of the publication at baseURL that pass
// filter, in the order the API returns them.
func (l *Lister) ListItems(ctx context.Context, baseURL string, filter types.Filter) ([]types.Post, error) {
	base, err := NormalizeBaseURL(baseURL)
	if err != nil {
		return nil, err
	}

	log := l.log.WithField("publication", base)
	log.WithField("filter", filter.String()).Debug("Listing posts")

	var posts []types.Post
	offset := 0
	for {
		if offset >= MaxOffset {
			log.WithField("offset", offset).Warn("Stopping pagination at safety limit")
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		pageURL := fmt.Sprintf("%s/api/v1/posts?limit=%d&offset=%d", base, PageSize, offset)
		body, err := l.fetcher.FetchText(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("failed to list posts at offset %d: %w", offset, err)
		}

		page, total, err := decodePage([]byte(body))
		if err != nil {
			return nil, fmt.Errorf("failed to decode posts at offset %d: %w", offset, err)
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			p := page[i]
			if err := p.Validate(); err != nil {
				log.WithField("slug", p.Slug).WithError(err).Warn("Skipping malformed post record")
				continue
			}
			if !filter.Matches(&p) {
				continue
			}
			posts = append(posts, p)
			if filter.Limit > 0 && len(posts) >= filter.Limit {
				log.WithField("count", len(posts)).Debug("Reached post limit")
				return posts, nil
			}
		}

		offset += len(page)
		if total > 0 && offset >= total {
			break
		}
		if total == 0 && len(page) < PageSize {
			break
		}
	}

	log.WithField("count", len(posts)).Debug("Listed posts")
	return posts, nil
}

// decodePage accepts both {"posts": [...], "total": N} and a bare array.
// A bare array reports a total of zero.
func decodePage(body []byte) ([]types.Post, int, error) {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var posts []types.Post
		if err := json.Unmarshal(trimmed, &posts); err != nil {
			return nil, 0, err
		}
		return posts, 0, nil
	}

	var env pageEnvelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, 0, err
	}
	return env.Posts, env.Total, nil
}

// NormalizeBaseURL validates a publication URL and strips any path, query
// and trailing slash.
func NormalizeBaseURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw != "" && !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return "", fmt.Errorf("invalid publication URL %q", raw)
	}
	return u.Scheme + "://" + u.Host, nil
}

// Host returns the host of a publication URL, or "" when it is invalid.
func Host(raw string) string {
	base, err := NormalizeBaseURL(raw)
	if err != nil {
		return ""
	}
	u, _ := url.Parse(base)
	return u.Hostname()
}
