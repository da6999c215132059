// Package processor converts post bodies between HTML, Markdown and plain
// text and finds the assets they reference.
package processor

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/k3a/html2text"

	"github.com/code-bush/robustack-dl/internal/types"
)

// Converter implements the format transform used by the archiver.
type Converter struct{}

// Transform renders HTML content in the requested format.
func (Converter) Transform(content string, format types.OutputFormat) string {
	return Transform(content, format)
}

// Transform renders HTML content in the requested format. HTML is returned
// unchanged.
func Transform(content string, format types.OutputFormat) string {
	switch format {
	case types.FormatMarkdown:
		return ToMarkdown(content)
	case types.FormatText:
		return ToText(content)
	default:
		return content
	}
}

// ToText flattens HTML to plain text.
func ToText(content string) string {
	text := html2text.HTML2Text(content)
	return cleanBlankLines(text) + "\n"
}

// AppendSourceURL adds a footer pointing back at the original post.
func AppendSourceURL(content, sourceURL string) string {
	return content + "\n\n---\nSource: " + sourceURL + "\n"
}

// ImageSources returns the distinct <img src> values in document order.
// Inline data URIs are skipped.
func ImageSources(content string) []string {
	return distinctAttr(content, "img[src]", "src")
}

// LinkTargets returns the distinct <a href> values in document order.
func LinkTargets(content string) []string {
	return distinctAttr(content, "a[href]", "href")
}

func distinctAttr(content, selector, attr string) []string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return nil
	}

	seen := make(map[string]bool)
	var out []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		v := strings.TrimSpace(s.AttrOr(attr, ""))
		if v == "" || strings.HasPrefix(v, "data:") || strings.HasPrefix(v, "#") || seen[v] {
			return
		}
		seen[v] = true
		out = append(out, v)
	})
	return out
}

// cleanBlankLines trims trailing spaces and collapses runs of blank lines.
func cleanBlankLines(text string) string {
	lines := strings.Split(text, "\n")
	var cleaned []string
	blank := false
	for _, line := range lines {
		line = strings.TrimRight(line, " \t\r")
		if line == "" {
			if blank || len(cleaned) == 0 {
				continue
			}
			blank = true
			cleaned = append(cleaned, "")
			continue
		}
		blank = false
		cleaned = append(cleaned, line)
	}
	return strings.TrimSpace(strings.Join(cleaned, "\n"))
}
