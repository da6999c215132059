// Package observability provides formatted output utilities for the CLI.
package observability

import (
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/dustin/go-humanize"

	"github.com/code-bush/robustack-dl/internal/archive"
	"github.com/code-bush/robustack-dl/internal/audit"
	"github.com/code-bush/robustack-dl/internal/integrity"
	"github.com/code-bush/robustack-dl/internal/types"
)

const (
	// boxWidth is the default width for formatted output boxes
	boxWidth = 60
	// maxItemsToShow is the default number of items to display in lists
	maxItemsToShow = 5
)

// Printer handles formatted output for the CLI.
type Printer struct {
	out io.Writer
}

// NewPrinter creates a new Printer that writes to the given writer
func NewPrinter(out io.Writer) *Printer {
	return &Printer{out: out}
}

// printBox prints a formatted box with a title and content
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) printBox(title string, content string) {
	border := strings.Repeat("─", boxWidth-2)
	fmt.Fprintf(p.out, "┌%s┐\n", border)
	fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, title)
	fmt.Fprintf(p.out, "├%s┤\n", border)

	lines := strings.Split(content, "\n")
	for _, line := range lines {
		// Truncate long lines; fmt pads by rune, so cut by rune too
		if utf8.RuneCountInString(line) > boxWidth-4 {
			line = string([]rune(line)[:boxWidth-7]) + "..."
		}
		fmt.Fprintf(p.out, "│ %-*s │\n", boxWidth-4, line)
	}

	fmt.Fprintf(p.out, "└%s┘\n", border)
}

// PrintRunSummary outputs the counters of a download run.
func (p *Printer) PrintRunSummary(s *archive.Summary) {
	if s == nil {
		return
	}

	var sb strings.Builder
	if s.DryRun {
		sb.WriteString(fmt.Sprintf("Posts matched: %d\n", s.Posts))
		sb.WriteString("Nothing written (dry run)\n")
		if len(s.Planned) > 0 {
			sb.WriteString("\nWould write:\n")
			count := min(len(s.Planned), maxItemsToShow)
			for i := 0; i < count; i++ {
				sb.WriteString(fmt.Sprintf("  • %s\n", s.Planned[i]))
			}
			if len(s.Planned) > maxItemsToShow {
				sb.WriteString(fmt.Sprintf("  ... and %d more\n", len(s.Planned)-maxItemsToShow))
			}
		}
		p.printBox("DRY RUN", strings.TrimSuffix(sb.String(), "\n"))
		return
	}

	sb.WriteString(fmt.Sprintf("Run:       %s\n", s.RunID))
	sb.WriteString(fmt.Sprintf("Posts:     %d\n", s.Posts))
	sb.WriteString(fmt.Sprintf("  written  %d\n", s.Written))
	sb.WriteString(fmt.Sprintf("  skipped  %d\n", s.Skipped))
	sb.WriteString(fmt.Sprintf("  failed   %d\n", s.Failed))
	if s.AssetsWritten+s.AssetsSkipped+s.AssetsFailed > 0 {
		sb.WriteString(fmt.Sprintf("Assets:    %d written, %d skipped, %d failed\n",
			s.AssetsWritten, s.AssetsSkipped, s.AssetsFailed))
	}
	sb.WriteString(fmt.Sprintf("Bytes:     %s\n", humanize.Bytes(uint64(max(s.BytesWritten, 0)))))
	sb.WriteString(fmt.Sprintf("Manifest:  %s", humanize.Comma(int64(s.ManifestEntries))))
	if s.ManifestSaved {
		sb.WriteString(" entries (saved)")
	} else {
		sb.WriteString(" entries (unchanged)")
	}
	if s.IndexWritten {
		sb.WriteString("\nIndex:     written")
	}

	p.printBox("ARCHIVE SUMMARY", sb.String())
}

// PrintAuditResult outputs the audit counters and every entry that did not pass.
func (p *Printer) PrintAuditResult(r *audit.Result) {
	if r == nil {
		return
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Manifest: %s\n", r.ManifestPath))
	sb.WriteString(fmt.Sprintf("Checked:  %d\n", r.Total()))
	sb.WriteString(fmt.Sprintf("Passed:   %d\n", r.Passed))
	sb.WriteString(fmt.Sprintf("Failed:   %d\n", r.Failed))
	sb.WriteString(fmt.Sprintf("Missing:  %d", r.Missing))

	problems := r.Problems()
	if len(problems) > 0 {
		sb.WriteString("\n\n")
		for i, e := range problems {
			mark := "✗"
			if e.Status == audit.StatusMissing {
				mark = "?"
			}
			sb.WriteString(fmt.Sprintf("%s %s\n", mark, e.Entry.LocalPath))
			sb.WriteString(fmt.Sprintf("  %s", problemDetail(e)))
			if i < len(problems)-1 {
				sb.WriteString("\n")
			}
		}
	}

	title := "✅ AUDIT PASSED"
	if !r.OK() {
		title = "⚠ AUDIT FAILED"
	}
	p.printBox(title, sb.String())
}

// PrintPosts outputs one line per listed post.
//
//nolint:errcheck // writing to stdout; errors are not recoverable
func (p *Printer) PrintPosts(posts []types.Post) {
	for _, post := range posts {
		date := post.Date()
		if date == "" {
			date = "----------"
		}
		fmt.Fprintf(p.out, "%s  %s\n", date, post.DisplayTitle())
		fmt.Fprintf(p.out, "            %s\n", post.CanonicalURL)
	}
	fmt.Fprintf(p.out, "\n%d posts\n", len(posts))
}

// problemDetail describes why an entry did not pass.
func problemDetail(e audit.EntryResult) string {
	switch {
	case e.Status == audit.StatusMissing:
		return "file missing"
	case errors.Is(e.Err, integrity.ErrHashMismatch):
		actual := shortFingerprint(e.Actual)
		if actual == "" {
			actual = "unreadable"
		}
		return fmt.Sprintf("hash mismatch: expected %s, got %s", shortFingerprint(e.Entry.Fingerprint), actual)
	case e.Err != nil:
		return e.Err.Error()
	}
	return string(e.Status)
}

func shortFingerprint(fp string) string {
	if len(fp) > integrity.PrefixLength {
		return fp[:integrity.PrefixLength]
	}
	return fp
}
