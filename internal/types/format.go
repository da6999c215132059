package types

import (
	"fmt"
	"strings"
)

// OutputFormat is the on-disk format of archived posts.
type OutputFormat string

const (
	FormatHTML     OutputFormat = "html"
	FormatMarkdown OutputFormat = "md"
	FormatText     OutputFormat = "txt"
)

// ParseOutputFormat accepts html, md/markdown and txt/text.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "html":
		return FormatHTML, nil
	case "md", "markdown":
		return FormatMarkdown, nil
	case "txt", "text":
		return FormatText, nil
	}
	return "", fmt.Errorf("unknown output format %q (want html, md or txt)", s)
}

// Extension returns the file extension without the dot.
func (f OutputFormat) Extension() string {
	return string(f)
}

// ImageQuality selects the width requested from the image CDN.
type ImageQuality string

const (
	QualityHigh   ImageQuality = "high"
	QualityMedium ImageQuality = "medium"
	QualityLow    ImageQuality = "low"
)

// ParseImageQuality accepts high, medium and low.
func ParseImageQuality(s string) (ImageQuality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "high":
		return QualityHigh, nil
	case "medium":
		return QualityMedium, nil
	case "low":
		return QualityLow, nil
	}
	return "", fmt.Errorf("unknown image quality %q (want high, medium or low)", s)
}

// Width is the CDN width for the quality; zero keeps the original.
func (q ImageQuality) Width() int {
	switch q {
	case QualityMedium:
		return 800
	case QualityLow:
		return 400
	}
	return 0
}
