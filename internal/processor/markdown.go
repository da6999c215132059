package processor

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

var (
	whitespaceRun = regexp.MustCompile(`[ \t\r\n\f]+`)
	blankRun      = regexp.MustCompile(`\n{3,}`)
	listGap       = regexp.MustCompile(`\n\s*\n`)
)

// Elements whose whitespace-only text children are layout noise.
var blockContainers = map[string]bool{
	"html": true, "body": true, "div": true, "section": true, "article": true,
	"header": true, "footer": true, "main": true, "figure": true, "ul": true,
	"ol": true, "blockquote": true, "table": true, "thead": true, "tbody": true,
	"tr": true, "picture": true,
}

// ToMarkdown converts HTML to Markdown. Unknown elements are unwrapped and
// scripts and styles are dropped.
func ToMarkdown(content string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(content))
	if err != nil {
		return content
	}
	doc.Find("script, style, noscript, svg").Remove()

	body := doc.Find("body")
	if body.Length() == 0 {
		body = doc.Selection
	}

	var sb strings.Builder
	for _, n := range body.Nodes {
		sb.WriteString(renderChildren(n))
	}

	out := blankRun.ReplaceAllString(trimBlankLines(sb.String()), "\n\n")
	return strings.TrimSpace(out) + "\n"
}

func renderChildren(n *html.Node) string {
	var sb strings.Builder
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		sb.WriteString(render(c))
	}
	return sb.String()
}

func render(n *html.Node) string {
	switch n.Type {
	case html.TextNode:
		text := whitespaceRun.ReplaceAllString(n.Data, " ")
		if strings.TrimSpace(text) == "" && n.Parent != nil && blockContainers[n.Parent.Data] {
			return ""
		}
		return text
	case html.ElementNode:
	default:
		return renderChildren(n)
	}

	switch n.Data {
	case "h1", "h2", "h3", "h4", "h5", "h6":
		level := int(n.Data[1] - '0')
		return "\n\n" + strings.Repeat("#", level) + " " + strings.TrimSpace(renderChildren(n)) + "\n\n"
	case "p", "div", "section", "article", "figure", "header", "footer", "main", "table", "tr":
		return "\n\n" + strings.TrimSpace(renderChildren(n)) + "\n\n"
	case "figcaption":
		caption := strings.TrimSpace(renderChildren(n))
		if caption == "" {
			return ""
		}
		return "\n\n*" + caption + "*\n\n"
	case "br":
		return "  \n"
	case "hr":
		return "\n\n---\n\n"
	case "strong", "b":
		return wrapInline(renderChildren(n), "**")
	case "em", "i":
		return wrapInline(renderChildren(n), "*")
	case "s", "del", "strike":
		return wrapInline(renderChildren(n), "~~")
	case "code":
		return wrapInline(textContent(n), "`")
	case "pre":
		return "\n\n```\n" + strings.Trim(textContent(n), "\n") + "\n```\n\n"
	case "a":
		label := strings.TrimSpace(renderChildren(n))
		href := attr(n, "href")
		if href == "" {
			return label
		}
		if label == "" {
			label = href
		}
		return "[" + label + "](" + href + ")"
	case "img":
		src := attr(n, "src")
		if src == "" {
			return ""
		}
		return "![" + attr(n, "alt") + "](" + src + ")"
	case "ul":
		return renderList(n, false)
	case "ol":
		return renderList(n, true)
	case "blockquote":
		inner := strings.TrimSpace(blankRun.ReplaceAllString(renderChildren(n), "\n\n"))
		lines := strings.Split(inner, "\n")
		for i, line := range lines {
			lines[i] = strings.TrimRight("> "+strings.TrimSpace(line), " ")
		}
		return "\n\n" + strings.Join(lines, "\n") + "\n\n"
	case "td", "th":
		return strings.TrimSpace(renderChildren(n)) + " "
	case "script", "style", "noscript", "head", "title":
		return ""
	}
	return renderChildren(n)
}

func renderList(n *html.Node, ordered bool) string {
	var sb strings.Builder
	i := 0
	for li := n.FirstChild; li != nil; li = li.NextSibling {
		if li.Type != html.ElementNode || li.Data != "li" {
			continue
		}
		i++
		marker := "- "
		if ordered {
			marker = fmt.Sprintf("%d. ", i)
		}

		body := strings.TrimSpace(renderChildren(li))
		body = listGap.ReplaceAllString(body, "\n")
		pad := strings.Repeat(" ", len(marker))
		body = strings.ReplaceAll(body, "\n", "\n"+pad)
		sb.WriteString(marker + body + "\n")
	}
	return "\n\n" + sb.String() + "\n"
}

func wrapInline(s, mark string) string {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return s
	}
	lead := s[:len(s)-len(strings.TrimLeft(s, " "))]
	trail := s[len(strings.TrimRight(s, " ")):]
	return lead + mark + trimmed + mark + trail
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return sb.String()
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return strings.TrimSpace(a.Val)
		}
	}
	return ""
}

// trimBlankLines strips whitespace from lines that carry nothing else and
// from the start of content lines, leaving list indentation and hard
// breaks intact.
func trimBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	inFence := false
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			inFence = !inFence
			lines[i] = strings.TrimSpace(line)
			continue
		}
		if inFence {
			continue
		}
		if strings.TrimSpace(line) == "" {
			lines[i] = ""
			continue
		}
		if strings.HasPrefix(line, " ") && !strings.HasPrefix(line, "  ") {
			lines[i] = strings.TrimLeft(line, " ")
		}
	}
	return strings.Join(lines, "\n")
}
