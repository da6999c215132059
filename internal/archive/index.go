package archive

import (
	"bytes"
	"fmt"
	"html/template"

	"github.com/code-bush/robustack-dl/internal/pathguard"
	"github.com/code-bush/robustack-dl/internal/types"
)

// IndexFileName is the archive overview page written with --create-archive.
const IndexFileName = "index.html"

var indexTemplate = template.Must(template.New(IndexFileName).Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Archive</title>
<style>
body { font-family: sans-serif; max-width: 48rem; margin: 2rem auto; padding: 0 1rem; }
li { margin: 0.4rem 0; }
.date { color: #666; font-family: monospace; margin-right: 0.8rem; }
</style>
</head>
<body>
<h1>Archive</h1>
<p>{{len .Posts}} posts</p>
<ul>
{{- range .Posts}}
<li><span class="date">{{.Date}}</span><a href="{{.Href}}">{{.Title}}</a></li>
{{- end}}
</ul>
</body>
</html>
`))

type indexPost struct {
	Date  string
	Title string
	Href  string
}

// RenderIndex renders the overview page linking every post.
func RenderIndex(posts []types.Post, format types.OutputFormat) ([]byte, error) {
	model := struct{ Posts []indexPost }{}
	for i := range posts {
		p := &posts[i]
		model.Posts = append(model.Posts, indexPost{
			Date:  p.Date(),
			Title: p.DisplayTitle(),
			Href:  PostFileName(*p, format),
		})
	}

	var buf bytes.Buffer
	if err := indexTemplate.Execute(&buf, model); err != nil {
		return nil, fmt.Errorf("failed to render index: %w", err)
	}
	return buf.Bytes(), nil
}

// writeIndex writes index.html unless the existing file is already identical.
func writeIndex(root pathguard.Root, posts []types.Post, format types.OutputFormat) (bool, error) {
	data, err := RenderIndex(posts, format)
	if err != nil {
		return false, err
	}

	if existing, err := root.ReadFile(IndexFileName); err == nil && bytes.Equal(existing, data) {
		return false, nil
	}

	if _, err := root.WriteFile(IndexFileName, data); err != nil {
		return false, fmt.Errorf("failed to write %s: %w", IndexFileName, err)
	}
	return true, nil
}
