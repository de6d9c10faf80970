package exporter

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
)

var reportPage = template.Must(template.New("report").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>{{.Title}}</title>
<style>
body { font-family: sans-serif; margin: 2rem; }
body.dark { background: #1e1e1e; color: #eee; }
table { border-collapse: collapse; width: 100%; }
th, td { border: 1px solid #ccc; padding: 4px 8px; text-align: left; }
.meta { color: #777; font-size: 0.9em; }
</style>
</head>
<body class="{{.Theme}}">
<h1>{{.Title}}</h1>
{{if .Description}}<p>{{.Description}}</p>{{end}}
<p class="meta">{{.Status}} &middot; generated {{.GeneratedAt.Format "2006-01-02 15:04 MST"}}</p>
{{if .Components}}<h2>Components</h2>
<ul>{{range .Components}}
<li>{{.Title}} <span class="meta">({{.Type}}{{if .DataSourceID}}, {{.DataSourceID}}{{end}})</span></li>{{end}}
</ul>{{end}}
<table>
<thead><tr><th>Section</th><th>Key</th><th>Value</th></tr></thead>
<tbody>{{range .Rows}}
<tr><td>{{.Section}}</td><td>{{.Key}}</td><td>{{.Value}}</td></tr>{{end}}
</tbody>
</table>
</body>
</html>
`))

// HTMLRenderer produces a standalone page. The PDF and PNG renderers print it.
type HTMLRenderer struct{}

func (HTMLRenderer) Render(_ context.Context, doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := reportPage.Execute(&buf, doc); err != nil {
		return nil, fmt.Errorf("render html: %w", err)
	}
	return buf.Bytes(), nil
}
