package gtmfactory

import (
	"bytes"
	"fmt"
	"html"
	"io"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
)

var markdown = goldmark.New(goldmark.WithExtensions(extension.Strikethrough))

const pageTemplate = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>%s</title>
<style>
body { font-family: sans-serif; max-width: 50rem; margin: 2rem auto; line-height: 1.5; }
del { color: #888; }
</style>
</head>
<body>
%s</body>
</html>
`

// WriteHTML converts markdown to a standalone HTML page. Struck-through
// markdown (invalidated claims) becomes <del>.
func WriteHTML(w io.Writer, title, md string) error {
	var body bytes.Buffer
	if err := markdown.Convert([]byte(md), &body); err != nil {
		return fmt.Errorf("convert markdown: %w", err)
	}
	_, err := fmt.Fprintf(w, pageTemplate, html.EscapeString(title), body.String())
	return err
}
