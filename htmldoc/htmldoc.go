// Package htmldoc tells complete HTML documents from fragments and wraps
// fragments in the minimal shell templates are rendered in.
package htmldoc

import (
	"html"
	"regexp"
	"strings"
)

var fullDocRe = regexp.MustCompile(`(?i)<!doctype\s+html|<html[\s>]`)

// IsFullDocument reports whether s declares a doctype or an <html> root.
func IsFullDocument(s string) bool {
	return fullDocRe.MatchString(s)
}

const shellHead = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="UTF-8" />
<meta name="viewport" content="width=device-width, initial-scale=1.0" />
<title>`

const shellStyle = `</title>
<style>
* { margin: 0; padding: 0; box-sizing: border-box; }
html, body { width: 100%; min-height: 100vh; }
</style>
</head>
<body>
`

const shellTail = `
</body>
</html>`

// Wrap places fragment in the shell document. The title is escaped; the
// fragment is inserted as is.
func Wrap(fragment, title string) string {
	if title == "" {
		title = "Template"
	}
	var b strings.Builder
	b.Grow(len(shellHead) + len(shellStyle) + len(shellTail) + len(fragment) + len(title))
	b.WriteString(shellHead)
	b.WriteString(html.EscapeString(title))
	b.WriteString(shellStyle)
	b.WriteString(fragment)
	b.WriteString(shellTail)
	return b.String()
}
