package sanitize

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// deniedElements are removed along with everything inside them.
var deniedElements = map[string]bool{
	"script": true,
	"iframe": true,
	"object": true,
	"embed":  true,
}

var styleThreats = []string{"javascript:", "vbscript:", "expression("}

// denyPass removes denied elements and on* attributes. Tokens it does not
// change are copied byte for byte so a second pass is a no-op.
func denyPass(in string, scrubStyles bool) string {
	z := html.NewTokenizer(strings.NewReader(in))
	var buf bytes.Buffer
	buf.Grow(len(in))
	depth := 0 // >0 while inside a denied element

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF or a malformed tail; either way the input is consumed.
			return buf.String()
		}

		raw := z.Raw()
		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if deniedElements[string(name)] {
				// Browsers ignore the self-closing flag on these, so <script/>
				// still opens an element.
				if string(name) != "embed" {
					depth++
				}
				continue
			}
			if depth > 0 {
				continue
			}
			if !hasAttr {
				buf.Write(raw)
				continue
			}
			tok := tokenFrom(string(name), tt, z)
			if kept, changed := filterAttrs(tok.Attr, scrubStyles); changed {
				tok.Attr = kept
				buf.WriteString(tok.String())
			} else {
				buf.Write(raw)
			}

		case html.EndTagToken:
			name, _ := z.TagName()
			if deniedElements[string(name)] {
				if depth > 0 && string(name) != "embed" {
					depth--
				}
				continue
			}
			if depth == 0 {
				buf.Write(raw)
			}

		default:
			if depth == 0 {
				buf.Write(raw)
			}
		}
	}
}

// treeRounds bounds parse/render cycles in treePass.
const treeRounds = 4

// treePass re-checks in on the tree a browser would build. The tokenizer
// reads every <style> body as raw text, but inside <svg> or <math> the
// body is markup, so a handler can hide there from denyPass. When the
// tree is clean in is returned as is; otherwise the cleaned tree is
// rendered and checked again until it parses clean.
func treePass(in string, scrubStyles bool) string {
	for range treeRounds {
		nodes, err := html.ParseFragment(strings.NewReader(in), bodyContext())
		if err != nil {
			return ""
		}
		changed := false
		for _, n := range nodes {
			changed = cleanTree(n, scrubStyles) || changed
		}
		if !changed {
			return in
		}
		var b strings.Builder
		for _, n := range nodes {
			if !denied(n) {
				html.Render(&b, n)
			}
		}
		in = b.String()
	}
	// Still changing after every round: give up on the markup.
	return ""
}

func bodyContext() *html.Node {
	return &html.Node{Type: html.ElementNode, Data: "body", DataAtom: atom.Body}
}

func denied(n *html.Node) bool {
	return n.Type == html.ElementNode && deniedElements[strings.ToLower(n.Data)]
}

// cleanTree strips on* attributes below and including n and removes
// denied descendants. A denied n itself is left to the caller.
func cleanTree(n *html.Node, scrubStyles bool) bool {
	changed := false
	if n.Type == html.ElementNode {
		if kept, ch := filterAttrs(n.Attr, scrubStyles); ch {
			n.Attr = kept
			changed = true
		}
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if denied(c) {
			n.RemoveChild(c)
			changed = true
		} else {
			changed = cleanTree(c, scrubStyles) || changed
		}
		c = next
	}
	return changed || denied(n)
}

func tokenFrom(name string, tt html.TokenType, z *html.Tokenizer) html.Token {
	tok := html.Token{Type: tt, Data: name}
	for {
		key, val, more := z.TagAttr()
		tok.Attr = append(tok.Attr, html.Attribute{Key: string(key), Val: string(val)})
		if !more {
			return tok
		}
	}
}

func filterAttrs(attrs []html.Attribute, scrubStyles bool) ([]html.Attribute, bool) {
	kept := attrs[:0:0]
	changed := false
	for _, a := range attrs {
		key := strings.ToLower(a.Key)
		if strings.HasPrefix(key, "on") {
			changed = true
			continue
		}
		if scrubStyles && key == "style" && hasStyleThreat(a.Val) {
			changed = true
			continue
		}
		kept = append(kept, a)
	}
	return kept, changed
}

func hasStyleThreat(v string) bool {
	v = strings.ToLower(strings.Join(strings.Fields(v), ""))
	for _, t := range styleThreats {
		if strings.Contains(v, t) {
			return true
		}
	}
	return false
}
