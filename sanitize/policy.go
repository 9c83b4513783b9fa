// CLAUDE:SUMMARY Allow-list HTML sanitizer (bluemonday) followed by a deny-list token pass (x/net/html) that strips script-capable elements and on* handlers.
// Package sanitize turns untrusted HTML into markup that is safe to show in
// a preview. Sanitizing is two passes: a bluemonday allow-list policy, then
// a deny-list pass over its output that removes script, iframe, object and
// embed elements together with every on* attribute, whatever their case or
// depth. The deny-list is then checked again on the parsed tree, so markup
// inside SVG or MathML <style> is judged the way a browser reads it. Text
// is preserved, and sanitizing sanitized output changes nothing.
package sanitize

import (
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// ErrRequired is the message of a Result for empty input.
const ErrRequired = "HTML code is required"

// Result is the outcome of one sanitization.
type Result struct {
	Valid     bool   `json:"valid"`
	Sanitized string `json:"sanitized"`
	Error     string `json:"error,omitempty"`
}

var structuralElements = []string{
	"p", "br", "strong", "em", "u", "s", "h1", "h2", "h3", "h4", "h5", "h6",
	"ul", "ol", "li", "a", "img", "div", "span", "section", "article",
	"header", "footer", "nav", "main", "aside", "blockquote", "pre", "code",
	"hr", "dl", "dt", "dd", "figure", "figcaption",
	"table", "thead", "tbody", "tr", "td", "th",
	"form", "input", "button", "textarea", "select", "label",
	"video", "audio", "source", "track", "canvas",
	"style", "link", "meta",
}

// The tokenizer lowercases names, so camelCase SVG names are listed lowered.
var svgElements = []string{
	"svg", "path", "circle", "rect", "line", "polyline", "polygon",
	"ellipse", "text", "g", "defs", "use", "clippath", "mask", "pattern",
	"lineargradient", "radialgradient", "stop",
}

var globalAttrs = []string{
	"href", "src", "alt", "title", "class", "id", "style", "width", "height",
	"target", "rel", "type", "value", "name", "placeholder", "required",
	"disabled", "checked", "selected", "rows", "cols", "maxlength",
	"minlength", "pattern", "autocomplete", "autofocus", "readonly",
	"aria-label", "aria-labelledby", "role",
	"viewbox", "fill", "stroke", "stroke-width", "cx", "cy", "r", "x", "y",
	"x1", "y1", "x2", "y2", "points", "d", "transform",
}

// Policy is a compiled sanitizer. It is safe for concurrent use.
type Policy struct {
	allow       *bluemonday.Policy
	scrubStyles bool
}

// Option configures a Policy.
type Option func(*Policy)

// WithStyleScrub drops style attributes whose value contains javascript:,
// vbscript: or expression(. Without it style values pass through untouched.
func WithStyleScrub() Option {
	return func(p *Policy) { p.scrubStyles = true }
}

// NewPolicy builds the template policy.
func NewPolicy(opts ...Option) *Policy {
	bp := bluemonday.NewPolicy()
	elements := append(append([]string{}, structuralElements...), svgElements...)
	bp.AllowElements(elements...)
	bp.AllowNoAttrs().OnElements(elements...)
	bp.AllowAttrs(globalAttrs...).Globally()
	bp.AllowDataAttributes()
	bp.AllowURLSchemes("http", "https", "mailto")
	bp.AllowRelativeURLs(true)
	bp.AllowDataURIImages()
	// style element bodies are kept verbatim; without this they are dropped.
	bp.AllowUnsafe(true)

	p := &Policy{allow: bp}
	for _, o := range opts {
		o(p)
	}
	return p
}

// NewDescriptionPolicy builds the restricted policy used for template
// descriptions: basic inline formatting, lists and links.
func NewDescriptionPolicy() *Policy {
	bp := bluemonday.NewPolicy()
	bp.AllowElements("p", "br", "strong", "em", "u", "s", "a", "ul", "ol", "li")
	bp.AllowAttrs("href", "target", "rel").OnElements("a")
	bp.AllowURLSchemes("http", "https", "mailto")
	bp.AllowRelativeURLs(true)
	return &Policy{allow: bp}
}

// Sanitize runs both passes over raw.
func (p *Policy) Sanitize(raw string) Result {
	if strings.TrimSpace(raw) == "" {
		return Result{Valid: false, Error: ErrRequired}
	}
	out := p.allow.Sanitize(raw)
	out = denyPass(out, p.scrubStyles)
	out = treePass(out, p.scrubStyles)
	return Result{Valid: true, Sanitized: out}
}

var (
	defaultPolicy     = NewPolicy()
	descriptionPolicy = NewDescriptionPolicy()
)

// Sanitize sanitizes raw with the default template policy.
func Sanitize(raw string) Result { return defaultPolicy.Sanitize(raw) }

// SanitizeDescription sanitizes a description with the restricted policy.
// Empty input yields an empty string.
func SanitizeDescription(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}
	return descriptionPolicy.Sanitize(raw).Sanitized
}
