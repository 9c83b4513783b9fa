package templates

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/hazyhaar/templio/sanitize"
)

func (l LimitsConfig) title(raw string) (string, error) {
	t := strings.TrimSpace(raw)
	switch {
	case t == "":
		return "", &ValidationError{Field: "title", Message: "Title is required"}
	case utf8.RuneCountInString(t) > l.MaxTitleLen:
		return "", &ValidationError{Field: "title", Message: fmt.Sprintf("Title must be %d characters or less", l.MaxTitleLen)}
	case strings.Contains(strings.ToLower(t), "<script"):
		return "", &ValidationError{Field: "title", Message: "Title contains invalid characters"}
	}
	return t, nil
}

func (l LimitsConfig) description(raw string) (string, error) {
	d := strings.TrimSpace(raw)
	if utf8.RuneCountInString(d) > l.MaxDescriptionLen {
		return "", &ValidationError{Field: "description", Message: fmt.Sprintf("Description must be %d characters or less", l.MaxDescriptionLen)}
	}
	return sanitize.SanitizeDescription(d), nil
}

// htmlCode rejects empty or oversized input before any pipeline stage, then
// requires the sanitizer to accept it.
func (l LimitsConfig) htmlCode(p *sanitize.Policy) func(string) error {
	return func(raw string) error {
		if strings.TrimSpace(raw) == "" {
			return &ValidationError{Field: "html_code", Message: sanitize.ErrRequired}
		}
		if len(raw) > l.MaxHTMLBytes {
			return &ValidationError{Field: "html_code", Message: fmt.Sprintf("HTML code must be %d MB or less", l.MaxHTMLBytes/(1024*1024))}
		}
		if res := p.Sanitize(raw); !res.Valid {
			return &ValidationError{Field: "html_code", Message: res.Error}
		}
		return nil
	}
}
