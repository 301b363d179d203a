package logging

import (
	"log/slog"
	"regexp"
	"strings"
)

// Redactor masks credentials in log values.
type Redactor struct {
	patterns      []*redactPattern
	sensitiveKeys map[string]bool
}

type redactPattern struct {
	regex       *regexp.Regexp
	replacement string
}

// NewRedactor creates a Redactor with the built-in patterns.
func NewRedactor() *Redactor {
	return &Redactor{
		patterns: []*redactPattern{
			// Anthropic and other sk- style keys
			{regexp.MustCompile(`sk-[a-zA-Z0-9_\-]{8,}`), "sk-***"},
			{regexp.MustCompile(`Bearer\s+[a-zA-Z0-9\-._~+/]+=*`), "Bearer ***"},
			{regexp.MustCompile(`(?i)(password|passwd|pwd)[:=]\s*[^\s]+`), "$1: ***"},
		},
		sensitiveKeys: map[string]bool{
			"api_key":       true,
			"apikey":        true,
			"x-api-key":     true,
			"authorization": true,
			"password":      true,
			"secret":        true,
		},
	}
}

// RedactString masks credentials inside value.
func (r *Redactor) RedactString(value string) string {
	if value == "" {
		return value
	}
	for _, p := range r.patterns {
		value = p.regex.ReplaceAllString(value, p.replacement)
	}
	return value
}

// RedactAttr masks the value of a sensitive key entirely and scrubs
// credentials from any other string value, recursing into groups.
func (r *Redactor) RedactAttr(a slog.Attr) slog.Attr {
	if r.sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, "***")
	}

	v := a.Value.Resolve()
	switch v.Kind() {
	case slog.KindString:
		return slog.String(a.Key, r.RedactString(v.String()))
	case slog.KindGroup:
		group := v.Group()
		out := make([]any, len(group))
		for i, ga := range group {
			out[i] = r.RedactAttr(ga)
		}
		return slog.Group(a.Key, out...)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return slog.String(a.Key, r.RedactString(err.Error()))
		}
	}
	return a
}
