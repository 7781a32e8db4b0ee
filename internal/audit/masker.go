package audit

import (
	"fmt"
	"regexp"
)

const maskedValue = "***"

// DefaultSensitivePatterns masks the usual credential-bearing keys.
var DefaultSensitivePatterns = []string{`(?i)password`, `(?i)secret`, `(?i)token`, `(?i)otp`, `(?i)ssn`}

// Masker replaces the values of keys matching any pattern, at any depth.
type Masker struct {
	patterns []*regexp.Regexp
}

// NewMasker compiles patterns.
func NewMasker(patterns []string) (*Masker, error) {
	m := &Masker{patterns: make([]*regexp.Regexp, 0, len(patterns))}
	for _, p := range patterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid mask pattern %q: %w", p, err)
		}
		m.patterns = append(m.patterns, re)
	}
	return m, nil
}

// MustNewMasker is like NewMasker but panics on an invalid pattern.
func MustNewMasker(patterns []string) *Masker {
	m, err := NewMasker(patterns)
	if err != nil {
		panic(err)
	}
	return m
}

// Mask returns a masked deep copy of payload; payload is not modified.
func (m *Masker) Mask(payload map[string]any) map[string]any {
	if payload == nil {
		return nil
	}
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		if m.sensitive(k) {
			out[k] = maskedValue
			continue
		}
		out[k] = m.maskValue(v)
	}
	return out
}

func (m *Masker) maskValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return m.Mask(t)
	case []any:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = m.maskValue(e)
		}
		return out
	default:
		return v
	}
}

func (m *Masker) sensitive(key string) bool {
	if m == nil {
		return false
	}
	for _, p := range m.patterns {
		if p.MatchString(key) {
			return true
		}
	}
	return false
}
