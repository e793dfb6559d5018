package sanitize

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

type (
	// Sanitizer strips executable markup from every string of a JSON document.
	Sanitizer struct {
		policy *bluemonday.Policy
	}

	Option func(s *Sanitizer)
)

// WithPolicy replaces the default user generated content policy.
func WithPolicy(policy *bluemonday.Policy) Option {
	return func(s *Sanitizer) {
		if policy != nil {
			s.policy = policy
		}
	}
}

// WithStrictPolicy removes all markup, keeping text only.
func WithStrictPolicy() Option {
	return WithPolicy(bluemonday.StrictPolicy())
}

func New(options ...Option) *Sanitizer {
	ret := &Sanitizer{}
	for _, opt := range options {
		opt(ret)
	}
	if ret.policy == nil {
		ret.policy = bluemonday.UGCPolicy()
	}
	return ret
}

// String sanitizes a single value. Text without markup is returned untouched.
func (s *Sanitizer) String(value string) string {
	if !strings.ContainsRune(value, '<') {
		return value
	}
	return s.policy.Sanitize(value)
}

// Value walks a decoded JSON tree (maps, slices, strings) and sanitizes strings in place.
// Object keys are sanitized too. It reports whether anything changed.
func (s *Sanitizer) Value(value any) (any, bool) {
	switch actual := value.(type) {
	case string:
		sanitized := s.String(actual)
		return sanitized, sanitized != actual
	case map[string]any:
		changed := false
		for k, v := range actual {
			sanitizedValue, valueChanged := s.Value(v)
			sanitizedKey := s.String(k)
			if sanitizedKey != k {
				delete(actual, k)
				changed = true
			}
			actual[sanitizedKey] = sanitizedValue
			changed = changed || valueChanged
		}
		return actual, changed
	case []any:
		changed := false
		for i, v := range actual {
			var itemChanged bool
			actual[i], itemChanged = s.Value(v)
			changed = changed || itemChanged
		}
		return actual, changed
	}
	return value, false
}

// JSON sanitizes an encoded document. The input is returned as is when nothing changed,
// so numbers and key order survive for clean payloads.
func (s *Sanitizer) JSON(data []byte) ([]byte, bool, error) {
	if len(bytes.TrimSpace(data)) == 0 || !mayContainMarkup(data) {
		return data, false, nil
	}
	decoder := json.NewDecoder(bytes.NewReader(data))
	decoder.UseNumber()
	var tree any
	if err := decoder.Decode(&tree); err != nil {
		return nil, false, fmt.Errorf("failed to decode payload: %w", err)
	}
	sanitized, changed := s.Value(tree)
	if !changed {
		return data, false, nil
	}
	buffer := &bytes.Buffer{}
	encoder := json.NewEncoder(buffer)
	encoder.SetEscapeHTML(false)
	if err := encoder.Encode(sanitized); err != nil {
		return nil, false, fmt.Errorf("failed to encode payload: %w", err)
	}
	return bytes.TrimRight(buffer.Bytes(), "\n"), true, nil
}

func mayContainMarkup(data []byte) bool {
	return bytes.ContainsRune(data, '<') || bytes.Contains(bytes.ToLower(data), []byte(`\u003c`))
}
