package cache

import (
	"net/http"
	"strings"
	"time"
	"unicode"
)

// DefaultDenyMarkers exclude mutation-flavoured paths from caching even when allow-listed.
var DefaultDenyMarkers = []string{"upload", "edit", "delete"}

type (
	// Rule allow-lists paths containing Pattern; TTL selects the content class lifetime.
	Rule struct {
		Pattern string        `toml:"pattern" json:"pattern" yaml:"pattern"`
		TTL     time.Duration `toml:"ttl" json:"ttl" yaml:"ttl"`
	}

	// Policy decides which safe reads are cacheable and for how long.
	Policy struct {
		Rules       []Rule
		DenyMarkers []string
		DefaultTTL  time.Duration
	}
)

// NewPolicy builds a policy with the default deny markers and TTL.
func NewPolicy(rules ...Rule) *Policy {
	return &Policy{
		Rules:       rules,
		DenyMarkers: append([]string(nil), DefaultDenyMarkers...),
		DefaultTTL:  DefaultTTL,
	}
}

// Match returns the most specific rule allowing path.
func (p *Policy) Match(requestPath string) (Rule, bool) {
	if p == nil || len(p.Rules) == 0 {
		return Rule{}, false
	}
	lowered := strings.ToLower(requestPath)
	if location, _, found := strings.Cut(lowered, "?"); found {
		lowered = location
	}
	if denied(lowered, p.DenyMarkers) {
		return Rule{}, false
	}
	var best Rule
	matched := false
	for _, rule := range p.Rules {
		pattern := strings.ToLower(strings.TrimSpace(rule.Pattern))
		if pattern == "" || !strings.Contains(lowered, pattern) {
			continue
		}
		if !matched || len(pattern) > len(best.Pattern) {
			best = Rule{Pattern: pattern, TTL: rule.TTL}
			matched = true
		}
	}
	return best, matched
}

// denied matches markers against the words of the path, so "edit" denies /cases/7/edit and
// /cases/edit-note but not /credits. A marker with separators in it matches as a substring.
func denied(lowered string, markers []string) bool {
	words := strings.FieldsFunc(lowered, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, marker := range markers {
		marker = strings.ToLower(strings.TrimSpace(marker))
		if marker == "" {
			continue
		}
		if strings.IndexFunc(marker, func(r rune) bool { return !unicode.IsLetter(r) && !unicode.IsDigit(r) }) != -1 {
			if strings.Contains(lowered, marker) {
				return true
			}
			continue
		}
		for _, word := range words {
			if word == marker {
				return true
			}
		}
	}
	return false
}

// Cacheable reports whether a request may be served from and stored into the cache.
func (p *Policy) Cacheable(method, requestPath string) bool {
	if !strings.EqualFold(strings.TrimSpace(method), http.MethodGet) {
		return false
	}
	_, ok := p.Match(requestPath)
	return ok
}

// TTL returns the lifetime for path, falling back to the policy default.
func (p *Policy) TTL(requestPath string) time.Duration {
	if rule, ok := p.Match(requestPath); ok && rule.TTL > 0 {
		return rule.TTL
	}
	if p != nil && p.DefaultTTL > 0 {
		return p.DefaultTTL
	}
	return DefaultTTL
}
