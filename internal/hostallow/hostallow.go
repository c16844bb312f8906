// Package hostallow gates which destinations may receive injected
// credentials. Matching is purely structural: hostnames are compared
// against glob patterns, never resolved.
package hostallow

import (
	"net/url"
	"path"
	"strings"
)

// Patterns is an ordered host allowlist. A nil Patterns means "allow all",
// which is distinct from an empty list (which matches nothing).
type Patterns []string

// FromList builds Patterns from a comma-separated host list, trimming
// whitespace around each entry. An empty or all-whitespace input returns
// nil, the allow-all sentinel.
func FromList(list string) Patterns {
	if strings.TrimSpace(list) == "" {
		return nil
	}

	var patterns Patterns
	for _, p := range strings.Split(list, ",") {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, p)
		}
	}
	return patterns
}

// Allowed reports whether the hostname of rawURL matches any pattern.
//
// A nil pattern list allows every destination. The hostname is extracted
// with the port stripped and lower-cased before matching (hostnames are
// case-insensitive per DNS). Each pattern is a glob over the whole
// hostname: '*' matches any run of characters, '?' exactly one, and
// [...] character classes are supported. Malformed URLs and URLs without
// a hostname are rejected.
func (p Patterns) Allowed(rawURL string) bool {
	if p == nil {
		return true
	}

	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return false
	}

	for _, pattern := range p {
		// hostnames contain no '/', so path.Match is a whole-string glob
		ok, err := path.Match(strings.ToLower(pattern), host)
		if err == nil && ok {
			return true
		}
	}

	return false
}
