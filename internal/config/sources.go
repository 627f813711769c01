package config

import (
	"errors"
	"net/url"
	"strings"
)

var ErrInvalidSource = errors.New("config: import source must be an http(s) url")

// NormalizeSources trims and deduplicates source URLs. Order is kept because the
// first source listed wins when two sources name the same hostname.
func NormalizeSources(entries []string) []string {
	unique := make(map[string]struct{}, len(entries))
	normalized := make([]string, 0, len(entries))

	for _, raw := range entries {
		src := strings.TrimSpace(raw)
		if src == "" {
			continue
		}
		if _, exists := unique[src]; exists {
			continue
		}
		unique[src] = struct{}{}
		normalized = append(normalized, src)
	}

	return normalized
}

// InvalidSources returns the entries that are not absolute http or https URLs.
func InvalidSources(entries []string) []string {
	var invalid []string
	for _, raw := range NormalizeSources(entries) {
		if !isHTTPURL(raw) {
			invalid = append(invalid, raw)
		}
	}
	return invalid
}

func isHTTPURL(raw string) bool {
	parsed, err := url.Parse(raw)
	if err != nil {
		return false
	}
	scheme := strings.ToLower(parsed.Scheme)
	return (scheme == "http" || scheme == "https") && parsed.Hostname() != ""
}
