package importer

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
)

// UTMParams are the tracking parameters a link can carry.
var UTMParams = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}

// ExtractUTM removes utm_* parameters from rawURL's query and returns them.
// The first value wins when a parameter repeats. Other parameters keep their
// order and encoding.
func ExtractUTM(rawURL string) (string, map[string]string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", nil, fmt.Errorf("parse url: %w", err)
	}
	params := make(map[string]string)
	if u.RawQuery == "" {
		return rawURL, params, nil
	}

	var kept []string
	for _, part := range strings.Split(u.RawQuery, "&") {
		if part == "" {
			continue
		}
		rawKey, rawValue, _ := strings.Cut(part, "=")
		key, err := url.QueryUnescape(rawKey)
		if err != nil || !slices.Contains(UTMParams, key) {
			kept = append(kept, part)
			continue
		}
		if _, seen := params[key]; seen {
			continue
		}
		value, err := url.QueryUnescape(rawValue)
		if err != nil {
			value = rawValue
		}
		params[key] = value
	}

	u.RawQuery = strings.Join(kept, "&")
	return u.String(), params, nil
}

// MergeUTM overlays the non-empty values of overrides on fromURL.
func MergeUTM(fromURL, overrides map[string]string) map[string]string {
	out := make(map[string]string, len(fromURL)+len(overrides))
	for k, v := range fromURL {
		out[k] = v
	}
	for k, v := range overrides {
		if v != "" {
			out[k] = v
		}
	}
	return out
}
