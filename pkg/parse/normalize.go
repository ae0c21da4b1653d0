package parse

import (
	"fmt"
	"net"
	"net/url"
	"sort"
	"strings"

	"github.com/Sriram-PR/amazon-crawler/pkg/utils"
)

// NormalizeURL standardizes a URL for comparison and queue membership.
// It lowercases the scheme and host, removes default ports (80 for http, 443 for https), removes trailing slashes from paths (unless root "/"), ensures empty path becomes "/", removes the fragment and sorts query parameters.
// Query parameters are kept: listing and review pagination differ only by query.
// Parameters named in dropParams are removed. Does not modify the input *url.URL
func NormalizeURL(u *url.URL, dropParams ...string) string {
	if u == nil {
		return ""
	}
	// Work on a copy
	normalized := *u

	normalized.Scheme = strings.ToLower(normalized.Scheme)
	normalized.Host = strings.ToLower(normalized.Host)

	// Remove default ports
	host, port, err := net.SplitHostPort(normalized.Host)
	if err == nil { // Host included a port
		if (normalized.Scheme == "http" && port == "80") ||
			(normalized.Scheme == "https" && port == "443") {
			normalized.Host = host
		}
	}

	if normalized.Path == "" {
		normalized.Path = "/"
	} else if len(normalized.Path) > 1 && strings.HasSuffix(normalized.Path, "/") {
		normalized.Path = normalized.Path[:len(normalized.Path)-1]
	}
	normalized.RawPath = ""

	normalized.Fragment = ""
	normalized.RawFragment = ""
	normalized.RawQuery = sortedQuery(normalized.RawQuery, dropParams)
	normalized.ForceQuery = false

	return normalized.String()
}

// sortedQuery re-encodes a raw query with keys and values in sorted order
func sortedQuery(rawQuery string, dropParams []string) string {
	if rawQuery == "" {
		return ""
	}
	params, err := url.ParseQuery(rawQuery)
	if err != nil {
		return rawQuery // Keep malformed queries verbatim rather than losing them
	}
	for _, p := range dropParams {
		params.Del(p)
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		vals := params[k]
		sort.Strings(vals)
		for _, v := range vals {
			parts = append(parts, url.QueryEscape(k)+"="+url.QueryEscape(v))
		}
	}
	return strings.Join(parts, "&")
}

// ParseAndNormalize parses an absolute URL (scheme and host required) and normalizes it using NormalizeURL.
// The fragment is split off by the parser and dropped by normalization.
// Returns the normalized string, the parsed URL object, and any parse error
func ParseAndNormalize(urlStr string, dropParams ...string) (string, *url.URL, error) {
	parsed, err := url.Parse(strings.TrimSpace(urlStr))
	if err != nil {
		return "", nil, err
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return "", nil, fmt.Errorf("%w: not an absolute URL: %q", utils.ErrParsing, urlStr)
	}
	return NormalizeURL(parsed, dropParams...), parsed, nil
}

// ResolveAndNormalize resolves href against base and normalizes the result.
// Returns "" for empty, javascript:, mailto: and non-http(s) hrefs.
func ResolveAndNormalize(base *url.URL, href string, dropParams ...string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return ""
	}
	lower := strings.ToLower(href)
	if strings.HasPrefix(lower, "javascript:") || strings.HasPrefix(lower, "mailto:") {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	if abs.Scheme != "http" && abs.Scheme != "https" {
		return ""
	}
	return NormalizeURL(abs, dropParams...)
}
