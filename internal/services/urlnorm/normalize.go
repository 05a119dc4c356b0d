// Package urlnorm implements the URL normalization rule applied at every
// boundary that writes or looks up a blog URL (spec §3): lowercase the
// host, strip a single leading "www.", drop a trailing "/" on non-root
// paths, default the scheme to https, and preserve path case, query, and
// fragment. Normalization is idempotent.
package urlnorm

import (
	"fmt"
	"net/url"
	"strings"
)

// Normalize returns the canonical form of raw per spec §3. It fails if raw
// is empty, cannot be parsed as a URL, or has no host.
func Normalize(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", fmt.Errorf("empty url")
	}

	if !strings.Contains(raw, "://") {
		raw = "https://" + raw
	}

	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("failed to parse url: %w", err)
	}
	if u.Host == "" {
		return "", fmt.Errorf("url has no host")
	}

	if u.Scheme == "" {
		u.Scheme = "https"
	}
	u.Scheme = strings.ToLower(u.Scheme)

	host := strings.ToLower(u.Host)
	host = strings.TrimPrefix(host, "www.")
	u.Host = host

	if u.Path != "/" {
		u.Path = strings.TrimSuffix(u.Path, "/")
	}

	return u.String(), nil
}

// Host extracts the lowercase, www-stripped host from a normalized URL.
func Host(normalizedURL string) (string, error) {
	u, err := url.Parse(normalizedURL)
	if err != nil {
		return "", fmt.Errorf("failed to parse normalized url: %w", err)
	}
	return u.Host, nil
}

// MatchesDomain reports whether host equals domain, or is a subdomain of it
// (suffix match on a dot boundary).
func MatchesDomain(host, domain string) bool {
	host = strings.ToLower(host)
	domain = strings.ToLower(domain)
	if host == domain {
		return true
	}
	return strings.HasSuffix(host, "."+domain)
}
