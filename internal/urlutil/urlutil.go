// Package urlutil holds the URL helpers shared by the scraper, the cache
// and the evidence validator.
package urlutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"
)

// Canonicalize normalizes a URL for use as a cache key: only http/https
// schemes are accepted, the fragment is stripped, scheme and host are
// lowercased, and a single trailing slash on the path is trimmed.
// Canonicalize is idempotent.
func Canonicalize(raw string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return "", fmt.Errorf("invalid URL %q: %w", raw, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return "", fmt.Errorf("unsupported URL scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("URL %q has no host", raw)
	}

	u.Scheme = scheme
	u.Host = strings.ToLower(u.Host)
	u.Fragment = ""
	u.Path = strings.TrimSuffix(u.Path, "/")

	return u.String(), nil
}

// Hash returns the hex-encoded SHA-256 of the canonical URL string.
func Hash(canonical string) string {
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])
}

// Domain extracts the host from a URL and strips a leading "www.".
// Returns "" when the input does not parse.
func Domain(raw string) string {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return ""
	}
	host := strings.ToLower(u.Hostname())
	if host == "" {
		// Bare domains like "example.com" parse with an empty host.
		host = strings.ToLower(strings.Split(u.Path, "/")[0])
	}
	return strings.TrimPrefix(host, "www.")
}
