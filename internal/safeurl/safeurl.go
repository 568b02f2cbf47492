// Package safeurl classifies source strings before any I/O happens on them.
package safeurl

import (
	"net/url"
	"strings"
)

// IsHTTPOrHTTPS returns true if u is a valid URL with scheme http or https.
// Used to reject file://, ftp://, and other schemes that could lead to SSRF or
// local file access through a remote-looking source string.
func IsHTTPOrHTTPS(u string) bool {
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	s := parsed.Scheme
	return s == "http" || s == "https"
}

// IsLocal reports whether a source string is a plain filesystem path rather
// than a URL. Anything carrying a scheme separator is treated as remote and
// must pass IsHTTPOrHTTPS instead.
func IsLocal(s string) bool {
	return !strings.Contains(s, "://")
}
