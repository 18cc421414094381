// Package listing defines vehicle listing records and the canonical form of
// detail-page URLs used as the deduplication key.
package listing

import (
	"net/url"
	"strings"
)

const idParam = "id"

// trimArtifacts strips whitespace, trailing commas and surrounding quotes that
// leak in from copy-pasted URL lists. The artifacts can nest, as in
// `"url ,"`, so trimming repeats until nothing changes.
func trimArtifacts(raw string) string {
	s := raw
	for {
		next := strings.TrimSpace(s)
		next = strings.TrimRight(next, " ,")
		next = strings.Trim(next, `"'`)
		if next == s {
			return s
		}
		s = next
	}
}

// Canonicalize reduces a detail URL to scheme://host/path?id=<id>.
// URLs without an id parameter are returned trimmed but otherwise unchanged.
func Canonicalize(raw string) string {
	s := trimArtifacts(raw)
	u, err := url.Parse(s)
	if err != nil {
		return s
	}
	id := u.Query().Get(idParam)
	if id == "" || u.Opaque != "" {
		return s
	}
	query := "?" + idParam + "=" + url.QueryEscape(id)
	if u.Host == "" {
		return u.EscapedPath() + query
	}
	return u.Scheme + "://" + u.Host + u.EscapedPath() + query
}

// ExtractID returns the listing identifier carried by raw, or "" when absent.
func ExtractID(raw string) string {
	u, err := url.Parse(trimArtifacts(raw))
	if err != nil {
		return ""
	}
	return u.Query().Get(idParam)
}

// Normalize canonicalizes raw and reports whether the result is an absolute
// http(s) URL that carries a listing identifier.
func Normalize(raw string) (string, bool) {
	canon := Canonicalize(raw)
	u, err := url.Parse(canon)
	if err != nil || u.Host == "" {
		return canon, false
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return canon, false
	}
	if u.Query().Get(idParam) == "" {
		return canon, false
	}
	return canon, true
}
