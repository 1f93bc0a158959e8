package site

import (
	"net/url"
	"strings"
)

const wwwPrefix = "www."

// Normalize returns the canonical identity of a site: the network location
// with no scheme, no path, and no leading "www.".
//
// Input containing a scheme is parsed as a URL; anything else is treated as a
// bare host (optionally followed by a path). Host casing is left as-is.
// Repeated "www." prefixes are all dropped so that Normalize is idempotent.
func Normalize(raw string) string {
	raw = strings.TrimSpace(raw)

	var host string
	if i := schemeEnd(raw); i > 0 {
		if u, err := url.Parse(raw); err == nil {
			host = u.Host
		} else {
			host = cutPath(raw[i+3:])
		}
	} else {
		host = cutPath(raw)
	}

	for strings.HasPrefix(host, wwwPrefix) {
		host = host[len(wwwPrefix):]
	}
	return host
}

// schemeEnd returns the index of "://" when raw starts with a URL scheme,
// or -1.
func schemeEnd(raw string) int {
	i := strings.Index(raw, "://")
	if i <= 0 {
		return -1
	}
	for j, c := range raw[:i] {
		switch {
		case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z':
		case j > 0 && ('0' <= c && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return -1
		}
	}
	return i
}

func cutPath(s string) string {
	if i := strings.IndexAny(s, "/?#"); i >= 0 {
		return s[:i]
	}
	return s
}
