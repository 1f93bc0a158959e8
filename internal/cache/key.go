package cache

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidKey is returned for keys that cannot be mapped to a storage path.
var ErrInvalidKey = errors.New("cache: invalid key")

// scopePrefix marks a scoped query (a search restricted to one site). Scoped
// names are stored in their own sub-namespace directory.
const (
	scopePrefix = "site:"
	scopeDir    = "site"
)

// unsafeBytes are escaped wherever they appear in a name. '%' is included so
// that decoding is unambiguous.
const unsafeBytes = `/\:*?"<>|%`

// Key is the full, stable identity of a cached request.
//
// Namespace is a fixed, program-defined path such as "serper" or
// "ahrefs/domain-rating". Name is arbitrary caller data (a keyword, a query,
// a target host) and goes through EncodeName before it touches the filesystem.
type Key struct {
	Namespace string
	Name      string
}

// String returns the logical form of the key, e.g. "serper/site:example.com".
func (k Key) String() string {
	return k.Namespace + "/" + k.Name
}

// Path returns the slash-separated storage path of the key relative to the
// cache root.
func (k Key) Path() (string, error) {
	if err := validateNamespace(k.Namespace); err != nil {
		return "", err
	}
	enc, err := EncodeName(k.Name)
	if err != nil {
		return "", err
	}
	return k.Namespace + "/" + enc, nil
}

// EncodeName maps a logical name to a storage-safe relative path.
//
// The mapping is a bijection between names and its image:
//   - a name with the "site:" scope prefix maps to "site/<escaped rest>";
//   - any other name maps to a single escaped path segment;
//   - escaping replaces control bytes, a leading '.', and every byte of
//     `/\:*?"<>|%` with %XX (upper-case hex);
//   - the unscoped name "site" is written "%73ite" so it never collides
//     with the scope directory.
//
// DecodeName inverts it.
func EncodeName(name string) (string, error) {
	if name == "" {
		return "", fmt.Errorf("%w: empty name", ErrInvalidKey)
	}
	if rest, ok := strings.CutPrefix(name, scopePrefix); ok {
		if rest == "" {
			return "", fmt.Errorf("%w: empty scoped name", ErrInvalidKey)
		}
		return scopeDir + "/" + escapeSegment(rest), nil
	}
	seg := escapeSegment(name)
	if seg == scopeDir {
		seg = fmt.Sprintf("%%%02X", seg[0]) + seg[1:]
	}
	return seg, nil
}

// DecodeName reverses EncodeName. Paths that EncodeName would never produce
// are rejected with ErrInvalidKey.
func DecodeName(encoded string) (string, error) {
	var name string
	if rest, ok := strings.CutPrefix(encoded, scopeDir+"/"); ok {
		n, err := unescapeSegment(rest)
		if err != nil {
			return "", err
		}
		name = scopePrefix + n
	} else {
		n, err := unescapeSegment(encoded)
		if err != nil {
			return "", err
		}
		name = n
	}

	canonical, err := EncodeName(name)
	if err != nil {
		return "", err
	}
	if canonical != encoded {
		return "", fmt.Errorf("%w: non-canonical path %q", ErrInvalidKey, encoded)
	}
	return name, nil
}

func escapeSegment(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c < 0x20 || c == 0x7f || strings.IndexByte(unsafeBytes, c) >= 0 || (i == 0 && c == '.') {
			fmt.Fprintf(&b, "%%%02X", c)
			continue
		}
		b.WriteByte(c)
	}
	return b.String()
}

func unescapeSegment(s string) (string, error) {
	if s == "" {
		return "", fmt.Errorf("%w: empty path segment", ErrInvalidKey)
	}
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if c != '%' {
			b.WriteByte(c)
			continue
		}
		if i+2 >= len(s) {
			return "", fmt.Errorf("%w: truncated escape in %q", ErrInvalidKey, s)
		}
		hi, okHi := unhex(s[i+1])
		lo, okLo := unhex(s[i+2])
		if !okHi || !okLo {
			return "", fmt.Errorf("%w: bad escape in %q", ErrInvalidKey, s)
		}
		b.WriteByte(hi<<4 | lo)
		i += 2
	}
	return b.String(), nil
}

func unhex(c byte) (byte, bool) {
	switch {
	case '0' <= c && c <= '9':
		return c - '0', true
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10, true
	}
	return 0, false
}

func validateNamespace(ns string) error {
	if ns == "" {
		return fmt.Errorf("%w: empty namespace", ErrInvalidKey)
	}
	for _, seg := range strings.Split(ns, "/") {
		if seg == "" || escapeSegment(seg) != seg {
			return fmt.Errorf("%w: namespace %q", ErrInvalidKey, ns)
		}
	}
	return nil
}
