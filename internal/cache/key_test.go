package cache

import (
	"errors"
	"testing"
)

func TestEncodeName(t *testing.T) {
	tests := []struct {
		name string
		want string
	}{
		{"plumbing supplies", "plumbing supplies"},
		{"site:example.com", "site/example.com"},
		{"site:a.com/blog", "site/a.com%2Fblog"},
		{"a/b", "a%2Fb"},
		{"100%", "100%25"},
		{"site", "%73ite"},
		{"site/x", "site%2Fx"},
		{".hidden", "%2Ehidden"},
		{"..", "%2E."},
		{"what: why?", "what%3A why%3F"},
		{"tab\there", "tab%09here"},
	}

	for _, tt := range tests {
		got, err := EncodeName(tt.name)
		if err != nil {
			t.Fatalf("EncodeName(%q) failed: %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("EncodeName(%q): expected %q, got %q", tt.name, tt.want, got)
		}
	}
}

func TestEncodeName_Invalid(t *testing.T) {
	for _, name := range []string{"", "site:"} {
		if _, err := EncodeName(name); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("EncodeName(%q): expected ErrInvalidKey, got %v", name, err)
		}
	}
}

func TestNameRoundTrip(t *testing.T) {
	names := []string{
		"keyword",
		"best running shoes 2024",
		"site:www.example.com",
		"site:site",
		"site",
		"sitex",
		"%73ite",
		"a/b/c",
		"C:\\temp",
		"..",
		"ümlaut café",
	}

	seen := make(map[string]string)
	for _, name := range names {
		enc, err := EncodeName(name)
		if err != nil {
			t.Fatalf("EncodeName(%q) failed: %v", name, err)
		}
		if prev, dup := seen[enc]; dup {
			t.Fatalf("collision: %q and %q both encode to %q", prev, name, enc)
		}
		seen[enc] = name

		dec, err := DecodeName(enc)
		if err != nil {
			t.Fatalf("DecodeName(%q) failed: %v", enc, err)
		}
		if dec != name {
			t.Errorf("round trip: expected %q, got %q", name, dec)
		}
	}
}

func TestDecodeName_RejectsNonCanonical(t *testing.T) {
	for _, enc := range []string{"site", "a%2fb", "a%2", "a%ZZ", "x%61", "site/"} {
		if _, err := DecodeName(enc); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("DecodeName(%q): expected ErrInvalidKey, got %v", enc, err)
		}
	}
}

func TestKeyPath(t *testing.T) {
	k := Key{Namespace: "ahrefs/domain-rating", Name: "example.com"}
	p, err := k.Path()
	if err != nil {
		t.Fatalf("Path failed: %v", err)
	}
	if p != "ahrefs/domain-rating/example.com" {
		t.Errorf("Expected ahrefs/domain-rating/example.com, got %s", p)
	}

	if k.String() != "ahrefs/domain-rating/example.com" {
		t.Errorf("Unexpected logical key %s", k.String())
	}

	bad := Key{Namespace: "serper/../etc", Name: "x"}
	if _, err := bad.Path(); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Expected ErrInvalidKey for namespace traversal, got %v", err)
	}
}
