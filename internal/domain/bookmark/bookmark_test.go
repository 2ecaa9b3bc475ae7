package bookmark

import (
	"errors"
	"testing"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"adds scheme", "example.com", "https://example.com"},
		{"strips tracking and fragment", "https://example.com/a/?utm_source=x&id=5#top", "https://example.com/a/?id=5"},
		{"removes every tracking param", "https://x.dev/p?fbclid=1&gclid=2&ref=3&source=4&mc_cid=5&mc_eid=6", "https://x.dev/p"},
		{"keeps param order", "https://x.dev/?b=2&utm_medium=m&a=1", "https://x.dev/?b=2&a=1"},
		{"trailing slash", "https://example.com/blog/", "https://example.com/blog"},
		{"slash-only query", "https://a.com/?/", "https://a.com"},
		{"bare host", "https://example.com", "https://example.com"},
		{"http kept", "http://example.com/x", "http://example.com/x"},
		{"query on root", "https://example.com?q=go", "https://example.com/?q=go"},
		{"encoded tracking key", "https://x.dev/?utm%5Fsource=a&k=v", "https://x.dev/?k=v"},
		{"unparseable returned as is", "http://exa mple.com", "http://exa mple.com"},
		{"no host returned as is", "https://", "https://"},
		{"http prefix without scheme", "httpbin.org/get", "httpbin.org/get"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("Normalize(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestNormalize_Idempotent(t *testing.T) {
	inputs := []string{
		"example.com",
		"https://example.com/a/?utm_source=x&id=5#top",
		"https://example.com//",
		"https://example.com/a b/?x=1",
		"https://example.com?q=go",
		"http://Example.COM:8080/Path/",
		"https://x.dev/?&&a=1&",
		"https://a.com/?/",
		"0?/",
		"https://a.com/p?//?/",
		"https://a.com/?x=/",
	}

	for _, in := range inputs {
		once := Normalize(in)
		twice := Normalize(once)
		if once != twice {
			t.Errorf("not idempotent for %q: %q then %q", in, once, twice)
		}
	}
}

func TestNormalize_TrackingVariantsCollide(t *testing.T) {
	a := Normalize("https://example.com/a/?utm_source=x&id=5#top")
	b := Normalize("example.com/a/?id=5&fbclid=zzz")
	if a != b {
		t.Errorf("expected equal normalized forms, got %q and %q", a, b)
	}
}

func TestValidateURL(t *testing.T) {
	valid := []string{"https://example.com", "http://localhost:8080/x?y=1"}
	for _, v := range valid {
		if err := ValidateURL(v); err != nil {
			t.Errorf("ValidateURL(%q): unexpected error %v", v, err)
		}
	}

	invalid := []string{"", "   ", "not a url", "example.com", "ftp://example.com", "https://", "://x"}
	for _, v := range invalid {
		err := ValidateURL(v)
		if !errors.Is(err, domain.ErrValidation) {
			t.Errorf("ValidateURL(%q): expected ErrValidation, got %v", v, err)
		}
	}
}
