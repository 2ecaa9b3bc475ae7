// Package bookmark holds the bookmark entity and url normalization rules.
package bookmark

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
)

// Bookmark is the relational record of a saved url.
// URL is always stored in normalized form and is unique.
type Bookmark struct {
	URL       string
	Title     string
	CreatedAt time.Time
}

// trackingParams are query parameters removed by Normalize.
var trackingParams = map[string]struct{}{
	"utm_source":   {},
	"utm_medium":   {},
	"utm_campaign": {},
	"utm_term":     {},
	"utm_content":  {},
	"fbclid":       {},
	"gclid":        {},
	"ref":          {},
	"source":       {},
	"mc_cid":       {},
	"mc_eid":       {},
}

// Normalize returns the canonical form of raw used for deduplication.
//
// A missing scheme defaults to https, the fragment and tracking parameters are
// dropped, and trailing slashes are trimmed. Remaining query parameters keep
// their order and encoding. Unparseable input is returned unchanged.
func Normalize(raw string) string {
	candidate := raw
	if !strings.HasPrefix(candidate, "http") {
		candidate = "https://" + candidate
	}

	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Fragment = ""
	u.RawFragment = ""
	u.RawQuery = stripTracking(u.RawQuery)
	u.ForceQuery = false
	if u.Path == "" {
		u.Path = "/"
	}

	return trimTrailing(u.String())
}

// trimTrailing drops trailing slashes, and a query left empty by that trim,
// until neither remains. "https://a.dev/?/" becomes "https://a.dev".
func trimTrailing(s string) string {
	for {
		trimmed := strings.TrimSuffix(strings.TrimRight(s, "/"), "?")
		if trimmed == s {
			return s
		}
		s = trimmed
	}
}

func stripTracking(rawQuery string) string {
	if rawQuery == "" {
		return ""
	}

	parts := strings.Split(rawQuery, "&")
	kept := parts[:0]
	for _, p := range parts {
		if p == "" {
			continue
		}
		key, _, _ := strings.Cut(p, "=")
		if k, err := url.QueryUnescape(key); err == nil {
			key = k
		}
		if _, drop := trackingParams[key]; drop {
			continue
		}
		kept = append(kept, p)
	}
	return strings.Join(kept, "&")
}

// ValidateURL checks that raw is an absolute http(s) url with a host.
func ValidateURL(raw string) error {
	if strings.TrimSpace(raw) == "" {
		return fmt.Errorf("%w: url is required", domain.ErrValidation)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%w: invalid url: %w", domain.ErrValidation, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%w: url must use http or https", domain.ErrValidation)
	}
	if u.Host == "" {
		return fmt.Errorf("%w: url must have a host", domain.ErrValidation)
	}
	return nil
}
