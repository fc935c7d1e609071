package analyzer

import (
	"net/url"
	"sort"
	"strings"

	"github.com/tektrg/command-bar-extension-sub000/internal/types"
)

// NormalizeURL strips the fragment and any trailing path slash so that
// cosmetically different spellings of the same resource compare equal.
// Unparseable input is normalized textually.
func NormalizeURL(rawURL string) string {
	s := strings.TrimSpace(rawURL)
	if i := strings.IndexByte(s, '#'); i >= 0 {
		s = s[:i]
	}
	u, err := url.Parse(s)
	if err != nil {
		return strings.TrimRight(s, "/")
	}
	u.Fragment = ""
	u.RawFragment = ""
	u.Path = strings.TrimRight(u.Path, "/")
	u.RawPath = strings.TrimRight(u.RawPath, "/")
	if u.RawQuery == "" {
		u.ForceQuery = false
	}
	return u.String()
}

// SameURL reports whether a and b normalize to the same key.
func SameURL(a, b string) bool {
	return NormalizeURL(a) == NormalizeURL(b)
}

// Hostname returns the host of rawURL without port, or "other" when the url
// has none (about:, data:, malformed).
func Hostname(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Hostname() == "" {
		return "other"
	}
	return strings.ToLower(u.Hostname())
}

// FindDuplicates groups tab ids by normalized url and returns only the
// groups with more than one tab. Ids within a group are ascending.
func FindDuplicates(tabs []types.TabRecord) map[string][]int {
	groups := make(map[string][]int)
	for _, tab := range tabs {
		key := NormalizeURL(tab.URL)
		groups[key] = append(groups[key], tab.ID)
	}
	for key, ids := range groups {
		if len(ids) < 2 {
			delete(groups, key)
			continue
		}
		sort.Ints(ids)
	}
	return groups
}
