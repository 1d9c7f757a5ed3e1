// Package safety provides entity filtering, confirmation tokens for device
// actions that interrupt normal operation, and a JSON-lines audit log.
package safety

import (
	"fmt"
	"path"
)

// Filter decides which entity unique IDs are exposed. Both lists hold glob
// patterns in path.Match syntax, e.g. "nobreak_battery*".
//
// The denylist wins. An empty allowlist admits everything not denied.
type Filter struct {
	allowlist []string
	denylist  []string
}

// NewFilter returns a Filter over the given pattern lists. Either may be nil.
func NewFilter(allowlist, denylist []string) *Filter {
	return &Filter{allowlist: allowlist, denylist: denylist}
}

// Validate reports the first malformed pattern, if any.
func (f *Filter) Validate() error {
	for _, list := range [][]string{f.allowlist, f.denylist} {
		for _, p := range list {
			if _, err := path.Match(p, ""); err != nil {
				return fmt.Errorf("safety: filter pattern %q: %w", p, err)
			}
		}
	}
	return nil
}

// IsAllowed reports whether the entity with the given unique ID is exposed.
// A nil Filter allows everything.
func (f *Filter) IsAllowed(uniqueID string) bool {
	if f == nil {
		return true
	}
	if matchAny(f.denylist, uniqueID) {
		return false
	}
	return len(f.allowlist) == 0 || matchAny(f.allowlist, uniqueID)
}

// matchAny treats malformed patterns as non-matching.
func matchAny(patterns []string, name string) bool {
	for _, p := range patterns {
		if ok, err := path.Match(p, name); err == nil && ok {
			return true
		}
	}
	return false
}
