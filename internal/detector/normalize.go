package detector

import "strings"

// IdentifierNormalizer reduces an account identifier to a canonical form so
// typo-variant identifiers cluster together. The predicate is pluggable;
// exact similarity semantics are deployment policy, not fixed here.
type IdentifierNormalizer func(string) string

// NormalizeEmail is the default normalizer: lowercase the address, strip a
// +tag suffix from the local part, and drop common separator characters
// from the local part. "User.3+x@Mail.com" and "user3@mail.com" normalize
// identically.
func NormalizeEmail(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	local, domain, found := strings.Cut(s, "@")
	if !found {
		return s
	}
	if i := strings.Index(local, "+"); i >= 0 {
		local = local[:i]
	}
	local = strings.Map(func(r rune) rune {
		switch r {
		case '.', '_', '-':
			return -1
		}
		return r
	}, local)
	return local + "@" + domain
}
