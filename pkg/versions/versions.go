// Package versions implements the version-matching rules for each supported
// ecosystem as pure functions over (specifier, candidate version). The
// scanners feed these functions the compromised-version sets from the threat
// index; any hit becomes a finding.
package versions

// MatchType distinguishes a literal version hit from a range-inclusion hit.
type MatchType string

const (
	MatchExact MatchType = "exact"
	MatchRange MatchType = "range"
)

// Match is one compromised version that a declaration resolves to or includes.
// A single declaration can produce several matches when its range covers more
// than one compromised version.
type Match struct {
	Version string
	Type    MatchType
}
