package versions

import (
	"strings"

	mvn "github.com/masahiro331/go-mvn-version"
)

// MatchMaven evaluates a Maven/Gradle version spec against a set of
// compromised versions. Specs come in three shapes:
//
//   - literal versions ("2.14.1"): exact string comparison
//   - Maven interval ranges ("[1.0,2.0)", "[1.0,)", "(,2.0]"): brackets are
//     inclusive, parentheses exclusive, omitted bounds open
//   - Gradle dynamic versions ("1.2.+"): prefix match on dot segments
//
// Property references ("${log4j.version}") cannot be resolved without full
// build context and produce no match.
func MatchMaven(spec string, compromised []string) []Match {
	spec = strings.TrimSpace(spec)
	if spec == "" || strings.HasPrefix(spec, "${") {
		return nil
	}

	switch {
	case IsMavenRange(spec):
		var matches []Match
		for _, candidate := range compromised {
			if MavenRangeIncludes(spec, candidate) {
				matches = append(matches, Match{Version: candidate, Type: MatchRange})
			}
		}
		return matches

	case strings.HasSuffix(spec, "+"):
		var matches []Match
		for _, candidate := range compromised {
			if GradleDynamicMatches(spec, candidate) {
				matches = append(matches, Match{Version: candidate, Type: MatchRange})
			}
		}
		return matches

	default:
		return exactStringMatch(spec, compromised)
	}
}

// IsMavenRange reports whether a spec uses Maven interval syntax. Any
// bracket or parenthesis marks a range.
func IsMavenRange(spec string) bool {
	return strings.ContainsAny(spec, "[]()")
}

// MavenRangeIncludes reports whether a candidate version lies inside a Maven
// interval range. Unparseable ranges or candidates are never included.
func MavenRangeIncludes(spec, candidate string) bool {
	reqs, err := mvn.NewRequirements(spec)
	if err != nil {
		return false
	}
	v, err := mvn.NewVersion(candidate)
	if err != nil {
		return false
	}
	return reqs.Check(v)
}

// GradleDynamicMatches reports whether a candidate version matches a Gradle
// dynamic version like "1.2.+": the fixed dot segments before the "+" must
// equal the candidate's leading segments, and the candidate must carry at
// least one further segment for the wildcard to cover.
func GradleDynamicMatches(spec, candidate string) bool {
	if !strings.HasSuffix(spec, "+") {
		return false
	}
	prefix := strings.TrimSuffix(strings.TrimSuffix(spec, "+"), ".")

	var fixed []string
	if prefix != "" {
		fixed = strings.Split(prefix, ".")
	}
	segments := strings.Split(candidate, ".")
	if len(segments) <= len(fixed) {
		return false
	}
	for i, seg := range fixed {
		if segments[i] != seg {
			return false
		}
	}
	return true
}
