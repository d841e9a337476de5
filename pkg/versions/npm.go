package versions

import (
	"strings"

	"github.com/Masterminds/semver/v3"
)

// MatchNpm evaluates an npm version spec against a set of compromised
// versions. Exact declarations (lockfile entries, installed packages) compare
// as strings. Manifest specs are parsed as npm semver ranges (^, ~,
// comparators, x-ranges, "||" alternatives); specs that are not valid ranges
// (git URLs, "file:", "workspace:") degrade to exact string comparison
// instead of erroring.
func MatchNpm(spec string, exact bool, compromised []string) []Match {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return nil
	}

	if exact {
		return exactStringMatch(spec, compromised)
	}

	constraint, err := semver.NewConstraint(spec)
	if err != nil {
		return exactStringMatch(spec, compromised)
	}

	var matches []Match
	for _, candidate := range compromised {
		if NpmRangeIncludes(constraint, candidate) {
			matches = append(matches, Match{Version: candidate, Type: MatchRange})
		}
	}
	return matches
}

// NpmRangeIncludes reports whether a candidate version falls inside a parsed
// npm range. Candidates that are not valid semver can never be included.
func NpmRangeIncludes(constraint *semver.Constraints, candidate string) bool {
	v, err := semver.NewVersion(candidate)
	if err != nil {
		return false
	}
	return constraint.Check(v)
}

func exactStringMatch(spec string, compromised []string) []Match {
	for _, candidate := range compromised {
		if spec == candidate {
			return []Match{{Version: candidate, Type: MatchExact}}
		}
	}
	return nil
}
