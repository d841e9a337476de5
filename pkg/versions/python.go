package versions

import (
	"fmt"
	"strconv"
	"strings"

	pep440 "github.com/aquasecurity/go-pep440-version"
)

// MatchPython evaluates a PEP 440 or Poetry version spec against a set of
// compromised versions. Poetry caret/tilde shorthand is expanded to PEP 440
// clauses first. A spec consisting solely of "==<version>" with no wildcard
// is an exact pin; everything else is treated as a range. Bare requirements
// ("requests" with no operator) and "*" never match: without a constraint
// there is no intersection to determine, which is a policy decision rather
// than an oversight.
func MatchPython(spec string, compromised []string) []Match {
	spec = ExpandPoetry(strings.TrimSpace(spec))
	if spec == "" || spec == "*" {
		return nil
	}

	if IsExactPin(spec) {
		want := strings.TrimSpace(strings.TrimPrefix(spec, "=="))
		return exactStringMatch(want, compromised)
	}

	specifiers, err := pep440.NewSpecifiers(spec)
	if err != nil {
		// Poetry allows a bare version ("1.21.0") as an exact constraint,
		// which is not a valid PEP 440 specifier set.
		return exactStringMatch(spec, compromised)
	}

	var matches []Match
	for _, candidate := range compromised {
		v, err := pep440.Parse(candidate)
		if err != nil {
			continue
		}
		if specifiers.Check(v) {
			matches = append(matches, Match{Version: candidate, Type: MatchRange})
		}
	}
	return matches
}

// IsExactPin reports whether a spec denotes exactly one literal version:
// "==1.2.3" but not "==1.2.*", "===...", or compound specifiers.
func IsExactPin(spec string) bool {
	if !strings.HasPrefix(spec, "==") || strings.HasPrefix(spec, "===") {
		return false
	}
	rest := spec[2:]
	return !strings.ContainsAny(rest, ",*<>=!~")
}

// ExpandPoetry rewrites Poetry caret/tilde shorthand into PEP 440 clauses:
//
//	^1.2.3 -> >=1.2.3,<2.0.0
//	^0.2.3 -> >=0.2.3,<0.3.0   (caret pins the first nonzero component)
//	~1.2.3 -> >=1.2.3,<1.3.0
//
// Specs that are not Poetry shorthand pass through unchanged.
func ExpandPoetry(spec string) string {
	switch {
	case strings.HasPrefix(spec, "^"):
		base := strings.TrimSpace(spec[1:])
		if upper := caretUpperBound(base); upper != "" {
			return fmt.Sprintf(">=%s,<%s", base, upper)
		}
	case strings.HasPrefix(spec, "~") && !strings.HasPrefix(spec, "~="):
		base := strings.TrimSpace(spec[1:])
		if upper := tildeUpperBound(base); upper != "" {
			return fmt.Sprintf(">=%s,<%s", base, upper)
		}
	}
	return spec
}

// caretUpperBound computes the exclusive upper bound for ^base, or "" when
// base is not a plain numeric version.
func caretUpperBound(base string) string {
	parts, ok := numericParts(base)
	if !ok {
		return ""
	}
	// Bump the first nonzero component; for all-zero versions bump the last
	// component given (^0 -> <1.0.0, ^0.0 -> <0.1.0).
	bump := len(parts) - 1
	for i, p := range parts {
		if p != 0 {
			bump = i
			break
		}
	}
	return bumpedBound(parts, bump)
}

// tildeUpperBound computes the exclusive upper bound for ~base: the next
// minor when a minor is given, the next major otherwise.
func tildeUpperBound(base string) string {
	parts, ok := numericParts(base)
	if !ok {
		return ""
	}
	bump := 0
	if len(parts) >= 2 {
		bump = 1
	}
	return bumpedBound(parts, bump)
}

func bumpedBound(parts []int, bump int) string {
	size := len(parts)
	if size < 3 {
		size = 3
	}
	bounds := make([]string, size)
	for i := 0; i < size; i++ {
		switch {
		case i < bump && i < len(parts):
			bounds[i] = strconv.Itoa(parts[i])
		case i == bump:
			n := 0
			if i < len(parts) {
				n = parts[i]
			}
			bounds[i] = strconv.Itoa(n + 1)
		default:
			bounds[i] = "0"
		}
	}
	return strings.Join(bounds, ".")
}

func numericParts(version string) ([]int, bool) {
	if version == "" {
		return nil, false
	}
	fields := strings.Split(version, ".")
	parts := make([]int, 0, len(fields))
	for _, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil {
			return nil, false
		}
		parts = append(parts, n)
	}
	return parts, true
}
