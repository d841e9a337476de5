package threat

import (
	"sort"
	"strings"
)

// Ecosystem identifiers as they appear in threat CSVs and findings.
const (
	EcosystemNpm   = "npm"
	EcosystemMaven = "maven"
	EcosystemPip   = "pip"
)

// Index is the in-memory threat list: ecosystem -> package name -> compromised
// versions. It is built once per invocation by LoadCSV and never mutated
// afterwards, so it is safe to share across concurrently running scanners.
//
// Package-name keys use the ecosystem's canonical form: npm names as declared
// (scope prefix intact), Maven as "groupId:artifactId", pip names normalized
// with NormalizePyPI. Callers looking up pip packages must normalize the same
// way or matches silently fail.
type Index struct {
	threats map[string]map[string]map[string]struct{}
}

// NewIndex returns an empty index. Mainly useful for tests; production code
// builds the index with LoadCSV.
func NewIndex() *Index {
	return &Index{threats: make(map[string]map[string]map[string]struct{})}
}

// add records one compromised version. Only the loader calls this.
func (ix *Index) add(ecosystem, name, version string) {
	eco, ok := ix.threats[ecosystem]
	if !ok {
		eco = make(map[string]map[string]struct{})
		ix.threats[ecosystem] = eco
	}
	versions, ok := eco[name]
	if !ok {
		versions = make(map[string]struct{})
		eco[name] = versions
	}
	versions[version] = struct{}{}
}

// Add records one compromised version for tests and programmatic setup.
// Pip package names are normalized the same way the loader normalizes them.
func (ix *Index) Add(ecosystem, name, version string) {
	ecosystem = strings.ToLower(strings.TrimSpace(ecosystem))
	if ecosystem == EcosystemPip {
		name = NormalizePyPI(name)
	}
	ix.add(ecosystem, name, version)
}

// Lookup returns the compromised versions for a package, sorted for
// deterministic iteration. It returns nil (never an error) when the
// ecosystem or package is unknown.
func (ix *Index) Lookup(ecosystem, name string) []string {
	eco, ok := ix.threats[ecosystem]
	if !ok {
		return nil
	}
	versions, ok := eco[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(versions))
	for v := range versions {
		out = append(out, v)
	}
	sort.Strings(out)
	return out
}

// Has reports whether the package appears in the index at all, regardless of
// version. Scanners use it to skip version parsing for the overwhelming
// majority of non-threatened dependencies.
func (ix *Index) Has(ecosystem, name string) bool {
	eco, ok := ix.threats[ecosystem]
	if !ok {
		return false
	}
	_, ok = eco[name]
	return ok
}

// Ecosystems returns the ecosystems present in the index, sorted.
func (ix *Index) Ecosystems() []string {
	out := make([]string, 0, len(ix.threats))
	for eco := range ix.threats {
		out = append(out, eco)
	}
	sort.Strings(out)
	return out
}

// PackageCount returns the number of distinct packages for an ecosystem,
// or across all ecosystems when ecosystem is empty.
func (ix *Index) PackageCount(ecosystem string) int {
	if ecosystem != "" {
		return len(ix.threats[ecosystem])
	}
	total := 0
	for _, eco := range ix.threats {
		total += len(eco)
	}
	return total
}

// VersionCount returns the number of compromised versions for an ecosystem,
// or across all ecosystems when ecosystem is empty.
func (ix *Index) VersionCount(ecosystem string) int {
	count := func(eco map[string]map[string]struct{}) int {
		n := 0
		for _, versions := range eco {
			n += len(versions)
		}
		return n
	}
	if ecosystem != "" {
		return count(ix.threats[ecosystem])
	}
	total := 0
	for _, eco := range ix.threats {
		total += count(eco)
	}
	return total
}

// NormalizePyPI applies the PyPI name normalization rule: lowercase, with
// runs of "-", "_" and "." collapsed to a single "-".
func NormalizePyPI(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(name))
	prevSep := false
	for _, r := range name {
		if r == '-' || r == '_' || r == '.' {
			if !prevSep {
				b.WriteByte('-')
			}
			prevSep = true
			continue
		}
		prevSep = false
		b.WriteRune(r)
	}
	return b.String()
}
