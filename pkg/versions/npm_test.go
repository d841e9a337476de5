package versions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchNpm_CaretRange(t *testing.T) {
	compromised := []string{"1.2.5", "2.0.0", "1.1.0"}

	matches := MatchNpm("^1.2.0", false, compromised)

	require.Len(t, matches, 1)
	assert.Equal(t, "1.2.5", matches[0].Version)
	assert.Equal(t, MatchRange, matches[0].Type)
}

func TestMatchNpm_RangeMatchesMultipleVersions(t *testing.T) {
	compromised := []string{"1.0.0", "1.5.0", "2.0.0"}

	matches := MatchNpm(">=1.0.0 <2.0.0", false, compromised)

	require.Len(t, matches, 2)
	assert.Equal(t, "1.0.0", matches[0].Version)
	assert.Equal(t, "1.5.0", matches[1].Version)
}

func TestMatchNpm_Exact(t *testing.T) {
	compromised := []string{"4.17.20", "4.17.21"}

	matches := MatchNpm("4.17.21", true, compromised)

	require.Len(t, matches, 1)
	assert.Equal(t, "4.17.21", matches[0].Version)
	assert.Equal(t, MatchExact, matches[0].Type)
}

func TestMatchNpm_ExactMiss(t *testing.T) {
	assert.Empty(t, MatchNpm("4.17.19", true, []string{"4.17.20"}))
}

func TestMatchNpm_UnparseableSpecFallsBackToStringComparison(t *testing.T) {
	compromised := []string{"git+https://github.com/acme/pkg.git", "1.0.0"}

	matches := MatchNpm("git+https://github.com/acme/pkg.git", false, compromised)

	require.Len(t, matches, 1)
	assert.Equal(t, MatchExact, matches[0].Type)

	assert.Empty(t, MatchNpm("file:../local-pkg", false, []string{"1.0.0"}))
}

func TestMatchNpm_WildcardSpec(t *testing.T) {
	// "*" is a valid semver constraint matching everything.
	matches := MatchNpm("*", false, []string{"1.0.0", "2.0.0"})
	assert.Len(t, matches, 2)
}

func TestMatchNpm_TildeRange(t *testing.T) {
	compromised := []string{"1.2.3", "1.2.9", "1.3.0"}

	matches := MatchNpm("~1.2.0", false, compromised)

	require.Len(t, matches, 2)
	for _, m := range matches {
		assert.Equal(t, MatchRange, m.Type)
	}
}

func TestMatchNpm_UnparseableCompromisedVersionSkipped(t *testing.T) {
	// A non-semver entry in the compromised set must not break range checks
	// for the parseable entries.
	matches := MatchNpm("^1.0.0", false, []string{"not-a-version", "1.0.5"})

	require.Len(t, matches, 1)
	assert.Equal(t, "1.0.5", matches[0].Version)
}
