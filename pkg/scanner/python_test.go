package scanner

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packscan/packscan/pkg/threat"
	"github.com/packscan/packscan/pkg/versions"
)

func pythonIndex(t *testing.T) *threat.Index {
	t.Helper()
	ix := threat.NewIndex()
	ix.Add("pip", "requests", "2.28.1")
	ix.Add("pip", "typing_extensions", "4.8.0")
	ix.Add("pip", "numpy", "1.21.0")
	return ix
}

func TestPythonAdapter_Requirements(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "requirements.txt", `# pinned deps
requests==2.28.1
flask>=2.0  # not in the threat list
Typing_Extensions>=4.0,<5.0
numpy
-r other-requirements.txt
git+https://github.com/acme/pkg.git#egg=pkg
`)

	a := NewPythonAdapter(pythonIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 2)

	assert.Equal(t, "requests", findings[0].Package)
	assert.Equal(t, "2.28.1", findings[0].Version)
	assert.Equal(t, versions.MatchExact, findings[0].MatchType)
	assert.Equal(t, path, findings[0].File)

	// declared name normalizes to the index's canonical form
	assert.Equal(t, "typing-extensions", findings[1].Package)
	assert.Equal(t, "4.8.0", findings[1].Version)
	assert.Equal(t, versions.MatchRange, findings[1].MatchType)
	assert.Equal(t, ">=4.0,<5.0", findings[1].DeclaredSpec)
}

func TestPythonAdapter_BareRequirementNeverMatches(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements.txt", "requests\n")

	a := NewPythonAdapter(pythonIndex(t), Options{})
	assert.Empty(t, a.ScanProject(context.Background(), dir))
}

func TestPythonAdapter_RequirementsVariants(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "requirements-dev.txt", "requests==2.28.1\n")

	a := NewPythonAdapter(pythonIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 1)
	assert.Equal(t, "requests", findings[0].Package)
}

func TestPythonAdapter_PyprojectPoetry(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pyproject.toml", `[tool.poetry]
name = "app"
version = "0.1.0"

[tool.poetry.dependencies]
python = "^3.9"
requests = "^2.28.0"
numpy = { version = "1.21.0", optional = true }

[tool.poetry.dev-dependencies]
pytest = "^7.0"
`)

	a := NewPythonAdapter(pythonIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 2)
	packages := []string{findings[0].Package, findings[1].Package}
	assert.Contains(t, packages, "requests")
	assert.Contains(t, packages, "numpy")
	for _, f := range findings {
		assert.Equal(t, FindingManifest, f.Type)
	}
}

func TestPythonAdapter_PyprojectPEP621(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pyproject.toml", `[project]
name = "app"
dependencies = [
    "requests>=2.28,<3",
    "flask",
]
`)

	a := NewPythonAdapter(pythonIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 1)
	assert.Equal(t, "requests", findings[0].Package)
	assert.Equal(t, ">=2.28,<3", findings[0].DeclaredSpec)
}

func TestPythonAdapter_PoetryLock(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pyproject.toml", `[tool.poetry]
name = "app"
`)
	lockPath := writeFile(t, dir, "poetry.lock", `[[package]]
name = "requests"
version = "2.28.1"

[[package]]
name = "flask"
version = "2.3.0"
`)

	a := NewPythonAdapter(pythonIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 1)
	assert.Equal(t, "requests", findings[0].Package)
	assert.Equal(t, FindingLockfile, findings[0].Type)
	assert.Equal(t, versions.MatchExact, findings[0].MatchType)
	assert.Equal(t, lockPath, findings[0].File)
}

func TestPythonAdapter_Pipfile(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Pipfile", `[[source]]
url = "https://pypi.org/simple"
verify_ssl = true
name = "pypi"

[packages]
requests = "==2.28.1"
flask = "*"

[dev-packages]
pytest = "*"
`)

	a := NewPythonAdapter(pythonIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 1)
	assert.Equal(t, "requests", findings[0].Package)
	assert.Equal(t, "packages", findings[0].DepType)
}

func TestPythonAdapter_PipfileLock(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "Pipfile", `[packages]
`)
	writeFile(t, dir, "Pipfile.lock", `{
	"default": {
		"requests": {"version": "==2.28.1"},
		"flask": {"version": "==2.3.0"}
	},
	"develop": {
		"numpy": {"version": "==1.21.0"}
	}
}`)

	a := NewPythonAdapter(pythonIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 2)
	for _, f := range findings {
		assert.Equal(t, FindingLockfile, f.Type)
		assert.Equal(t, versions.MatchExact, f.MatchType)
	}
}

func TestPythonAdapter_CondaEnvironment(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "environment.yml", `name: app
channels:
  - defaults
dependencies:
  - python=3.9
  - numpy=1.21.0
  - flask>=2.0
  - pip:
      - requests==2.28.1
`)

	a := NewPythonAdapter(pythonIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 2)
	assert.Equal(t, "numpy", findings[0].Package)
	assert.Equal(t, "conda", findings[0].DepType)
	assert.Equal(t, "requests", findings[1].Package)
	assert.Equal(t, "pip", findings[1].DepType)
}

func TestPythonAdapter_MalformedTOMLDegrades(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "pyproject.toml", `[tool.poetry
broken`)

	a := NewPythonAdapter(pythonIndex(t), Options{})
	assert.Empty(t, a.ScanProject(context.Background(), dir))
}
