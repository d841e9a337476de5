package scanner

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/packscan/packscan/pkg/threat"
	"github.com/packscan/packscan/pkg/versions"
)

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func npmIndex(t *testing.T) *threat.Index {
	t.Helper()
	ix := threat.NewIndex()
	ix.Add("npm", "@ctrl/tinycolor", "4.1.1")
	ix.Add("npm", "@ctrl/tinycolor", "4.1.2")
	ix.Add("npm", "chalk", "5.3.0")
	return ix
}

func TestNpmAdapter_PackageJSONRangeMatch(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{
		"dependencies": {
			"@ctrl/tinycolor": "^4.1.0",
			"lodash": "^4.17.0"
		},
		"devDependencies": {
			"chalk": "5.3.0"
		}
	}`)

	a := NewNpmAdapter(npmIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 3)

	assert.Equal(t, "@ctrl/tinycolor", findings[0].Package)
	assert.Equal(t, "4.1.1", findings[0].Version)
	assert.Equal(t, versions.MatchRange, findings[0].MatchType)
	assert.Equal(t, "^4.1.0", findings[0].DeclaredSpec)
	assert.Equal(t, "dependencies", findings[0].DepType)
	assert.Equal(t, FindingManifest, findings[0].Type)

	assert.Equal(t, "4.1.2", findings[1].Version)

	assert.Equal(t, "chalk", findings[2].Package)
	assert.Equal(t, "devDependencies", findings[2].DepType)
}

func TestNpmAdapter_PackageLockV3(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{}`)
	lockPath := writeFile(t, dir, "package-lock.json", `{
		"lockfileVersion": 3,
		"packages": {
			"": {"name": "app", "version": "1.0.0"},
			"node_modules/chalk": {"version": "5.3.0"},
			"node_modules/express/node_modules/@ctrl/tinycolor": {"version": "4.1.1"},
			"node_modules/lodash": {"version": "4.17.21"}
		}
	}`)

	a := NewNpmAdapter(npmIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 2)
	assert.Equal(t, "@ctrl/tinycolor", findings[0].Package)
	assert.Equal(t, "4.1.1", findings[0].Version)
	assert.Equal(t, versions.MatchExact, findings[0].MatchType)
	assert.Equal(t, FindingLockfile, findings[0].Type)
	assert.Equal(t, lockPath, findings[0].File)
	assert.Empty(t, findings[0].DeclaredSpec)

	assert.Equal(t, "chalk", findings[1].Package)
}

func TestNpmAdapter_PackageLockV1Nested(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{}`)
	writeFile(t, dir, "package-lock.json", `{
		"lockfileVersion": 1,
		"dependencies": {
			"express": {
				"version": "4.18.2",
				"dependencies": {
					"chalk": {"version": "5.3.0"}
				}
			}
		}
	}`)

	a := NewNpmAdapter(npmIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 1)
	assert.Equal(t, "chalk", findings[0].Package)
	assert.Equal(t, "5.3.0", findings[0].Version)
}

func TestNpmAdapter_YarnLock(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{}`)
	writeFile(t, dir, "yarn.lock", `# THIS IS AN AUTOGENERATED FILE. DO NOT EDIT THIS FILE DIRECTLY.
# yarn lockfile v1

"@ctrl/tinycolor@^4.1.0":
  version "4.1.2"
  resolved "https://registry.yarnpkg.com/@ctrl/tinycolor/-/tinycolor-4.1.2.tgz"

lodash@^4.17.0:
  version "4.17.21"
`)

	a := NewNpmAdapter(npmIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 1)
	assert.Equal(t, "@ctrl/tinycolor", findings[0].Package)
	assert.Equal(t, "4.1.2", findings[0].Version)
	assert.Equal(t, FindingLockfile, findings[0].Type)
}

func TestNpmAdapter_PnpmLock(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{}`)
	writeFile(t, dir, "pnpm-lock.yaml", `lockfileVersion: '6.0'

packages:

  /@ctrl/tinycolor@4.1.1:
    resolution: {integrity: sha512-deadbeef}

  /lodash/4.17.21:
    resolution: {integrity: sha512-cafebabe}
`)

	a := NewNpmAdapter(npmIndex(t), Options{})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 1)
	assert.Equal(t, "@ctrl/tinycolor", findings[0].Package)
	assert.Equal(t, "4.1.1", findings[0].Version)
}

func TestSplitPnpmPackageKey(t *testing.T) {
	tests := []struct {
		key         string
		wantName    string
		wantVersion string
	}{
		{"/lodash/4.17.21", "lodash", "4.17.21"},
		{"/@scope/pkg/1.0.0", "@scope/pkg", "1.0.0"},
		{"/chalk@5.3.0", "chalk", "5.3.0"},
		{"/@ctrl/tinycolor@4.1.1(react@18.0.0)", "@ctrl/tinycolor", "4.1.1"},
		{"chalk@5.3.0", "chalk", "5.3.0"},
		{"/lodash/4.17.21_peerhash", "lodash", "4.17.21"},
	}
	for _, tt := range tests {
		name, version := splitPnpmPackageKey(tt.key)
		assert.Equal(t, tt.wantName, name, "key %s", tt.key)
		assert.Equal(t, tt.wantVersion, version, "key %s", tt.key)
	}
}

func TestNpmAdapter_InstalledPackages(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{}`)
	writeFile(t, dir, filepath.Join("node_modules", "@ctrl", "tinycolor", "package.json"),
		`{"name": "@ctrl/tinycolor", "version": "4.1.1"}`)
	writeFile(t, dir, filepath.Join("node_modules", "lodash", "package.json"),
		`{"name": "lodash", "version": "4.17.21"}`)

	a := NewNpmAdapter(npmIndex(t), Options{ScanInstalled: true})
	findings := a.ScanProject(context.Background(), dir)

	require.Len(t, findings, 1)
	assert.Equal(t, FindingInstalled, findings[0].Type)
	assert.Equal(t, "@ctrl/tinycolor", findings[0].Package)
	assert.Equal(t, "4.1.1", findings[0].Version)
}

func TestNpmAdapter_InstalledScanDisabled(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{}`)
	writeFile(t, dir, filepath.Join("node_modules", "chalk", "package.json"),
		`{"name": "chalk", "version": "5.3.0"}`)

	a := NewNpmAdapter(npmIndex(t), Options{ScanInstalled: false})
	assert.Empty(t, a.ScanProject(context.Background(), dir))
}

func TestNpmAdapter_MalformedManifestDegrades(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "package.json", `{not json`)

	a := NewNpmAdapter(npmIndex(t), Options{})
	assert.Empty(t, a.ScanProject(context.Background(), dir))
}

func TestNpmAdapter_DetectProjectsSkipsNodeModules(t *testing.T) {
	root := t.TempDir()
	writeFile(t, root, filepath.Join("app", "package.json"), `{}`)
	writeFile(t, root, filepath.Join("app", "node_modules", "dep", "package.json"), `{}`)

	a := NewNpmAdapter(npmIndex(t), Options{})
	projects, err := a.DetectProjects(root)
	require.NoError(t, err)
	assert.Equal(t, []string{filepath.Join(root, "app")}, projects)
}
