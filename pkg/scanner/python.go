package scanner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/packscan/packscan/pkg/logger"
	"github.com/packscan/packscan/pkg/threat"
	"github.com/packscan/packscan/pkg/versions"
)

// PythonAdapter scans Python projects. Manifests: requirements*.txt,
// pyproject.toml, Pipfile, environment.yml. Lockfiles: poetry.lock,
// Pipfile.lock. Package names are normalized to PyPI canonical form before
// every index lookup, mirroring the normalization applied at index load time.
type PythonAdapter struct {
	index *threat.Index
	opts  Options
}

// NewPythonAdapter creates a Python adapter over the given threat index.
func NewPythonAdapter(index *threat.Index, opts Options) *PythonAdapter {
	return &PythonAdapter{index: index, opts: opts}
}

// Ecosystem implements Adapter.
func (a *PythonAdapter) Ecosystem() string { return threat.EcosystemPip }

var requirementsPattern = regexp.MustCompile(`^requirements[\w.-]*\.txt$`)

func isPythonManifest(name string) bool {
	switch name {
	case "pyproject.toml", "Pipfile", "environment.yml", "environment.yaml":
		return true
	}
	return requirementsPattern.MatchString(name)
}

// DetectProjects implements Adapter.
func (a *PythonAdapter) DetectProjects(root string) ([]string, error) {
	return detectProjects(root, a.opts.Exclude, isPythonManifest)
}

// ScanProject implements Adapter.
func (a *PythonAdapter) ScanProject(ctx context.Context, projectDir string) []Finding {
	var findings []Finding

	entries, err := os.ReadDir(projectDir)
	if err != nil {
		logger.Warnf("cannot read directory %s: %v", projectDir, err)
		return nil
	}
	for _, entry := range entries {
		if entry.IsDir() || !requirementsPattern.MatchString(entry.Name()) {
			continue
		}
		path := filepath.Join(projectDir, entry.Name())
		findings = append(findings, a.matchDeclarations(path, a.parseRequirements(path), FindingManifest)...)
	}

	if path := filepath.Join(projectDir, "pyproject.toml"); fileExists(path) {
		findings = append(findings, a.matchDeclarations(path, a.parsePyproject(path), FindingManifest)...)
	}
	if path := filepath.Join(projectDir, "Pipfile"); fileExists(path) {
		findings = append(findings, a.matchDeclarations(path, a.parsePipfile(path), FindingManifest)...)
	}
	for _, name := range []string{"environment.yml", "environment.yaml"} {
		if path := filepath.Join(projectDir, name); fileExists(path) {
			findings = append(findings, a.matchDeclarations(path, a.parseCondaEnvironment(path), FindingManifest)...)
			break
		}
	}

	if path := filepath.Join(projectDir, "poetry.lock"); fileExists(path) {
		findings = append(findings, a.matchDeclarations(path, a.parsePoetryLock(path), FindingLockfile)...)
	}
	if path := filepath.Join(projectDir, "Pipfile.lock"); fileExists(path) {
		findings = append(findings, a.matchDeclarations(path, a.parsePipfileLock(path), FindingLockfile)...)
	}

	return findings
}

func (a *PythonAdapter) matchDeclarations(path string, decls []Declaration, findingType FindingType) []Finding {
	var findings []Finding
	for _, decl := range decls {
		name := threat.NormalizePyPI(decl.Name)
		if !a.index.Has(threat.EcosystemPip, name) {
			continue
		}
		compromised := a.index.Lookup(threat.EcosystemPip, name)

		var matches []versions.Match
		if decl.Exact {
			matches = versions.MatchPython("=="+decl.Spec, compromised)
		} else {
			matches = versions.MatchPython(decl.Spec, compromised)
		}

		for _, m := range matches {
			f := Finding{
				Ecosystem: threat.EcosystemPip,
				Type:      findingType,
				File:      path,
				Package:   name,
				Version:   m.Version,
				MatchType: m.Type,
				DepType:   decl.DepType,
			}
			if !decl.Exact {
				f.DeclaredSpec = decl.Spec
			}
			findings = append(findings, f)
		}
	}
	return findings
}

// requirementPattern splits "name[extras] specifier" requirement lines.
// Environment markers and hash options are stripped beforehand.
var requirementPattern = regexp.MustCompile(`^([A-Za-z0-9._-]+)\s*(\[[^\]]*\])?\s*(.*)$`)

// parseRequirements reads a pip requirements file. Editable installs, URL
// requirements, and nested "-r" includes carry no resolvable name@version and
// are skipped; nested files in the same directory are picked up by the
// filename glob anyway.
func (a *PythonAdapter) parseRequirements(path string) []Declaration {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var decls []Declaration
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if j := strings.Index(line, "#"); j != -1 {
			line = strings.TrimSpace(line[:j])
		}
		if line == "" || strings.HasPrefix(line, "-") {
			continue
		}
		// Environment markers qualify the install, not the version set.
		if j := strings.Index(line, ";"); j != -1 {
			line = strings.TrimSpace(line[:j])
		}
		if strings.Contains(line, "://") || strings.Contains(line, " @ ") {
			continue
		}

		m := requirementPattern.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		decls = append(decls, Declaration{
			Name: m[1],
			Spec: strings.TrimSpace(m[3]),
			Line: i + 1,
		})
	}
	return decls
}

type pyprojectFile struct {
	Project struct {
		Dependencies []string `toml:"dependencies"`
	} `toml:"project"`
	Tool struct {
		Poetry struct {
			Dependencies    map[string]any `toml:"dependencies"`
			DevDependencies map[string]any `toml:"dev-dependencies"`
			Group           map[string]struct {
				Dependencies map[string]any `toml:"dependencies"`
			} `toml:"group"`
		} `toml:"poetry"`
	} `toml:"tool"`
}

// parsePyproject reads both PEP 621 [project] dependencies and Poetry's
// [tool.poetry.*] tables. Poetry values are either a version string or a
// table carrying a "version" key; git/path tables have no version and are
// skipped. The interpreter constraint ("python") is not a package.
func (a *PythonAdapter) parsePyproject(path string) []Declaration {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var doc pyprojectFile
	if err := toml.Unmarshal(data, &doc); err != nil {
		logger.Warnf("invalid TOML in %s: %v", path, err)
		return nil
	}

	var decls []Declaration
	for _, req := range doc.Project.Dependencies {
		if m := requirementPattern.FindStringSubmatch(strings.TrimSpace(req)); m != nil {
			decls = append(decls, Declaration{Name: m[1], Spec: strings.TrimSpace(m[3])})
		}
	}
	decls = append(decls, poetryDeclarations(doc.Tool.Poetry.Dependencies, "")...)
	decls = append(decls, poetryDeclarations(doc.Tool.Poetry.DevDependencies, "dev")...)
	for group, table := range doc.Tool.Poetry.Group {
		decls = append(decls, poetryDeclarations(table.Dependencies, group)...)
	}
	return decls
}

func poetryDeclarations(deps map[string]any, depType string) []Declaration {
	var decls []Declaration
	for name, value := range deps {
		if strings.EqualFold(name, "python") {
			continue
		}
		spec := dependencyValueSpec(value)
		if spec == "" {
			continue
		}
		decls = append(decls, Declaration{Name: name, Spec: spec, DepType: depType})
	}
	return decls
}

// dependencyValueSpec extracts the version spec from a TOML dependency value:
// a plain string, or a table with a "version" key.
func dependencyValueSpec(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case map[string]any:
		if version, ok := v["version"].(string); ok {
			return strings.TrimSpace(version)
		}
	}
	return ""
}

type pipfileDoc struct {
	Packages    map[string]any `toml:"packages"`
	DevPackages map[string]any `toml:"dev-packages"`
}

func (a *PythonAdapter) parsePipfile(path string) []Declaration {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var doc pipfileDoc
	if err := toml.Unmarshal(data, &doc); err != nil {
		logger.Warnf("invalid TOML in %s: %v", path, err)
		return nil
	}

	var decls []Declaration
	for name, value := range doc.Packages {
		if spec := dependencyValueSpec(value); spec != "" {
			decls = append(decls, Declaration{Name: name, Spec: spec, DepType: "packages"})
		}
	}
	for name, value := range doc.DevPackages {
		if spec := dependencyValueSpec(value); spec != "" {
			decls = append(decls, Declaration{Name: name, Spec: spec, DepType: "dev-packages"})
		}
	}
	return decls
}

type poetryLockFile struct {
	Packages []struct {
		Name    string `toml:"name"`
		Version string `toml:"version"`
	} `toml:"package"`
}

func (a *PythonAdapter) parsePoetryLock(path string) []Declaration {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var lock poetryLockFile
	if err := toml.Unmarshal(data, &lock); err != nil {
		logger.Warnf("invalid TOML in %s: %v", path, err)
		return nil
	}

	var decls []Declaration
	for _, pkg := range lock.Packages {
		if pkg.Name == "" || pkg.Version == "" {
			continue
		}
		decls = append(decls, Declaration{Name: pkg.Name, Spec: pkg.Version, Exact: true})
	}
	return decls
}

type pipfileLockEntry struct {
	Version string `json:"version"`
}

func (a *PythonAdapter) parsePipfileLock(path string) []Declaration {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var lock struct {
		Default map[string]pipfileLockEntry `json:"default"`
		Develop map[string]pipfileLockEntry `json:"develop"`
	}
	if err := json.Unmarshal(data, &lock); err != nil {
		logger.Warnf("invalid JSON in %s: %v", path, err)
		return nil
	}

	var decls []Declaration
	for _, section := range []struct {
		depType string
		entries map[string]pipfileLockEntry
	}{
		{"default", lock.Default},
		{"develop", lock.Develop},
	} {
		for name, entry := range section.entries {
			version := strings.TrimPrefix(strings.TrimSpace(entry.Version), "==")
			if version == "" {
				continue
			}
			decls = append(decls, Declaration{Name: name, Spec: version, Exact: true, DepType: section.depType})
		}
	}
	return decls
}

// parseCondaEnvironment reads a conda environment.yml: string entries in the
// dependencies list use conda's "name=version" form, and a nested "pip:"
// mapping holds ordinary pip requirement lines.
func (a *PythonAdapter) parseCondaEnvironment(path string) []Declaration {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var env struct {
		Dependencies []any `yaml:"dependencies"`
	}
	if err := yaml.Unmarshal(data, &env); err != nil {
		logger.Warnf("invalid YAML in %s: %v", path, err)
		return nil
	}

	var decls []Declaration
	for _, dep := range env.Dependencies {
		switch v := dep.(type) {
		case string:
			m := requirementPattern.FindStringSubmatch(strings.TrimSpace(v))
			if m == nil {
				continue
			}
			name, rest := m[1], strings.TrimSpace(m[3])
			if strings.EqualFold(name, "python") {
				continue
			}
			decl := Declaration{Name: name, DepType: "conda"}
			if strings.HasPrefix(rest, "=") && !strings.HasPrefix(rest, "==") {
				// conda pin, possibly carrying a build string: numpy=1.21.0=py39h...
				version := strings.TrimPrefix(rest, "=")
				if i := strings.IndexByte(version, '='); i != -1 {
					version = version[:i]
				}
				if !strings.Contains(version, "*") {
					decl.Spec, decl.Exact = version, true
				} else {
					decl.Spec = "==" + version
				}
			} else if rest != "" {
				decl.Spec = rest
			}
			decls = append(decls, decl)
		case map[string]any:
			pip, ok := v["pip"].([]any)
			if !ok {
				continue
			}
			for _, raw := range pip {
				line, ok := raw.(string)
				if !ok {
					continue
				}
				if m := requirementPattern.FindStringSubmatch(strings.TrimSpace(line)); m != nil {
					decls = append(decls, Declaration{Name: m[1], Spec: strings.TrimSpace(m[3]), DepType: "pip"})
				}
			}
		}
	}
	return decls
}
