package scanner

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/packscan/packscan/pkg/logger"
	"github.com/packscan/packscan/pkg/threat"
	"github.com/packscan/packscan/pkg/versions"
)

// NpmAdapter scans JavaScript/Node.js projects.
//
// Manifest: package.json (dependencies, devDependencies, peerDependencies,
// optionalDependencies). Lockfiles: package-lock.json (v1-v3), yarn.lock,
// pnpm-lock.yaml. Installed packages: node_modules (optional). Scoped names
// like @org/pkg are opaque identifiers and pass through unchanged.
type NpmAdapter struct {
	index *threat.Index
	opts  Options
}

// NewNpmAdapter creates an npm adapter over the given threat index.
func NewNpmAdapter(index *threat.Index, opts Options) *NpmAdapter {
	return &NpmAdapter{index: index, opts: opts}
}

// Ecosystem implements Adapter.
func (a *NpmAdapter) Ecosystem() string { return threat.EcosystemNpm }

// DetectProjects implements Adapter. An npm project is any directory holding
// a package.json.
func (a *NpmAdapter) DetectProjects(root string) ([]string, error) {
	return detectProjects(root, a.opts.Exclude, func(name string) bool {
		return name == "package.json"
	})
}

// ScanProject implements Adapter: manifest first, then each lockfile kind,
// then installed packages. Findings from different kinds are additive.
func (a *NpmAdapter) ScanProject(ctx context.Context, projectDir string) []Finding {
	var findings []Finding

	findings = append(findings, a.scanPackageJSON(filepath.Join(projectDir, "package.json"))...)

	for _, lockfile := range []string{"package-lock.json", "yarn.lock", "pnpm-lock.yaml"} {
		path := filepath.Join(projectDir, lockfile)
		if _, err := os.Stat(path); err != nil {
			continue
		}
		switch lockfile {
		case "package-lock.json":
			findings = append(findings, a.scanPackageLock(path)...)
		case "yarn.lock":
			findings = append(findings, a.scanYarnLock(path)...)
		case "pnpm-lock.yaml":
			findings = append(findings, a.scanPnpmLock(path)...)
		}
	}

	if a.opts.ScanInstalled {
		nodeModules := filepath.Join(projectDir, "node_modules")
		if info, err := os.Stat(nodeModules); err == nil && info.IsDir() {
			findings = append(findings, a.scanNodeModules(ctx, nodeModules)...)
		}
	}

	return findings
}

type packageJSON struct {
	Version              string            `json:"version"`
	Dependencies         map[string]string `json:"dependencies"`
	DevDependencies      map[string]string `json:"devDependencies"`
	PeerDependencies     map[string]string `json:"peerDependencies"`
	OptionalDependencies map[string]string `json:"optionalDependencies"`
}

func (a *NpmAdapter) scanPackageJSON(path string) []Finding {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		logger.Warnf("invalid JSON in %s: %v", path, err)
		return nil
	}

	depGroups := []struct {
		depType string
		deps    map[string]string
	}{
		{"dependencies", pkg.Dependencies},
		{"devDependencies", pkg.DevDependencies},
		{"peerDependencies", pkg.PeerDependencies},
		{"optionalDependencies", pkg.OptionalDependencies},
	}

	var findings []Finding
	for _, group := range depGroups {
		for _, name := range sortedKeys(group.deps) {
			if !a.index.Has(threat.EcosystemNpm, name) {
				continue
			}
			spec := group.deps[name]
			compromised := a.index.Lookup(threat.EcosystemNpm, name)
			for _, m := range versions.MatchNpm(spec, false, compromised) {
				findings = append(findings, Finding{
					Ecosystem:    threat.EcosystemNpm,
					Type:         FindingManifest,
					File:         path,
					Package:      name,
					Version:      m.Version,
					MatchType:    m.Type,
					DeclaredSpec: spec,
					DepType:      group.depType,
				})
			}
		}
	}
	return findings
}

type npmLockDependency struct {
	Version      string                       `json:"version"`
	Dependencies map[string]npmLockDependency `json:"dependencies"`
}

type npmLockfile struct {
	// lockfileVersion 3 (npm v7+): flat object keyed by node_modules path.
	Packages map[string]struct {
		Version string `json:"version"`
	} `json:"packages"`
	// lockfileVersion 1/2: nested dependency tree.
	Dependencies map[string]npmLockDependency `json:"dependencies"`
}

func (a *NpmAdapter) scanPackageLock(path string) []Finding {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var lock npmLockfile
	if err := json.Unmarshal(data, &lock); err != nil {
		logger.Warnf("invalid JSON in %s: %v", path, err)
		return nil
	}

	resolved := make(map[string]string)
	if len(lock.Packages) > 0 {
		for key, pkg := range lock.Packages {
			if key == "" || pkg.Version == "" {
				continue // root package
			}
			resolved[npmPackageNameFromPath(key)] = pkg.Version
		}
	} else {
		collectNpmLockV1(lock.Dependencies, resolved)
	}

	var findings []Finding
	for _, name := range sortedKeys(resolved) {
		version := resolved[name]
		if !a.index.Has(threat.EcosystemNpm, name) {
			continue
		}
		compromised := a.index.Lookup(threat.EcosystemNpm, name)
		for _, m := range versions.MatchNpm(version, true, compromised) {
			findings = append(findings, Finding{
				Ecosystem: threat.EcosystemNpm,
				Type:      FindingLockfile,
				File:      path,
				Package:   name,
				Version:   m.Version,
				MatchType: m.Type,
			})
		}
	}
	return findings
}

// npmPackageNameFromPath strips every "node_modules/" prefix from a
// lockfileVersion-3 packages key, leaving the (possibly scoped) package name.
func npmPackageNameFromPath(key string) string {
	const marker = "node_modules/"
	if i := strings.LastIndex(key, marker); i != -1 {
		return key[i+len(marker):]
	}
	return key
}

// collectNpmLockV1 flattens the nested v1/v2 dependency tree. Nested copies
// are recorded under their plain package name; which resolved version wins is
// irrelevant here since every observed version is checked.
func collectNpmLockV1(deps map[string]npmLockDependency, out map[string]string) {
	for name, dep := range deps {
		if dep.Version != "" {
			if _, seen := out[name]; !seen {
				out[name] = dep.Version
			}
		}
		if len(dep.Dependencies) > 0 {
			collectNpmLockV1(dep.Dependencies, out)
		}
	}
}

var (
	yarnPackagePattern = regexp.MustCompile(`^["']?(@?[^@"'\s]+)@`)
	yarnVersionPattern = regexp.MustCompile(`^\s+version\s+"?([^"\s]+)"?`)
)

// scanYarnLock walks yarn.lock's block format:
//
//	package-name@^1.0.0, package-name@^1.2.0:
//	  version "1.2.3"
func (a *NpmAdapter) scanYarnLock(path string) []Finding {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var findings []Finding
	lines := strings.Split(string(data), "\n")

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		// Block headers are unindented and end with a colon.
		if strings.HasPrefix(line, " ") || strings.HasPrefix(line, "\t") || !strings.HasSuffix(trimmed, ":") {
			continue
		}
		header := yarnPackagePattern.FindStringSubmatch(trimmed)
		if header == nil {
			continue
		}
		name := header[1]

		// The version line follows within the block.
		version := ""
		for j := i + 1; j < len(lines) && j <= i+10; j++ {
			if m := yarnVersionPattern.FindStringSubmatch(lines[j]); m != nil {
				version = m[1]
				break
			}
			next := strings.TrimSpace(lines[j])
			if next == "" || (!strings.HasPrefix(lines[j], " ") && !strings.HasPrefix(lines[j], "\t")) {
				break
			}
		}
		if version == "" || !a.index.Has(threat.EcosystemNpm, name) {
			continue
		}

		compromised := a.index.Lookup(threat.EcosystemNpm, name)
		for _, m := range versions.MatchNpm(version, true, compromised) {
			findings = append(findings, Finding{
				Ecosystem: threat.EcosystemNpm,
				Type:      FindingLockfile,
				File:      path,
				Package:   name,
				Version:   m.Version,
				MatchType: m.Type,
			})
		}
	}
	return findings
}

func (a *NpmAdapter) scanPnpmLock(path string) []Finding {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var lock struct {
		Packages map[string]struct {
			Version string `yaml:"version"`
		} `yaml:"packages"`
	}
	if err := yaml.Unmarshal(data, &lock); err != nil {
		logger.Warnf("invalid YAML in %s: %v", path, err)
		return nil
	}

	resolved := make(map[string]string)
	for key := range lock.Packages {
		name, version := splitPnpmPackageKey(key)
		if name == "" || version == "" {
			continue
		}
		resolved[name] = version
	}

	var findings []Finding
	for _, name := range sortedKeys(resolved) {
		if !a.index.Has(threat.EcosystemNpm, name) {
			continue
		}
		compromised := a.index.Lookup(threat.EcosystemNpm, name)
		for _, m := range versions.MatchNpm(resolved[name], true, compromised) {
			findings = append(findings, Finding{
				Ecosystem: threat.EcosystemNpm,
				Type:      FindingLockfile,
				File:      path,
				Package:   name,
				Version:   m.Version,
				MatchType: m.Type,
			})
		}
	}
	return findings
}

// splitPnpmPackageKey handles the three key styles pnpm has used:
// "/name/1.2.3" (v5), "/name@1.2.3(peer)" (v6), "name@1.2.3" (v9).
// Scoped names keep their "@scope/" prefix intact.
func splitPnpmPackageKey(key string) (name, version string) {
	key = strings.TrimPrefix(key, "/")
	if i := strings.IndexByte(key, '('); i != -1 {
		key = key[:i]
	}

	if i := strings.LastIndex(key, "@"); i > 0 {
		name, version = key[:i], key[i+1:]
	} else if i := strings.LastIndex(key, "/"); i != -1 {
		name, version = key[:i], key[i+1:]
	} else {
		return "", ""
	}

	// v5 appends peer-dependency hashes to the version after "_".
	if i := strings.IndexByte(version, '_'); i != -1 {
		version = version[:i]
	}
	return name, version
}

// scanNodeModules checks the versions actually installed under node_modules.
// Only packages present in the threat index get their package.json read.
func (a *NpmAdapter) scanNodeModules(ctx context.Context, nodeModules string) []Finding {
	entries, err := os.ReadDir(nodeModules)
	if err != nil {
		logger.Warnf("cannot read %s: %v", nodeModules, err)
		return nil
	}

	var findings []Finding
	for _, entry := range entries {
		if ctx.Err() != nil {
			return findings
		}
		if !entry.IsDir() {
			continue
		}

		if strings.HasPrefix(entry.Name(), "@") {
			scopeDir := filepath.Join(nodeModules, entry.Name())
			scoped, err := os.ReadDir(scopeDir)
			if err != nil {
				logger.Warnf("cannot read %s: %v", scopeDir, err)
				continue
			}
			for _, sub := range scoped {
				if !sub.IsDir() {
					continue
				}
				name := entry.Name() + "/" + sub.Name()
				if f := a.checkInstalledPackage(filepath.Join(scopeDir, sub.Name()), name, nodeModules); f != nil {
					findings = append(findings, *f)
				}
			}
			continue
		}

		if f := a.checkInstalledPackage(filepath.Join(nodeModules, entry.Name()), entry.Name(), nodeModules); f != nil {
			findings = append(findings, *f)
		}
	}
	return findings
}

func (a *NpmAdapter) checkInstalledPackage(packageDir, name, nodeModules string) *Finding {
	if !a.index.Has(threat.EcosystemNpm, name) {
		return nil
	}

	data, ok := readFileBounded(filepath.Join(packageDir, "package.json"), a.opts.maxFileSize())
	if !ok {
		return nil
	}
	var pkg packageJSON
	if err := json.Unmarshal(data, &pkg); err != nil {
		logger.Warnf("invalid JSON in %s: %v", filepath.Join(packageDir, "package.json"), err)
		return nil
	}

	compromised := a.index.Lookup(threat.EcosystemNpm, name)
	for _, m := range versions.MatchNpm(pkg.Version, true, compromised) {
		return &Finding{
			Ecosystem: threat.EcosystemNpm,
			Type:      FindingInstalled,
			File:      nodeModules,
			Package:   name,
			Version:   m.Version,
			MatchType: m.Type,
		}
	}
	return nil
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
