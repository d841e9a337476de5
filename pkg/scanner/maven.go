package scanner

import (
	"context"
	"encoding/xml"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/packscan/packscan/pkg/logger"
	"github.com/packscan/packscan/pkg/threat"
	"github.com/packscan/packscan/pkg/versions"
)

// MavenAdapter scans JVM projects. Manifests: pom.xml, build.gradle,
// build.gradle.kts. Lockfile: gradle.lockfile. Package identity is the
// "groupId:artifactId" coordinate; the threat index uses the same form.
type MavenAdapter struct {
	index *threat.Index
	opts  Options
}

// NewMavenAdapter creates a Maven/Gradle adapter over the given threat index.
func NewMavenAdapter(index *threat.Index, opts Options) *MavenAdapter {
	return &MavenAdapter{index: index, opts: opts}
}

// Ecosystem implements Adapter.
func (a *MavenAdapter) Ecosystem() string { return threat.EcosystemMaven }

var mavenManifests = map[string]struct{}{
	"pom.xml":          {},
	"build.gradle":     {},
	"build.gradle.kts": {},
}

// DetectProjects implements Adapter.
func (a *MavenAdapter) DetectProjects(root string) ([]string, error) {
	return detectProjects(root, a.opts.Exclude, func(name string) bool {
		_, ok := mavenManifests[name]
		return ok
	})
}

// ScanProject implements Adapter.
func (a *MavenAdapter) ScanProject(ctx context.Context, projectDir string) []Finding {
	var findings []Finding

	if path := filepath.Join(projectDir, "pom.xml"); fileExists(path) {
		findings = append(findings, a.matchDeclarations(path, a.parsePom(path))...)
	}
	for _, name := range []string{"build.gradle", "build.gradle.kts"} {
		if path := filepath.Join(projectDir, name); fileExists(path) {
			findings = append(findings, a.matchDeclarations(path, a.parseGradleBuild(path))...)
		}
	}
	if path := filepath.Join(projectDir, "gradle.lockfile"); fileExists(path) {
		findings = append(findings, a.matchDeclarations(path, a.parseGradleLockfile(path))...)
	}

	return findings
}

// matchDeclarations evaluates parsed declarations against the threat index.
// Coordinates absent from the index are dismissed before any version parsing.
func (a *MavenAdapter) matchDeclarations(path string, decls []Declaration) []Finding {
	var findings []Finding
	for _, decl := range decls {
		if !a.index.Has(threat.EcosystemMaven, decl.Name) {
			continue
		}
		compromised := a.index.Lookup(threat.EcosystemMaven, decl.Name)

		// Lockfile entries are literal versions; manifests go through the
		// full spec grammar (literals, interval ranges, dynamic versions).
		matches := versions.MatchMaven(decl.Spec, compromised)
		findingType := FindingManifest
		if decl.Exact {
			findingType = FindingLockfile
		}
		for _, m := range matches {
			f := Finding{
				Ecosystem: threat.EcosystemMaven,
				Type:      findingType,
				File:      path,
				Package:   decl.Name,
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

type pomDependency struct {
	GroupID    string `xml:"groupId"`
	ArtifactID string `xml:"artifactId"`
	Version    string `xml:"version"`
	Scope      string `xml:"scope"`
}

type pomProject struct {
	Dependencies []pomDependency `xml:"dependencies>dependency"`
}

// parsePom extracts direct dependencies from a pom.xml. encoding/xml matches
// local element names regardless of the POM namespace declaration. Versions
// inherited from a parent POM or dependencyManagement arrive empty and are
// skipped, as are unresolvable property references.
func (a *MavenAdapter) parsePom(path string) []Declaration {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var project pomProject
	if err := xml.Unmarshal(data, &project); err != nil {
		logger.Warnf("invalid XML in %s: %v", path, err)
		return nil
	}

	var decls []Declaration
	for _, dep := range project.Dependencies {
		group := strings.TrimSpace(dep.GroupID)
		artifact := strings.TrimSpace(dep.ArtifactID)
		version := strings.TrimSpace(dep.Version)
		if group == "" || artifact == "" || version == "" {
			continue
		}
		if strings.Contains(version, "${") {
			logger.Debugf("%s: skipping %s:%s, version %q needs property resolution", path, group, artifact, version)
			continue
		}
		depType := dep.Scope
		if depType == "" {
			depType = "compile"
		}
		decls = append(decls, Declaration{
			Name:    group + ":" + artifact,
			Spec:    version,
			DepType: depType,
		})
	}
	return decls
}

var (
	// implementation 'com.example:lib:1.2.3' / testImplementation("g:a:v")
	gradleStringDep = regexp.MustCompile(`(?m)^\s*(\w+)\s*[(\s]\s*["']([\w.-]+):([\w.-]+):([\w.+\-\[\](),]+)["']`)
	// implementation group: 'com.example', name: 'lib', version: '1.2.3'
	gradleMapDep = regexp.MustCompile(`(?m)^\s*(\w+)\s*\(?\s*group\s*[:=]\s*["']([\w.-]+)["']\s*,\s*name\s*[:=]\s*["']([\w.-]+)["']\s*,\s*version\s*[:=]\s*["']([\w.+\-\[\](),]+)["']`)
)

// parseGradleBuild extracts dependency declarations from a Groovy or Kotlin
// DSL build script. Regex extraction covers the two common declaration shapes;
// versions computed in code or taken from version catalogs are out of reach
// and silently absent.
func (a *MavenAdapter) parseGradleBuild(path string) []Declaration {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}
	content := string(data)

	var decls []Declaration
	seen := make(map[string]struct{})
	for _, re := range []*regexp.Regexp{gradleStringDep, gradleMapDep} {
		for _, m := range re.FindAllStringSubmatch(content, -1) {
			configuration, group, artifact, version := m[1], m[2], m[3], m[4]
			key := group + ":" + artifact + ":" + version
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			decls = append(decls, Declaration{
				Name:    group + ":" + artifact,
				Spec:    version,
				DepType: configuration,
			})
		}
	}
	return decls
}

// parseGradleLockfile reads Gradle's dependency lockfile: one
// "group:artifact:version=configurations" line per locked module.
func (a *MavenAdapter) parseGradleLockfile(path string) []Declaration {
	data, ok := readFileBounded(path, a.opts.maxFileSize())
	if !ok {
		return nil
	}

	var decls []Declaration
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		coordinate, _, _ := strings.Cut(line, "=")
		parts := strings.Split(coordinate, ":")
		if len(parts) != 3 {
			continue
		}
		decls = append(decls, Declaration{
			Name:  parts[0] + ":" + parts[1],
			Spec:  parts[2],
			Exact: true,
		})
	}
	return decls
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
