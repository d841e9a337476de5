package scanner

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/packscan/packscan/pkg/logger"
	"github.com/packscan/packscan/pkg/versions"
)

// FindingType says which kind of artifact produced a finding. Manifest
// declarations express what could resolve, lockfiles what was resolved, and
// installed scans what is actually on disk; the three are independently
// actionable, so the same package can appear once per kind.
type FindingType string

const (
	FindingManifest  FindingType = "manifest"
	FindingLockfile  FindingType = "lockfile"
	FindingInstalled FindingType = "installed"
)

// Finding is one compromised package version referenced by one file. Version
// is always a member of the threat index's set for (Ecosystem, Package).
// DeclaredSpec is empty for lockfile and installed findings, where the
// resolved version is both spec and match.
type Finding struct {
	Ecosystem    string             `json:"ecosystem"`
	Type         FindingType        `json:"finding_type"`
	File         string             `json:"file_path"`
	Package      string             `json:"package_name"`
	Version      string             `json:"version"`
	MatchType    versions.MatchType `json:"match_type"`
	DeclaredSpec string             `json:"declared_spec,omitempty"`
	DepType      string             `json:"dependency_type,omitempty"`
}

// Declaration is one dependency extracted from a manifest or lockfile.
// Exact marks specs that denote a single literal version (lockfile entries);
// manifest ranges carry Exact=false. Declarations live only for the duration
// of one file scan.
type Declaration struct {
	Name    string
	Spec    string
	Exact   bool
	DepType string
	Line    int
}

// Adapter is the per-ecosystem scanning contract. Implementations walk for
// project directories, parse whatever manifest/lockfile dialects the
// ecosystem uses, and evaluate declarations against the threat index.
type Adapter interface {
	// Ecosystem returns the identifier used in findings and threat CSVs.
	Ecosystem() string

	// DetectProjects walks root and returns every directory containing at
	// least one of the ecosystem's manifest files, pruning noise directories.
	DetectProjects(root string) ([]string, error)

	// ScanProject scans one project directory: manifests first, then
	// lockfiles, then installed packages where the ecosystem supports it.
	// Malformed or unreadable files degrade to zero declarations with a
	// warning; ScanProject never fails the scan.
	ScanProject(ctx context.Context, projectDir string) []Finding
}

// DefaultMaxFileSize bounds single-file reads so a pathological lockfile
// cannot stall the scan.
const DefaultMaxFileSize = 10 << 20 // 10 MiB

// Options tunes scanning behavior shared by all adapters.
type Options struct {
	// Exclude lists extra directory names to prune during project detection,
	// on top of the built-in noise list.
	Exclude []string

	// MaxFileSize is the per-file read bound in bytes; zero means
	// DefaultMaxFileSize.
	MaxFileSize int64

	// ScanInstalled enables the node_modules installed-package scan (npm only).
	ScanInstalled bool
}

func (o Options) maxFileSize() int64 {
	if o.MaxFileSize > 0 {
		return o.MaxFileSize
	}
	return DefaultMaxFileSize
}

// Directories that never hold a project's own manifests: installed
// dependency trees, VCS metadata, virtual environments, build output.
// Pruning them is a traversal-cost optimization; manifests for other
// projects never legitimately live below them.
var skipDirs = map[string]struct{}{
	"node_modules":  {},
	".git":          {},
	".svn":          {},
	".hg":           {},
	"__pycache__":   {},
	".pytest_cache": {},
	".tox":          {},
	"venv":          {},
	".venv":         {},
	"env":           {},
	".env":          {},
	"build":         {},
	"dist":          {},
	"target":        {},
	".gradle":       {},
	".m2":           {},
	"vendor":        {},
	".bundle":       {},
	"site-packages": {},
	".eggs":         {},
}

func shouldSkipDir(name string, extra []string) bool {
	if _, ok := skipDirs[name]; ok {
		return true
	}
	if strings.HasPrefix(name, ".") {
		return true
	}
	for _, e := range extra {
		if name == e {
			return true
		}
	}
	return false
}

// detectProjects walks the tree under root and collects every directory where
// isManifest matches at least one file name. Directory read order is
// lexical (os.ReadDir sorts), so discovery order is stable across runs.
func detectProjects(root string, extraExclude []string, isManifest func(name string) bool) ([]string, error) {
	var projects []string

	var walk func(dir string)
	walk = func(dir string) {
		entries, err := os.ReadDir(dir)
		if err != nil {
			logger.Debugf("cannot read directory %s: %v", dir, err)
			return
		}

		for _, entry := range entries {
			if !entry.IsDir() && isManifest(entry.Name()) {
				projects = append(projects, dir)
				break
			}
		}

		for _, entry := range entries {
			if entry.IsDir() && !shouldSkipDir(entry.Name(), extraExclude) {
				walk(filepath.Join(dir, entry.Name()))
			}
		}
	}

	walk(root)
	return projects, nil
}

// readFileBounded reads a file subject to the size bound. Any failure —
// missing, unreadable, oversized — degrades to (nil, false) with a warning,
// never an aborted scan.
func readFileBounded(path string, maxBytes int64) ([]byte, bool) {
	info, err := os.Stat(path)
	if err != nil {
		logger.Warnf("cannot stat %s: %v", path, err)
		return nil, false
	}
	if info.Size() > maxBytes {
		logger.Warnf("skipping %s: %d bytes exceeds the %d byte limit", path, info.Size(), maxBytes)
		return nil, false
	}

	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warnf("cannot read %s: %v", path, err)
		return nil, false
	}
	return data, true
}
