package threat

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
)

// Ecosystems the scanners understand. Unknown ecosystems in a CSV are a
// warning rather than an error so one file can feed newer scanner builds.
var knownEcosystems = map[string]struct{}{
	EcosystemNpm:   {},
	EcosystemMaven: {},
	EcosystemPip:   {},
}

var (
	versionPattern      = regexp.MustCompile(`^[0-9a-zA-Z.\-_+]+$`)
	mavenPackagePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]+:[a-zA-Z0-9._-]+$`)
)

// ValidationIssue is one problem found in a threat CSV, tagged with the line
// it came from.
type ValidationIssue struct {
	Line    int
	Message string
}

func (i ValidationIssue) String() string {
	return fmt.Sprintf("line %d: %s", i.Line, i.Message)
}

// ValidationResult collects errors and warnings from validating one CSV.
// Errors make the file unusable; warnings are suspicious rows the loader
// would still accept.
type ValidationResult struct {
	Errors   []ValidationIssue
	Warnings []ValidationIssue
	Rows     int
}

// Valid reports whether the file can be loaded safely.
func (r *ValidationResult) Valid() bool {
	return len(r.Errors) == 0
}

func (r *ValidationResult) addError(line int, format string, v ...interface{}) {
	r.Errors = append(r.Errors, ValidationIssue{Line: line, Message: fmt.Sprintf(format, v...)})
}

func (r *ValidationResult) addWarning(line int, format string, v ...interface{}) {
	r.Warnings = append(r.Warnings, ValidationIssue{Line: line, Message: fmt.Sprintf(format, v...)})
}

// ValidateCSV checks a threat CSV file before it is distributed or loaded:
// header shape, empty fields, ecosystem names, Maven coordinate format,
// version charset, and duplicate rows.
func ValidateCSV(path string) (*ValidationResult, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()
	return ValidateReader(f), nil
}

// ValidateReader validates threat CSV content from a reader.
func ValidateReader(r io.Reader) *ValidationResult {
	result := &ValidationResult{}

	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		result.addError(1, "cannot read CSV header: %v", err)
		return result
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"ecosystem", "name", "version"} {
		if _, ok := cols[required]; !ok {
			result.addError(1, "missing required header %q (expected 'ecosystem,name,version')", required)
		}
	}
	if !result.Valid() {
		return result
	}

	seen := make(map[string]int)
	line := 1
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			result.addError(line, "malformed row: %v", err)
			continue
		}
		result.Rows++

		ecosystem := strings.ToLower(strings.TrimSpace(field(record, cols["ecosystem"])))
		name := strings.TrimSpace(field(record, cols["name"]))
		version := strings.TrimSpace(field(record, cols["version"]))

		if ecosystem == "" {
			result.addError(line, "empty ecosystem field")
		} else if _, ok := knownEcosystems[ecosystem]; !ok {
			result.addWarning(line, "unknown ecosystem %q (no scanner will use this row)", ecosystem)
		}

		if name == "" {
			result.addError(line, "empty name field")
		} else if ecosystem == EcosystemMaven && !mavenPackagePattern.MatchString(name) {
			result.addError(line, "maven package %q is not in groupId:artifactId form", name)
		}

		if version == "" {
			result.addError(line, "empty version field")
		} else if !versionPattern.MatchString(version) {
			result.addError(line, "version %q contains invalid characters", version)
		}

		key := ecosystem + "|" + name + "|" + version
		if first, dup := seen[key]; dup {
			result.addWarning(line, "duplicate of line %d (%s/%s@%s)", first, ecosystem, name, version)
		} else {
			seen[key] = line
		}
	}

	return result
}
