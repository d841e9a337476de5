package threat

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/packscan/packscan/pkg/logger"
)

// LoadCSV reads a threat CSV with header "ecosystem,name,version" and builds
// the index. Rows with empty fields are skipped with a warning; a missing or
// wrong header is an error because it usually means the wrong file was passed.
func LoadCSV(path string) (*Index, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open threat CSV: %w", err)
	}
	defer f.Close()

	ix, err := ReadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load %s: %w", path, err)
	}
	return ix, nil
}

// ReadCSV parses threat CSV content from a reader. Split out from LoadCSV so
// tests and embedded threat lists can build an index without touching disk.
func ReadCSV(r io.Reader) (*Index, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"ecosystem", "name", "version"} {
		if _, ok := cols[required]; !ok {
			return nil, fmt.Errorf("invalid CSV header: expected 'ecosystem,name,version', got %q", strings.Join(header, ","))
		}
	}

	ix := NewIndex()
	line := 1
	for {
		line++
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			logger.Warnf("skipping malformed CSV row %d: %v", line, err)
			continue
		}

		ecosystem := strings.ToLower(strings.TrimSpace(field(record, cols["ecosystem"])))
		name := strings.TrimSpace(field(record, cols["name"]))
		version := strings.TrimSpace(field(record, cols["version"]))

		if ecosystem == "" || name == "" || version == "" {
			logger.Warnf("skipping CSV row %d with empty fields", line)
			continue
		}

		if ecosystem == EcosystemPip {
			name = NormalizePyPI(name)
		}
		ix.add(ecosystem, name, version)
	}

	return ix, nil
}

func field(record []string, i int) string {
	if i < 0 || i >= len(record) {
		return ""
	}
	return record[i]
}
