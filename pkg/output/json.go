package output

import (
	"encoding/json"
	"time"

	"github.com/packscan/packscan/pkg/scanner"
)

// Report is the JSON report document. Findings keep their scan order;
// Summary aggregates them for dashboards that only need counts.
type Report struct {
	GeneratedAt   string            `json:"generated_at"`
	ScannedPath   string            `json:"scanned_path"`
	TotalFindings int               `json:"total_findings"`
	Findings      []scanner.Finding `json:"findings"`
	Summary       ReportSummary     `json:"summary"`
}

// ReportSummary counts findings by ecosystem and by finding type.
type ReportSummary struct {
	ByEcosystem map[string]int `json:"by_ecosystem"`
	ByType      map[string]int `json:"by_type"`
}

// NewReport assembles a report document from scan findings.
func NewReport(scannedPath string, findings []scanner.Finding) Report {
	summary := ReportSummary{
		ByEcosystem: make(map[string]int),
		ByType:      make(map[string]int),
	}
	for _, f := range findings {
		summary.ByEcosystem[f.Ecosystem]++
		summary.ByType[string(f.Type)]++
	}

	if findings == nil {
		findings = []scanner.Finding{}
	}
	return Report{
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		ScannedPath:   scannedPath,
		TotalFindings: len(findings),
		Findings:      findings,
		Summary:       summary,
	}
}

// GenerateJSONReport renders findings as an indented JSON report document.
func GenerateJSONReport(scannedPath string, findings []scanner.Finding) ([]byte, error) {
	return json.MarshalIndent(NewReport(scannedPath, findings), "", "  ")
}
