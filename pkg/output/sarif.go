package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/packscan/packscan/pkg/scanner"
)

// SARIF format specification: https://docs.oasis-open.org/sarif/sarif/v2.1.0/sarif-v2.1.0.html

// SarifReport represents the top-level SARIF report structure
type SarifReport struct {
	Schema  string     `json:"$schema"`
	Version string     `json:"version"`
	Runs    []SarifRun `json:"runs"`
}

// SarifRun represents a single run of the analysis tool
type SarifRun struct {
	Tool        SarifTool         `json:"tool"`
	Results     []SarifResult     `json:"results"`
	Invocations []SarifInvocation `json:"invocations"`
}

// SarifTool represents the tool that performed the analysis
type SarifTool struct {
	Driver SarifDriver `json:"driver"`
}

// SarifDriver represents the driver of the tool
type SarifDriver struct {
	Name           string      `json:"name"`
	Version        string      `json:"version"`
	InformationURI string      `json:"informationUri"`
	Rules          []SarifRule `json:"rules"`
}

// SarifRule represents a rule that was evaluated during the analysis
type SarifRule struct {
	ID               string            `json:"id"`
	ShortDescription SarifMessage      `json:"shortDescription"`
	FullDescription  SarifMessage      `json:"fullDescription"`
	Help             SarifMessage      `json:"help"`
	Properties       map[string]string `json:"properties,omitempty"`
}

// SarifResult represents a result of the analysis
type SarifResult struct {
	RuleID    string          `json:"ruleId"`
	Level     string          `json:"level"`
	Message   SarifMessage    `json:"message"`
	Locations []SarifLocation `json:"locations"`
}

// SarifMessage represents a message in the SARIF report
type SarifMessage struct {
	Text string `json:"text"`
}

// SarifLocation represents a location in the code
type SarifLocation struct {
	PhysicalLocation SarifPhysicalLocation `json:"physicalLocation"`
}

// SarifPhysicalLocation represents a physical location in the code
type SarifPhysicalLocation struct {
	ArtifactLocation SarifArtifactLocation `json:"artifactLocation"`
	Region           SarifRegion           `json:"region,omitempty"`
}

// SarifArtifactLocation represents the location of an artifact
type SarifArtifactLocation struct {
	URI string `json:"uri"`
}

// SarifRegion represents a region in the code
type SarifRegion struct {
	StartLine int `json:"startLine,omitempty"`
}

// SarifInvocation represents an invocation of the tool
type SarifInvocation struct {
	ExecutionSuccessful bool   `json:"executionSuccessful"`
	StartTimeUtc        string `json:"startTimeUtc"`
	EndTimeUtc          string `json:"endTimeUtc"`
}

// GenerateSarifReport converts scan findings to SARIF format. Every finding
// is an error-level result: a referenced version is known compromised, so
// there is no severity gradient to express.
func GenerateSarifReport(findings []scanner.Finding, version string) ([]byte, error) {
	rules := []SarifRule{
		{
			ID:               "compromised-manifest-declaration",
			ShortDescription: SarifMessage{Text: "Manifest declares a compromised package version"},
			FullDescription:  SarifMessage{Text: "A dependency declaration in a manifest file can resolve to a package version known to be compromised."},
			Help:             SarifMessage{Text: "Pin the dependency to a known-good version and regenerate lockfiles."},
		},
		{
			ID:               "compromised-lockfile-entry",
			ShortDescription: SarifMessage{Text: "Lockfile resolves a compromised package version"},
			FullDescription:  SarifMessage{Text: "A lockfile entry pins a package version known to be compromised; installs from this lockfile fetch the compromised artifact."},
			Help:             SarifMessage{Text: "Update the dependency to a known-good version and regenerate the lockfile."},
		},
		{
			ID:               "compromised-installed-package",
			ShortDescription: SarifMessage{Text: "Compromised package version is installed"},
			FullDescription:  SarifMessage{Text: "A package version known to be compromised is present in the installed dependency tree."},
			Help:             SarifMessage{Text: "Remove the installed tree, update the dependency, and reinstall. Treat the host as potentially affected."},
		},
	}

	ruleForType := map[scanner.FindingType]string{
		scanner.FindingManifest:  "compromised-manifest-declaration",
		scanner.FindingLockfile:  "compromised-lockfile-entry",
		scanner.FindingInstalled: "compromised-installed-package",
	}

	results := make([]SarifResult, 0, len(findings))
	for _, f := range findings {
		messageText := fmt.Sprintf("%s package %s version %s is known to be compromised", f.Ecosystem, f.Package, f.Version)
		if f.DeclaredSpec != "" {
			messageText += fmt.Sprintf(" (declared as %q)", f.DeclaredSpec)
		}

		results = append(results, SarifResult{
			RuleID:  ruleForType[f.Type],
			Level:   "error",
			Message: SarifMessage{Text: messageText},
			Locations: []SarifLocation{
				{
					PhysicalLocation: SarifPhysicalLocation{
						ArtifactLocation: SarifArtifactLocation{
							URI: f.File,
						},
					},
				},
			},
		})
	}

	now := time.Now().UTC()
	sarifReport := SarifReport{
		Schema:  "https://schemastore.azurewebsites.net/schemas/json/sarif-2.1.0-rtm.5.json",
		Version: "2.1.0",
		Runs: []SarifRun{
			{
				Tool: SarifTool{
					Driver: SarifDriver{
						Name:           "packscan",
						Version:        version,
						InformationURI: "https://github.com/packscan/packscan",
						Rules:          rules,
					},
				},
				Results: results,
				Invocations: []SarifInvocation{
					{
						ExecutionSuccessful: true,
						StartTimeUtc:        now.Format(time.RFC3339),
						EndTimeUtc:          now.Format(time.RFC3339),
					},
				},
			},
		},
	}

	return json.MarshalIndent(sarifReport, "", "  ")
}
