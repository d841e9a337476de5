package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/packscan/packscan/pkg/config"
	"github.com/packscan/packscan/pkg/logger"
	"github.com/packscan/packscan/pkg/output"
	"github.com/packscan/packscan/pkg/scanner"
	"github.com/packscan/packscan/pkg/threat"
)

var (
	scanThreats     string
	scanPath        string
	scanFormat      string
	scanOutput      string
	scanEcosystems  []string
	scanExclude     []string
	scanVerbose     bool
	scanNoInstalled bool
	scanConfigFile  string
)

// scanCmd scans a directory tree against a threat CSV. Exit codes follow the
// grep convention: 0 clean, 1 operational error, 2 findings present.
var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Scan a directory tree for compromised package versions",
	Long: `Scan walks the given path for npm, Maven/Gradle, and Python projects and
checks every dependency declaration, lockfile entry, and installed package
against the compromised versions listed in the threat CSV.

Exits 0 when nothing matched, 2 when findings were produced, 1 on error.`,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		logger.SetVerbose(scanVerbose)

		cfg, err := loadScanConfig()
		if err != nil {
			return err
		}
		applyFlagOverrides(cmd, cfg)

		if cfg.Threats == "" {
			return fmt.Errorf("no threat CSV given: pass --threats or set threats in .packscan.yaml")
		}

		index, err := threat.LoadCSV(cfg.Threats)
		if err != nil {
			return fmt.Errorf("loading threat CSV: %w", err)
		}
		for _, eco := range index.Ecosystems() {
			logger.Debugf("threat index: %s: %d package(s), %d version(s)",
				eco, index.PackageCount(eco), index.VersionCount(eco))
		}

		opts := scanner.Options{
			Exclude:       cfg.Exclude,
			MaxFileSize:   cfg.MaxFileSize,
			ScanInstalled: cfg.ScanInstalled == nil || *cfg.ScanInstalled,
		}

		coordinator := scanner.NewCoordinator(index, opts, cfg.Ecosystems)
		findings, err := coordinator.Scan(cmd.Context(), scanPath)
		if err != nil {
			return fmt.Errorf("scan failed: %w", err)
		}

		if err := writeScanReport(cfg, findings); err != nil {
			return err
		}

		if len(findings) > 0 {
			os.Exit(2)
		}
		return nil
	},
}

func loadScanConfig() (*config.Config, error) {
	if scanConfigFile != "" {
		return config.LoadConfig(scanConfigFile)
	}
	return config.FindAndLoadConfig(scanPath)
}

// applyFlagOverrides layers explicitly-set flags over config file values.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	if cmd.Flags().Changed("threats") || cfg.Threats == "" {
		cfg.Threats = scanThreats
	}
	if cmd.Flags().Changed("format") || cfg.Output.Format == "" {
		cfg.Output.Format = scanFormat
	}
	if cmd.Flags().Changed("output") {
		cfg.Output.File = scanOutput
	}
	if cmd.Flags().Changed("ecosystems") {
		cfg.Ecosystems = scanEcosystems
	}
	if len(scanExclude) > 0 {
		cfg.Exclude = append(cfg.Exclude, scanExclude...)
	}
	if scanNoInstalled {
		disabled := false
		cfg.ScanInstalled = &disabled
	}
}

func writeScanReport(cfg *config.Config, findings []scanner.Finding) error {
	var data []byte
	var err error

	switch cfg.Output.Format {
	case "text", "":
		dest := os.Stdout
		if cfg.Output.File != "" {
			f, err := os.Create(cfg.Output.File)
			if err != nil {
				return fmt.Errorf("creating output file: %w", err)
			}
			defer f.Close()
			dest = f
		}
		return output.WriteTextReport(dest, findings)
	case "json":
		data, err = output.GenerateJSONReport(scanPath, findings)
	case "sarif":
		data, err = output.GenerateSarifReport(findings, Version)
	default:
		return fmt.Errorf("unknown output format %q (want text, json, or sarif)", cfg.Output.Format)
	}
	if err != nil {
		return fmt.Errorf("generating report: %w", err)
	}

	if cfg.Output.File != "" {
		if err := os.WriteFile(cfg.Output.File, data, 0o644); err != nil {
			return fmt.Errorf("writing output file: %w", err)
		}
		return nil
	}
	fmt.Println(string(data))
	return nil
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVarP(&scanThreats, "threats", "t", "", "Path to the threat CSV (ecosystem,name,version)")
	scanCmd.Flags().StringVarP(&scanPath, "path", "p", ".", "Directory tree to scan")
	scanCmd.Flags().StringVarP(&scanFormat, "format", "f", "text", "Output format: text, json, or sarif")
	scanCmd.Flags().StringVarP(&scanOutput, "output", "o", "", "Write the report to a file instead of stdout")
	scanCmd.Flags().StringSliceVarP(&scanEcosystems, "ecosystems", "e", nil, "Restrict the scan to these ecosystems (npm, maven, pip)")
	scanCmd.Flags().StringSliceVar(&scanExclude, "exclude", nil, "Extra directory names to skip")
	scanCmd.Flags().BoolVarP(&scanVerbose, "verbose", "v", false, "Enable debug logging")
	scanCmd.Flags().BoolVar(&scanNoInstalled, "no-installed", false, "Skip the node_modules installed-package scan")
}
