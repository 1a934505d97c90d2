// Command config-convert converts a YAML configuration file into the
// SQLite configuration database used by the -config-backend sqlite mode.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fieldwatch/fieldwatch/pkg/config"
)

func main() {
	var (
		yamlFile   = flag.String("yaml", "", "Path to YAML configuration file (required)")
		sqliteFile = flag.String("sqlite", "", "Path to SQLite database file (required)")
		force      = flag.Bool("force", false, "Overwrite existing SQLite database")
		dryRun     = flag.Bool("dry-run", false, "Show what would be done without executing")
	)
	flag.Parse()

	if *yamlFile == "" || *sqliteFile == "" {
		fmt.Fprintf(os.Stderr, "Usage: %s -yaml <config.yaml> -sqlite <config.db>\n", os.Args[0])
		flag.PrintDefaults()
		os.Exit(1)
	}

	if _, err := os.Stat(*yamlFile); os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "Error: YAML file does not exist: %s\n", *yamlFile)
		os.Exit(1)
	}

	if _, err := os.Stat(*sqliteFile); err == nil && !*force {
		fmt.Fprintf(os.Stderr, "Error: SQLite file already exists: %s\n", *sqliteFile)
		fmt.Fprintf(os.Stderr, "Use -force to overwrite or choose a different filename\n")
		os.Exit(1)
	}

	fmt.Printf("Converting YAML configuration to SQLite...\n")
	fmt.Printf("  Source: %s\n", *yamlFile)
	fmt.Printf("  Target: %s\n", *sqliteFile)

	yamlProvider := config.NewYAMLProvider(*yamlFile)
	configData, err := yamlProvider.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading YAML configuration: %v\n", err)
		os.Exit(1)
	}

	if *dryRun {
		printConfigSummary(configData)
		fmt.Println("DRY RUN complete - no database created")
		return
	}

	if *force {
		if err := os.Remove(*sqliteFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Error removing existing SQLite file: %v\n", err)
			os.Exit(1)
		}
	}

	sqliteProvider, err := config.NewSQLiteProvider(*sqliteFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error creating SQLite provider: %v\n", err)
		os.Exit(1)
	}
	defer sqliteProvider.Close()

	if err := sqliteProvider.SaveConfig(configData); err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration into SQLite: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Conversion completed successfully!\n")
	fmt.Printf("You can now use the SQLite backend with: -config-backend sqlite -config %s\n", *sqliteFile)
}

func printConfigSummary(cfg *config.ConfigData) {
	fmt.Println("\nConfiguration Summary:")
	d := cfg.Detection
	fmt.Printf("Detection: window=%d min_baseline=%d contamination=%g trees=%d sample_size=%d\n",
		d.WindowSize, d.MinBaseline, d.Contamination, d.Trees, d.SampleSize)
	fmt.Printf("Severity thresholds: high=%g medium=%g\n", d.SeverityHigh, d.SeverityMedium)
	if len(d.Sensors) > 0 {
		fmt.Printf("Sensor overrides (%d):\n", len(d.Sensors))
		for sensorType := range d.Sensors {
			fmt.Printf("  - %s\n", sensorType)
		}
	}

	fmt.Printf("\nStorage:\n")
	if cfg.Storage.TimescaleDB != nil {
		fmt.Printf("  - TimescaleDB: %s\n", cfg.Storage.TimescaleDB.ConnectionString)
	}
	fmt.Printf("  - Model store: %s (%s)\n", cfg.Storage.ModelStore.Backend, cfg.Storage.ModelStore.Path)

	if cfg.Metrics.ListenAddr != "" {
		fmt.Printf("\nMetrics: %s\n", cfg.Metrics.ListenAddr)
	}
	if cfg.RulesFile != "" {
		fmt.Printf("Rule table: %s\n", cfg.RulesFile)
	}
}
