package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/craftdeck/craftdeck/internal/app/services"
	"github.com/craftdeck/craftdeck/internal/infrastructure/storage"
)

func printInfo(msg string) {
	if noColor {
		fmt.Println(msg)
	} else {
		color.Cyan(msg)
	}
}

func printError(err error) {
	if noColor {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	} else {
		color.Red("Error: %v", err)
	}
}

func printSuccess(msg string) {
	if noColor {
		fmt.Println(msg)
	} else {
		color.Green(msg)
	}
}

func printWarning(msg string) {
	if noColor {
		fmt.Fprintf(os.Stderr, "Warning: %s\n", msg)
	} else {
		color.Yellow("Warning: %s", msg)
	}
}

// printYAML renders v as YAML to stdout.
func printYAML(v interface{}) error {
	data, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	fmt.Print(string(data))
	return nil
}

// resolveDataDir returns the panel data directory: the --data-dir flag
// when set, otherwise <cwd>/.craftdeck.
func resolveDataDir(flagValue string) (string, error) {
	if flagValue != "" {
		return filepath.Abs(flagValue)
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, app.DataDirName), nil
}

// newMaintenanceService wires the maintenance core for CLI use, sharing
// the server's composition.
func newMaintenanceService(dataDir, backupsDir, oldWorldsDir, serverDir string) *services.MaintenanceService {
	parent := filepath.Dir(dataDir)
	if backupsDir == "" {
		backupsDir = filepath.Join(parent, app.BackupsDirName)
	}
	if oldWorldsDir == "" {
		oldWorldsDir = filepath.Join(parent, app.OldWorldsDirName)
	}

	repo := storage.NewFileMaintenanceRepository(dataDir)
	scanner := services.NewScannerService(services.ScanPaths{
		BackupsDir:   backupsDir,
		OldWorldsDir: oldWorldsDir,
		ServerDir:    serverDir,
	})

	return services.NewMaintenanceService(
		repo,
		scanner,
		services.NewRuleService(),
		services.NewStatfsProvider(),
		dataDir,
		services.FSDeleter{},
		services.RealClock{},
		services.NewAuditLogger(dataDir),
	)
}
