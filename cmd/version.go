package cmd

import (
	"encoding/json"
	"fmt"
	"runtime"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/spf13/cobra"
)

var (
	versionShort bool
	versionFull  bool
	versionJSON  bool
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Long: `Display version information for CraftDeck.

Examples:
  craftdeck version          # Show version number
  craftdeck version --full   # Show detailed version info
  craftdeck version --json   # Show version info as JSON`,
	Run: func(cmd *cobra.Command, args []string) {
		showVersion()
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)

	versionCmd.Flags().BoolVarP(&versionShort, "short", "s", false, "show only version number")
	versionCmd.Flags().BoolVar(&versionFull, "full", false, "show detailed version information")
	versionCmd.Flags().BoolVar(&versionJSON, "json", false, "output version information as JSON")
}

func showVersion() {
	switch {
	case versionJSON:
		showVersionJSON()
	case versionFull:
		fmt.Println(app.GetFullVersion())
	case versionShort:
		fmt.Println(app.GetVersion())
	default:
		fmt.Printf("%s %s\n", app.AppName, app.GetVersion())
	}
}

func showVersionJSON() {
	info := map[string]string{
		"name":       app.AppName,
		"version":    app.GetVersion(),
		"go_version": runtime.Version(),
		"platform":   runtime.GOOS + "/" + runtime.GOARCH,
		"commit":     app.GitCommit,
		"build_date": app.BuildDate,
	}
	data, _ := json.MarshalIndent(info, "", "  ")
	fmt.Println(string(data))
}
