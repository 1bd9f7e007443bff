package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/user"

	"github.com/spf13/cobra"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/craftdeck/craftdeck/internal/app/services"
	"github.com/craftdeck/craftdeck/internal/domain/entities"
)

var (
	maintDataDir      string
	maintBackupsDir   string
	maintOldWorldsDir string
	maintServerDir    string
	maintScope        string
	maintDryRun       bool
	maintRuleKey      string
	maintLimit        int
	maintPaths        []string
)

// maintenanceCmd represents the maintenance command
var maintenanceCmd = &cobra.Command{
	Use:     "maintenance",
	Aliases: []string{"maint"},
	Short:   "Inspect and run retention cleanup",
	Long: `Evaluate and execute the retention rules for a scope.

Every destructive action supports --dry-run, which produces the same
selection a real run would without touching any file.

Examples:
  craftdeck maintenance preview --scope backups
  craftdeck maintenance run --scope backups --dry-run
  craftdeck maintenance run --scope stale_worlds --rule age
  craftdeck maintenance history --scope backups --limit 20
  craftdeck maintenance ack-missed --scope backups`,
}

var maintenancePreviewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show what a rule run would delete",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := maintService()
		if err != nil {
			return err
		}

		selection, err := svc.Preview(context.Background(), entities.NormalizeScope(maintScope), nil)
		if err != nil {
			printError(err)
			return err
		}
		return printSelection(selection)
	},
}

var maintenanceRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Execute the retention rules for a scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := maintService()
		if err != nil {
			return err
		}

		scope := entities.NormalizeScope(maintScope)
		selection, err := svc.RunRules(context.Background(), scope, maintDryRun, maintRuleKey, cliActor())
		if err != nil {
			printError(err)
			return err
		}
		if err := printSelection(selection); err != nil {
			return err
		}
		if !maintDryRun {
			printSuccess(fmt.Sprintf("Deleted %d artifacts (%d bytes) in scope %s", selection.DeletedCount, selection.DeletedBytes, scope))
		}
		return nil
	},
}

var maintenanceDeleteCmd = &cobra.Command{
	Use:   "delete",
	Short: "Delete explicitly selected artifacts",
	Long: `Delete exactly the given artifact paths, subject to eligibility
checks and the per-run caps. Ineligible selections block the run.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(maintPaths) == 0 {
			return fmt.Errorf("at least one --path is required")
		}

		svc, err := maintService()
		if err != nil {
			return err
		}

		scope := entities.NormalizeScope(maintScope)
		selection, err := svc.ManualDelete(context.Background(), scope, maintPaths, maintDryRun, cliActor())
		if selection != nil {
			printSelection(selection)
		}
		if err != nil {
			printError(err)
			return err
		}
		return nil
	},
}

var maintenanceHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recent maintenance runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := maintService()
		if err != nil {
			return err
		}

		scope := entities.NormalizeScope(maintScope)
		runs, err := svc.History(context.Background(), scope, maintLimit)
		if err != nil {
			printError(err)
			return err
		}

		switch format {
		case app.JSONFormat:
			return json.NewEncoder(os.Stdout).Encode(runs)
		case app.YAMLFormat:
			return printYAML(runs)
		default:
			if len(runs) == 0 {
				printInfo(fmt.Sprintf("No maintenance runs recorded for scope %s", scope))
				return nil
			}
			for _, run := range runs {
				mark := " "
				if run.DryRun {
					mark = "~"
				}
				fmt.Printf("%s %s  %-16s %-7s deleted=%d errors=%d\n",
					mark, run.At.Format("2006-01-02 15:04:05"), run.Trigger, run.Result, run.DeletedCount, run.ErrorsCount)
			}
			return nil
		}
	},
}

var maintenanceStateCmd = &cobra.Command{
	Use:   "state",
	Short: "Show the full maintenance state for a scope",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := maintService()
		if err != nil {
			return err
		}

		state, err := svc.GetState(context.Background(), entities.NormalizeScope(maintScope))
		if err != nil {
			printError(err)
			return err
		}

		if format == app.JSONFormat {
			return json.NewEncoder(os.Stdout).Encode(state)
		}
		return printYAML(state)
	},
}

var maintenanceAckCmd = &cobra.Command{
	Use:   "ack-missed",
	Short: "Acknowledge and clear missed scheduled runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		svc, err := maintService()
		if err != nil {
			return err
		}

		scope := entities.NormalizeScope(maintScope)
		if _, err := svc.AcknowledgeMissed(context.Background(), scope, cliActor()); err != nil {
			printError(err)
			return err
		}
		printSuccess(fmt.Sprintf("Cleared missed runs for scope %s", scope))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(maintenanceCmd)

	maintenanceCmd.AddCommand(maintenancePreviewCmd)
	maintenanceCmd.AddCommand(maintenanceRunCmd)
	maintenanceCmd.AddCommand(maintenanceDeleteCmd)
	maintenanceCmd.AddCommand(maintenanceHistoryCmd)
	maintenanceCmd.AddCommand(maintenanceStateCmd)
	maintenanceCmd.AddCommand(maintenanceAckCmd)

	maintenanceCmd.PersistentFlags().StringVar(&maintDataDir, "data-dir", "", "panel data directory (default ./"+app.DataDirName+")")
	maintenanceCmd.PersistentFlags().StringVar(&maintBackupsDir, "backup-dir", "", "backup archive directory")
	maintenanceCmd.PersistentFlags().StringVar(&maintOldWorldsDir, "old-worlds-dir", "", "retired worlds directory")
	maintenanceCmd.PersistentFlags().StringVar(&maintServerDir, "server-dir", "", "live game server directory")
	maintenanceCmd.PersistentFlags().StringVarP(&maintScope, "scope", "s", string(entities.ScopeBackups), "maintenance scope (backups, stale_worlds)")

	maintenanceRunCmd.Flags().BoolVar(&maintDryRun, "dry-run", false, "evaluate without deleting anything")
	maintenanceRunCmd.Flags().StringVar(&maintRuleKey, "rule", "", "restrict the run to one gate (age, count, space)")
	maintenanceDeleteCmd.Flags().BoolVar(&maintDryRun, "dry-run", false, "evaluate without deleting anything")
	maintenanceDeleteCmd.Flags().StringArrayVar(&maintPaths, "path", nil, "artifact path to delete (repeatable)")
	maintenanceHistoryCmd.Flags().IntVar(&maintLimit, "limit", app.DefaultHistoryLimit, "maximum runs to list")
}

func maintService() (*services.MaintenanceService, error) {
	dataDir, err := resolveDataDir(maintDataDir)
	if err != nil {
		return nil, err
	}
	return newMaintenanceService(dataDir, maintBackupsDir, maintOldWorldsDir, maintServerDir), nil
}

func cliActor() string {
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "cli"
}

func printSelection(selection *entities.DeletionSelection) error {
	switch format {
	case app.JSONFormat:
		return json.NewEncoder(os.Stdout).Encode(selection)
	case app.YAMLFormat:
		return printYAML(selection)
	}

	header := fmt.Sprintf("Scope %s: %d eligible, %d requested, %d after caps",
		selection.Scope, selection.EligibleCount, selection.RequestedDeleteCount, selection.CappedDeleteCount)
	if selection.DryRun {
		printInfo(header + " (dry run)")
	} else {
		printInfo(header)
	}

	for _, item := range selection.Items {
		if !item.SelectedForDelete && !item.Eligible {
			continue
		}
		mark := " "
		if item.SelectedForDelete {
			mark = "x"
		}
		fmt.Printf("  [%s] %-40s %-15s %s\n", mark, item.Name, item.Category, joinReasons(item.Reasons))
	}
	for _, path := range selection.SelectedIneligible {
		printWarning(fmt.Sprintf("excluded: %s", path))
	}
	for _, e := range selection.Errors {
		printWarning(e)
	}
	return nil
}

func joinReasons(reasons []string) string {
	if len(reasons) == 0 {
		return "-"
	}
	out := reasons[0]
	for _, r := range reasons[1:] {
		out += "," + r
	}
	return out
}
