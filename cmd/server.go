package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/craftdeck/craftdeck/internal/app"
	"github.com/craftdeck/craftdeck/internal/server"
)

var (
	serverDataDir      string
	serverBackupsDir   string
	serverOldWorldsDir string
	serverWorldDir     string
	serverPort         int
	serverAdminToken   string
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Manage the CraftDeck HTTP server",
	Long: `Start, stop, and inspect the CraftDeck maintenance server.

The server exposes the maintenance core over a REST API and runs the
retention scheduler in the background.

Examples:
  craftdeck server start                       # Start on the first free port
  craftdeck server start --port 4095           # Pin the port
  craftdeck server status                      # Check server status
  craftdeck server stop                        # Stop a running server`,
}

var serverStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the CraftDeck maintenance server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServerStart(cmd, args)
	},
}

var serverStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a running CraftDeck server",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, err := resolveDataDir(serverDataDir)
		if err != nil {
			return err
		}

		pid, err := readServerPID(dataDir)
		if err != nil {
			printInfo("No running server found")
			return nil
		}

		process, err := os.FindProcess(pid)
		if err != nil {
			return err
		}
		if err := process.Signal(syscall.SIGTERM); err != nil {
			printError(fmt.Errorf("failed to signal server process %d: %v", pid, err))
			return err
		}
		printSuccess(fmt.Sprintf("Sent shutdown signal to server (pid %d)", pid))
		return nil
	},
}

var serverStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		dataDir, err := resolveDataDir(serverDataDir)
		if err != nil {
			return err
		}

		pid, err := readServerPID(dataDir)
		if err != nil {
			printInfo("Server is not running")
			return nil
		}

		process, err := os.FindProcess(pid)
		if err == nil && process.Signal(syscall.Signal(0)) == nil {
			printSuccess(fmt.Sprintf("Server is running (pid %d)", pid))
		} else {
			printWarning(fmt.Sprintf("Stale PID file found (pid %d, process not running)", pid))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	serverCmd.AddCommand(serverStartCmd)
	serverCmd.AddCommand(serverStopCmd)
	serverCmd.AddCommand(serverStatusCmd)

	serverCmd.PersistentFlags().StringVar(&serverDataDir, "data-dir", "", "panel data directory (default ./"+app.DataDirName+")")

	serverStartCmd.Flags().StringVar(&serverBackupsDir, "backup-dir", "", "backup archive directory")
	serverStartCmd.Flags().StringVar(&serverOldWorldsDir, "old-worlds-dir", "", "retired worlds directory")
	serverStartCmd.Flags().StringVar(&serverWorldDir, "server-dir", "", "live game server directory")
	serverStartCmd.Flags().IntVarP(&serverPort, "port", "p", 0, "port to run server on (0 scans the range)")
	serverStartCmd.Flags().StringVar(&serverAdminToken, "admin-token", "", "shared token required on mutating requests")
}

func runServerStart(cmd *cobra.Command, args []string) error {
	dataDir, err := resolveDataDir(serverDataDir)
	if err != nil {
		return err
	}

	srv, err := server.NewServer(server.Config{
		BasePath:     dataDir,
		BackupsDir:   serverBackupsDir,
		OldWorldsDir: serverOldWorldsDir,
		ServerDir:    serverWorldDir,
		Port:         serverPort,
		AdminToken:   serverAdminToken,
	})
	if err != nil {
		printError(fmt.Errorf("failed to create server: %v", err))
		return err
	}

	if srv.IsRunning() {
		printWarning("A server is already running for this data directory")
		return nil
	}

	printInfo(fmt.Sprintf("Starting %s server on port %d...", app.AppName, srv.GetPort()))

	// Shut down cleanly on SIGINT/SIGTERM.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		if err := srv.Stop(); err != nil {
			printError(err)
		}
	}()

	if err := srv.Start(); err != nil {
		printError(err)
		return err
	}
	return nil
}

func readServerPID(dataDir string) (int, error) {
	data, err := os.ReadFile(filepath.Join(dataDir, app.ServerPIDFile))
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(string(data))
}
