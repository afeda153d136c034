package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lenscast/lenscast/internal/config"
	"github.com/lenscast/lenscast/internal/procutil"
	lenscastversion "github.com/lenscast/lenscast/internal/version"
)

func newDaemonCommand() *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:           "daemon",
		Short:         "Daemon management commands",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	daemonStatusCmd := &cobra.Command{
		Use:           "status",
		Short:         "Get daemon status",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonStatus,
	}

	daemonStopCmd := &cobra.Command{
		Use:           "stop",
		Short:         "Stop the daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          daemonStop,
	}

	daemonCmd.AddCommand(daemonStatusCmd, daemonStopCmd)
	return daemonCmd
}

func daemonStatus(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	api, err := newRelayAPI(cmd)
	if err != nil {
		return out.Error("Invalid relay URL", err)
	}

	status, err := api.DaemonStatus()
	if err != nil {
		return out.Error("Failed to reach daemon", err)
	}

	if out.jsonMode {
		return out.Print(status)
	}

	fmt.Println("Daemon Status:")
	fmt.Printf("  Version:     %s\n", status.Version)
	fmt.Printf("  Relay:       %s\n", api.BaseURL())
	fmt.Printf("  Started:     %s\n", status.StartedAt.Local().Format(time.RFC3339))
	fmt.Printf("  Uptime:      %s\n", time.Since(status.StartedAt).Round(time.Second))
	fmt.Printf("  Sessions:    %d\n", status.ActiveSessions)
	fmt.Printf("  Connections: %d\n", status.Connections)

	if warning := lenscastversion.CheckVersionMismatch(status.Version); warning != "" {
		fmt.Println(warning)
	}
	return nil
}

// daemonStop signals the local daemon via its PID file. There is no remote
// shutdown endpoint; stopping a remote daemon is out of reach on purpose.
func daemonStop(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	paths := config.GetInstancePaths(config.DefaultInstance)
	data, err := os.ReadFile(paths.PIDFile)
	if err != nil {
		return out.Error("Daemon is not running (no PID file)", err)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return out.Error("Invalid daemon PID file", err)
	}

	if !procutil.IsProcessAlive(pid) {
		os.Remove(paths.PIDFile)
		return out.Error("Daemon is not running (stale PID file removed)", nil)
	}

	if err := procutil.TerminateByPID(pid); err != nil {
		return out.Error("Failed to signal daemon", err)
	}

	return out.Success("Sent termination signal to daemon", map[string]interface{}{
		"pid": pid,
	})
}
