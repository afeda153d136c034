package main

import (
	"fmt"

	"github.com/spf13/cobra"

	lenscastversion "github.com/lenscast/lenscast/internal/version"
)

func newVersionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "version",
		Short: "Show client and daemon versions",
		RunE:  runVersion,
	}
	return cmd
}

func runVersion(cmd *cobra.Command, _ []string) error {
	out := newOutputFormatter(cmd)
	clientVersion := lenscastversion.String()

	var daemonVersion string
	var daemonReachable bool
	var daemonErr error
	if api, err := newRelayAPI(cmd); err == nil {
		if status, statusErr := api.DaemonStatus(); statusErr == nil {
			daemonReachable = true
			daemonVersion = status.Version
		} else {
			daemonErr = statusErr
		}
	} else {
		daemonErr = err
	}

	if out.jsonMode {
		data := map[string]interface{}{
			"client": clientVersion,
		}
		if daemonReachable {
			if daemonVersion != "" {
				data["daemon"] = daemonVersion
			} else {
				data["daemon"] = "unknown"
			}
			if w := lenscastversion.CheckVersionMismatch(daemonVersion); w != "" {
				data["mismatch"] = true
				data["warning"] = w
			}
		} else {
			data["daemon"] = nil
			if daemonErr != nil {
				data["daemon_error"] = daemonErr.Error()
			}
		}
		return out.Print(data)
	}

	fmt.Printf("Client: %s\n", lenscastversion.FormatVersion(clientVersion))
	if daemonReachable {
		if daemonVersion != "" {
			fmt.Printf("Daemon: %s\n", lenscastversion.FormatVersion(daemonVersion))
		} else {
			fmt.Println("Daemon: running (version unknown)")
		}
		if w := lenscastversion.CheckVersionMismatch(daemonVersion); w != "" {
			fmt.Println(w)
		}
	} else {
		fmt.Printf("Daemon: unavailable (%v)\n", daemonErr)
	}

	return nil
}
