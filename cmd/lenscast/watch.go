package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lenscast/lenscast/internal/client"
	configstore "github.com/lenscast/lenscast/internal/config/store"
	"github.com/lenscast/lenscast/internal/desktop"
	"github.com/lenscast/lenscast/internal/protocol"
	"github.com/lenscast/lenscast/internal/validate"
	"github.com/lenscast/lenscast/internal/vision"
)

func newWatchCommand() *cobra.Command {
	watchCmd := &cobra.Command{
		Use:   "watch",
		Short: "Receive frames from the phone and control it interactively",
		Long: `Watch subscribes to a session with the desktop role and reports every
frame and torch update the phone sends. Without --session it resumes the
saved session from 'lenscast session new'.

Commands read from stdin while watching:
  mode raw|cropped                  switch the phone's capture mode
  torch on|off                      toggle the phone's torch
  calibrate x1,y1 x2,y2 x3,y3 x4,y4 push crop corners (TL TR BL BR)
  clear                             clear the pushed calibration
  quit                              leave the session and exit

With --json, events are written as newline-delimited JSON.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runWatch,
	}
	watchCmd.Flags().String("session", "", "Session id to subscribe to (defaults to the saved session)")
	watchCmd.Flags().Bool("auto-calibrate", false, "Push calibration automatically while the target region is detected")
	watchCmd.Flags().String("target", "", "Target region for --auto-calibrate: \"x1,y1 x2,y2 x3,y3 x4,y4\"")
	return watchCmd
}

func runWatch(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	sessionID, _ := cmd.Flags().GetString("session")
	sessionID = strings.TrimSpace(sessionID)
	if sessionID != "" && !validate.SessionID(sessionID) {
		return out.Error(fmt.Sprintf("Invalid session id %q", sessionID), nil)
	}

	store, storeErr := openStateStore(true)
	if storeErr == nil {
		defer store.Close()
	}

	relayURL, saved, err := resolveWatchTarget(cmd, store, sessionID)
	if err != nil {
		return out.Error("Failed to resolve session", err)
	}

	var agentStore desktop.SessionStore
	if store != nil {
		agentStore = store
	}
	agent := desktop.New(desktop.Config{Store: agentStore})

	autoCalibrate, _ := cmd.Flags().GetBool("auto-calibrate")
	if autoCalibrate {
		target, _ := cmd.Flags().GetString("target")
		corners, err := parseCorners(strings.Fields(target))
		if err != nil {
			return out.Error("The built-in detector needs --target corners", err)
		}
		detector := vision.NewStaticDetector(corners)
		agent.EnableAutoCalibration(desktop.NewAutoCalibrator(detector, agent, desktop.AutoCalibratorConfig{}))
	}

	registerWatchCallbacks(agent, out)

	conn, err := client.Dial(relayURL, protocol.RoleDesktop, agent.HandleMessage)
	if err != nil {
		return out.Error("Failed to connect to relay", err)
	}
	defer conn.Close()
	agent.Bind(conn)

	if sessionID != "" {
		if err := agent.Subscribe(sessionID); err != nil {
			return out.Error("Failed to subscribe", err)
		}
	} else {
		ctx, cancel := context.WithTimeout(context.Background(), storeRequestTimeout)
		resumed, err := agent.Resume(ctx)
		cancel()
		if err != nil {
			if configstore.IsNotFound(err) {
				return out.Error("No saved session; run 'lenscast session new' or pass --session", nil)
			}
			if errors.Is(err, desktop.ErrSavedSessionExpired) {
				return out.Error("Saved session expired; run 'lenscast session new'", nil)
			}
			return out.Error("Failed to resume saved session", err)
		}
		sessionID = resumed
	}

	if !out.jsonMode {
		fmt.Printf("Watching session %s on %s\n", sessionID, relayURL)
		if saved.JoinURL != "" {
			fmt.Printf("Join URL: %s\n", saved.JoinURL)
		}
		fmt.Println("Type 'help' for commands, 'quit' or Ctrl+C to exit.")
	}

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
		close(lines)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	for {
		select {
		case <-sigChan:
			if !out.jsonMode {
				fmt.Println("\nLeaving session...")
			}
			agent.Unsubscribe()
			return nil
		case line, ok := <-lines:
			if !ok {
				agent.Unsubscribe()
				return nil
			}
			if quit := handleWatchCommand(agent, line); quit {
				agent.Unsubscribe()
				return nil
			}
		}
	}
}

// resolveWatchTarget picks the relay URL and, when no explicit session id was
// given, surfaces the saved session record for display.
func resolveWatchTarget(cmd *cobra.Command, store *configstore.Store, sessionID string) (string, configstore.SavedSession, error) {
	var saved configstore.SavedSession

	if sessionID == "" {
		if store == nil {
			return "", saved, fmt.Errorf("no saved session and no --session id")
		}
		ctx, cancel := context.WithTimeout(context.Background(), storeRequestTimeout)
		defer cancel()
		loaded, err := store.LoadSession(ctx)
		if err == nil {
			saved = loaded
		}
	}

	if relay, _ := cmd.Flags().GetString("relay"); strings.TrimSpace(relay) != "" {
		return strings.TrimSpace(relay), saved, nil
	}
	if saved.RelayURL != "" {
		return saved.RelayURL, saved, nil
	}
	return resolveRelayURL(cmd), saved, nil
}

// registerWatchCallbacks prints incoming events, one line each.
func registerWatchCallbacks(agent *desktop.Agent, out *OutputFormatter) {
	var frameCount int64

	agent.SetOnFrame(func(frame desktop.Frame) {
		frameCount++
		if out.jsonMode {
			emitWatchEvent(map[string]interface{}{
				"event": "frame",
				"n":     frameCount,
				"mode":  frame.Mode,
				"bytes": base64Bytes(frame.ImageData),
				"dims":  frame.Dimensions,
			})
			return
		}
		dims := ""
		if frame.Dimensions != nil {
			dims = fmt.Sprintf("  %dx%d", frame.Dimensions.Width, frame.Dimensions.Height)
		}
		fmt.Printf("frame #%d  %s%s  %.1f KB\n", frameCount, frame.Mode, dims, float64(base64Bytes(frame.ImageData))/1024)
	})

	agent.SetTorchStateCallback(func(state protocol.TorchStatePayload) {
		if out.jsonMode {
			emitWatchEvent(map[string]interface{}{
				"event":     "torch",
				"on":        state.IsTorchOn,
				"available": state.IsTorchAvailable,
			})
			return
		}
		status := "off"
		if state.IsTorchOn {
			status = "on"
		}
		if !state.IsTorchAvailable {
			status += " (unavailable)"
		}
		fmt.Printf("torch: %s\n", status)
	})

	agent.SetErrorCallback(func(reason string) {
		if out.jsonMode {
			emitWatchEvent(map[string]interface{}{
				"event": "error",
				"error": reason,
			})
			return
		}
		fmt.Fprintf(os.Stderr, "relay error: %s\n", reason)
	})
}

func emitWatchEvent(event map[string]interface{}) {
	line, err := json.Marshal(event)
	if err != nil {
		return
	}
	fmt.Println(string(line))
}

// base64Bytes estimates the decoded size of a base64 payload.
func base64Bytes(data string) int {
	return len(data) * 3 / 4
}

// handleWatchCommand runs one stdin command. Returns true when the user asked
// to quit.
func handleWatchCommand(agent *desktop.Agent, line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "quit", "exit":
		return true

	case "help":
		fmt.Println("Commands: mode raw|cropped, torch on|off, calibrate x1,y1 x2,y2 x3,y3 x4,y4, clear, quit")

	case "mode":
		if len(fields) != 2 {
			fmt.Fprintln(os.Stderr, "usage: mode raw|cropped")
			return false
		}
		mode := protocol.FrameMode(fields[1])
		if !mode.Valid() {
			fmt.Fprintf(os.Stderr, "unknown mode %q\n", fields[1])
			return false
		}
		if err := agent.SetPhoneFrameMode(mode); err != nil {
			fmt.Fprintf(os.Stderr, "set mode: %v\n", err)
		}

	case "torch":
		if len(fields) != 2 || (fields[1] != "on" && fields[1] != "off") {
			fmt.Fprintln(os.Stderr, "usage: torch on|off")
			return false
		}
		if err := agent.RequestTorch(fields[1] == "on"); err != nil {
			fmt.Fprintf(os.Stderr, "request torch: %v\n", err)
		}

	case "calibrate":
		corners, err := parseCorners(fields[1:])
		if err != nil {
			fmt.Fprintf(os.Stderr, "calibrate: %v\n", err)
			return false
		}
		if err := agent.PushCalibration(corners); err != nil {
			fmt.Fprintf(os.Stderr, "push calibration: %v\n", err)
		}

	case "clear":
		if err := agent.ClearCalibration(); err != nil {
			fmt.Fprintf(os.Stderr, "clear calibration: %v\n", err)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command %q (try 'help')\n", fields[0])
	}
	return false
}
