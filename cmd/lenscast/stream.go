package main

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/lenscast/lenscast/internal/client"
	"github.com/lenscast/lenscast/internal/media"
	"github.com/lenscast/lenscast/internal/phone"
	"github.com/lenscast/lenscast/internal/protocol"
	"github.com/lenscast/lenscast/internal/validate"
)

func newStreamCommand() *cobra.Command {
	streamCmd := &cobra.Command{
		Use:   "stream",
		Short: "Simulate the phone: stream frames into a session",
		Long: `Stream joins a session with the phone role and sends frames from a
synthetic source. Useful for developing the desktop side without a phone.

The source is either the built-in moving test pattern or a directory of
JPEG/PNG images cycled in name order. Torch requests from the desktop are
answered with a simulated torch.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runStream,
	}
	streamCmd.Flags().String("url", "", "Join URL (or bare session id) printed by 'lenscast session new'")
	streamCmd.Flags().String("source", "pattern", "Frame source: 'pattern' or a directory of images")
	streamCmd.Flags().Int("fps", 0, "Target frames per second")
	streamCmd.Flags().Int("width", 0, "Downscale width for raw frames")
	streamCmd.Flags().Int("quality", 0, "JPEG quality (1-100)")
	return streamCmd
}

func runStream(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	joinArg, _ := cmd.Flags().GetString("url")
	joinArg = strings.TrimSpace(joinArg)
	if joinArg == "" {
		return out.Error("A join URL is required (--url)", nil)
	}

	sessionID, err := protocol.ParseJoinURL(joinArg)
	if err != nil {
		return out.Error("Invalid join URL", err)
	}
	if !validate.SessionID(sessionID) {
		return out.Error(fmt.Sprintf("Invalid session id %q", sessionID), nil)
	}
	relayURL := relayURLFromJoin(cmd, joinArg)

	src, sourceName, err := buildFrameSource(cmd)
	if err != nil {
		return out.Error("Failed to open frame source", err)
	}
	defer src.Close()

	fps, _ := cmd.Flags().GetInt("fps")
	width, _ := cmd.Flags().GetInt("width")
	quality, _ := cmd.Flags().GetInt("quality")

	agent := phone.New(phone.Config{
		TargetFPS:   fps,
		RawWidth:    width,
		JPEGQuality: quality,
	})

	// Simulated torch: acknowledge every request as applied.
	agent.SetTorchCallback(func(on bool) {
		if !out.jsonMode {
			fmt.Printf("torch request: %v\n", on)
		}
		if err := agent.EmitTorchState(on, true); err != nil {
			fmt.Fprintf(os.Stderr, "report torch state: %v\n", err)
		}
	})
	agent.SetErrorCallback(func(reason string) {
		fmt.Fprintf(os.Stderr, "relay error: %s\n", reason)
	})

	conn, err := client.Dial(relayURL, protocol.RolePhone, agent.HandleMessage)
	if err != nil {
		return out.Error("Failed to connect to relay", err)
	}
	defer conn.Close()
	agent.Bind(conn)

	if err := agent.Connect(sessionID); err != nil {
		return out.Error("Failed to join session", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	if err := agent.StartSending(ctx, src, nil); err != nil {
		return out.Error("Failed to start streaming", err)
	}
	defer agent.StopSending()

	if out.jsonMode {
		out.Success("streaming", map[string]interface{}{
			"session": sessionID,
			"relay":   relayURL,
			"source":  sourceName,
		})
	} else {
		fmt.Printf("Streaming to session %s on %s (source: %s)\n", sessionID, relayURL, sourceName)
		fmt.Println("Press Ctrl+C to stop.")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	<-sigChan

	if !out.jsonMode {
		fmt.Println("\nStopping stream...")
	}
	agent.StopSending()
	agent.Disconnect()
	return nil
}

// relayURLFromJoin derives the relay base URL from a full join URL. A bare
// session id falls back to the usual resolution.
func relayURLFromJoin(cmd *cobra.Command, joinArg string) string {
	if !strings.Contains(joinArg, "://") {
		return resolveRelayURL(cmd)
	}
	u, err := url.Parse(joinArg)
	if err != nil || u.Host == "" {
		return resolveRelayURL(cmd)
	}
	return u.Scheme + "://" + u.Host
}

func buildFrameSource(cmd *cobra.Command) (media.Source, string, error) {
	source, _ := cmd.Flags().GetString("source")
	source = strings.TrimSpace(source)

	if source == "" || source == "pattern" {
		return media.NewTestPatternSource(0, 0), "pattern", nil
	}

	src, err := media.NewDirectorySource(source)
	if err != nil {
		return nil, "", err
	}
	return src, source, nil
}
