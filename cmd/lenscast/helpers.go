package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/lenscast/lenscast/internal/client"
	"github.com/lenscast/lenscast/internal/config"
	configstore "github.com/lenscast/lenscast/internal/config/store"
	"github.com/lenscast/lenscast/internal/constants"
	"github.com/lenscast/lenscast/internal/protocol"
)

const storeRequestTimeout = 5 * time.Second

// openStateStore opens the default instance's state database. Read-only opens
// fail when no daemon has ever initialised the store; callers treat that as
// "no local daemon state".
func openStateStore(readOnly bool) (*configstore.Store, error) {
	return configstore.Open(configstore.Options{
		InstanceName: config.DefaultInstance,
		ProfileName:  config.DefaultProfile,
		ReadOnly:     readOnly,
	})
}

// resolveRelayURL picks the relay base URL: the --relay flag when set,
// otherwise the port the local daemon persisted into the state store,
// otherwise the default port.
func resolveRelayURL(cmd *cobra.Command) string {
	if relay, _ := cmd.Flags().GetString("relay"); strings.TrimSpace(relay) != "" {
		return strings.TrimSpace(relay)
	}

	if store, err := openStateStore(true); err == nil {
		defer store.Close()
		ctx, cancel := context.WithTimeout(context.Background(), storeRequestTimeout)
		defer cancel()
		if cfg, err := store.GetTransportConfig(ctx); err == nil && cfg.Port > 0 {
			return fmt.Sprintf("http://127.0.0.1:%d", cfg.Port)
		}
	}

	return fmt.Sprintf("http://127.0.0.1:%d", constants.DefaultHTTPPort)
}

// newRelayAPI builds the REST client against the resolved relay URL.
func newRelayAPI(cmd *cobra.Command) (*client.API, error) {
	return client.NewAPI(resolveRelayURL(cmd))
}

// parseCorners reads four "x,y" tokens in top-left, top-right, bottom-left,
// bottom-right order.
func parseCorners(tokens []string) (protocol.QuadCorners, error) {
	var corners protocol.QuadCorners
	if len(tokens) != 4 {
		return corners, fmt.Errorf("need 4 corners (x,y pairs), got %d", len(tokens))
	}

	points := make([]protocol.Point, 4)
	for i, token := range tokens {
		parts := strings.Split(strings.TrimSpace(token), ",")
		if len(parts) != 2 {
			return corners, fmt.Errorf("corner %q is not an x,y pair", token)
		}
		x, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
		if err != nil {
			return corners, fmt.Errorf("corner %q: %w", token, err)
		}
		y, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
		if err != nil {
			return corners, fmt.Errorf("corner %q: %w", token, err)
		}
		points[i] = protocol.Point{X: x, Y: y}
	}

	corners.TopLeft = points[0]
	corners.TopRight = points[1]
	corners.BottomLeft = points[2]
	corners.BottomRight = points[3]
	return corners, nil
}

// formatExpiry renders the remaining lifetime of a session, e.g. "9m30s".
func formatExpiry(expiresAt time.Time) string {
	remaining := time.Until(expiresAt).Round(time.Second)
	if remaining <= 0 {
		return "expired"
	}
	return remaining.String()
}
