package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lenscast/lenscast/internal/constants"
	"github.com/lenscast/lenscast/internal/validate"
)

func newConfigCommand() *cobra.Command {
	configCmd := &cobra.Command{
		Use:           "config",
		Short:         "Manage daemon configuration",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	configTransportCmd := &cobra.Command{
		Use:   "transport",
		Short: "Show or update the daemon's transport configuration",
		Long: `Transport settings live in the state store and are read by lenscastd at
startup. With no flags the current configuration is printed. Updating a
setting does not reconfigure a running daemon; restart it to apply.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          configTransport,
	}
	configTransportCmd.Flags().String("binding", "", "Bind address mode (loopback|lan|public)")
	configTransportCmd.Flags().Int("port", 0, "HTTP port (0 restores the default)")
	configTransportCmd.Flags().String("advertised-url", "", "External base URL embedded in join URLs (empty restores auto)")
	configTransportCmd.Flags().StringSlice("allowed-origin", nil, "Allowed browser origin for the API (repeatable)")

	configCmd.AddCommand(configTransportCmd)
	return configCmd
}

func configTransport(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	flags := cmd.Flags()

	updating := flags.Changed("binding") || flags.Changed("port") ||
		flags.Changed("advertised-url") || flags.Changed("allowed-origin")

	store, err := openStateStore(false)
	if err != nil {
		return out.Error("Failed to open state store", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), storeRequestTimeout)
	defer cancel()

	cfg, err := store.GetTransportConfig(ctx)
	if err != nil {
		return out.Error("Failed to load transport configuration", err)
	}

	if updating {
		if flags.Changed("binding") {
			binding, _ := flags.GetString("binding")
			binding = strings.ToLower(strings.TrimSpace(binding))
			switch binding {
			case "loopback", "lan", "public":
			default:
				return out.Error(fmt.Sprintf("Invalid binding %q (want loopback, lan or public)", binding), nil)
			}
			cfg.Binding = binding
		}
		if flags.Changed("port") {
			port, _ := flags.GetInt("port")
			if port < 0 || port > 65535 {
				return out.Error(fmt.Sprintf("Invalid port %d", port), nil)
			}
			cfg.Port = port
		}
		if flags.Changed("advertised-url") {
			raw, _ := flags.GetString("advertised-url")
			raw = strings.TrimRight(strings.TrimSpace(raw), "/")
			if raw != "" {
				if err := validate.HTTPURL(raw); err != nil {
					return out.Error("Invalid advertised URL", err)
				}
			}
			cfg.AdvertisedURL = raw
		}
		if flags.Changed("allowed-origin") {
			origins, _ := flags.GetStringSlice("allowed-origin")
			cfg.AllowedOrigins = origins
		}

		if err := store.SaveTransportConfig(ctx, cfg); err != nil {
			return out.Error("Failed to save transport configuration", err)
		}
	}

	if out.jsonMode {
		return out.Print(map[string]interface{}{
			"binding":         cfg.Binding,
			"port":            cfg.Port,
			"advertised_url":  cfg.AdvertisedURL,
			"allowed_origins": cfg.AllowedOrigins,
			"updated":         updating,
		})
	}

	fmt.Println("Transport configuration:")
	fmt.Printf("  Binding:         %s\n", cfg.Binding)
	if cfg.Port == 0 {
		fmt.Printf("  Port:            %d (default)\n", constants.DefaultHTTPPort)
	} else {
		fmt.Printf("  Port:            %d\n", cfg.Port)
	}
	if cfg.AdvertisedURL != "" {
		fmt.Printf("  Advertised URL:  %s\n", cfg.AdvertisedURL)
	}
	if len(cfg.AllowedOrigins) > 0 {
		fmt.Printf("  Allowed origins: %s\n", strings.Join(cfg.AllowedOrigins, ", "))
	}
	if updating {
		fmt.Println("Restart lenscastd to apply the new settings.")
	}
	return nil
}
