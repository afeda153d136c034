package store

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
)

// GetTransportConfig loads transport-related settings for the active profile.
func (s *Store) GetTransportConfig(ctx context.Context) (TransportConfig, error) {
	settings, err := s.LoadSettings(ctx,
		"transport.http_port",
		"transport.binding",
		"transport.advertised_url",
		"transport.allowed_origins",
	)
	if err != nil {
		return TransportConfig{}, err
	}

	cfg := TransportConfig{
		Binding:        "loopback",
		AllowedOrigins: []string{},
	}

	if portStr := settings["transport.http_port"]; portStr != "" {
		port, err := strconv.Atoi(portStr)
		if err != nil {
			return TransportConfig{}, fmt.Errorf("config: parse transport.http_port: %w", err)
		}
		cfg.Port = port
	}

	if binding := settings["transport.binding"]; binding != "" {
		cfg.Binding = binding
	}
	cfg.AdvertisedURL = settings["transport.advertised_url"]

	if originsJSON, ok := settings["transport.allowed_origins"]; ok && originsJSON != "" {
		origins, err := DecodeJSON[[]string](sql.NullString{String: originsJSON, Valid: true})
		if err != nil {
			return TransportConfig{}, fmt.Errorf("config: parse transport.allowed_origins: %w", err)
		}
		cfg.AllowedOrigins = origins
	}

	return cfg, nil
}

// SaveTransportConfig persists the provided transport configuration.
func (s *Store) SaveTransportConfig(ctx context.Context, cfg TransportConfig) error {
	originsJSON, _, err := encodeJSONString(cfg.AllowedOrigins, nil)
	if err != nil {
		return fmt.Errorf("config: marshal transport.allowed_origins: %w", err)
	}

	values := map[string]string{
		"transport.http_port":       strconv.Itoa(cfg.Port),
		"transport.binding":         cfg.Binding,
		"transport.advertised_url":  cfg.AdvertisedURL,
		"transport.allowed_origins": originsJSON,
	}

	return s.SaveSettings(ctx, values)
}
