package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	configstore "github.com/lenscast/lenscast/internal/config/store"
	"github.com/lenscast/lenscast/internal/desktop"
)

func newSessionCommand() *cobra.Command {
	sessionCmd := &cobra.Command{
		Use:           "session",
		Short:         "Manage the saved camera session",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	sessionNewCmd := &cobra.Command{
		Use:           "new",
		Short:         "Create a relay session and print its join URL",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          sessionNew,
	}

	sessionShowCmd := &cobra.Command{
		Use:           "show",
		Short:         "Show the saved session",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          sessionShow,
	}

	sessionClearCmd := &cobra.Command{
		Use:           "clear",
		Short:         "Forget the saved session",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          sessionClear,
	}

	sessionCmd.AddCommand(sessionNewCmd, sessionShowCmd, sessionClearCmd)
	return sessionCmd
}

func sessionNew(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	api, err := newRelayAPI(cmd)
	if err != nil {
		return out.Error("Invalid relay URL", err)
	}

	store, err := openStateStore(false)
	if err != nil {
		return out.Error("Failed to open state store", err)
	}
	defer store.Close()

	agent := desktop.New(desktop.Config{API: api, Store: store})

	ctx, cancel := context.WithTimeout(context.Background(), storeRequestTimeout)
	defer cancel()

	// Housekeeping: drop expired saved sessions before writing the new one.
	if _, err := store.PruneExpiredSessions(ctx, time.Now()); err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "Warning: prune expired sessions: %v\n", err)
	}

	sess, err := agent.CreateSession(ctx)
	if err != nil {
		return out.Error("Failed to create session", err)
	}

	if out.jsonMode {
		return out.Print(sess)
	}

	fmt.Println("Session created:")
	fmt.Printf("  ID:       %s\n", sess.ID)
	fmt.Printf("  Join URL: %s\n", sess.JoinURL)
	fmt.Printf("  Expires:  %s (in %s)\n", sess.ExpiresAt.Local().Format(time.RFC3339), formatExpiry(sess.ExpiresAt))
	fmt.Println("Open the join URL on the phone, then run 'lenscast watch'.")
	return nil
}

func sessionShow(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	store, err := openStateStore(true)
	if err != nil {
		return out.Error("No saved session", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), storeRequestTimeout)
	defer cancel()

	saved, err := store.LoadSession(ctx)
	if err != nil {
		if configstore.IsNotFound(err) {
			if out.jsonMode {
				return out.Print(map[string]interface{}{"session": nil})
			}
			fmt.Println("No saved session. Run 'lenscast session new' to create one.")
			return nil
		}
		return out.Error("Failed to load saved session", err)
	}

	if out.jsonMode {
		return out.Print(saved)
	}

	fmt.Println("Saved session:")
	fmt.Printf("  ID:        %s\n", saved.SessionID)
	fmt.Printf("  Relay:     %s\n", saved.RelayURL)
	fmt.Printf("  Join URL:  %s\n", saved.JoinURL)
	fmt.Printf("  Created:   %s\n", saved.CreatedAt)
	if saved.ExpiresAt != "" {
		fmt.Printf("  Expires:   %s", saved.ExpiresAt)
		if expiresAt, err := time.Parse(time.RFC3339, saved.ExpiresAt); err == nil {
			fmt.Printf(" (%s)", formatExpiry(expiresAt))
		}
		fmt.Println()
	}
	return nil
}

func sessionClear(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	store, err := openStateStore(false)
	if err != nil {
		return out.Error("Failed to open state store", err)
	}
	defer store.Close()

	agent := desktop.New(desktop.Config{Store: store})

	ctx, cancel := context.WithTimeout(context.Background(), storeRequestTimeout)
	defer cancel()

	if err := agent.ClearSession(ctx); err != nil {
		return out.Error("Failed to clear saved session", err)
	}

	return out.Success("Saved session cleared", map[string]interface{}{
		"cleared": true,
	})
}
