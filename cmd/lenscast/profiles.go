package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/lenscast/lenscast/internal/validate"
)

func newProfileCommand() *cobra.Command {
	profileCmd := &cobra.Command{
		Use:           "profile",
		Short:         "Manage configuration profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	profileListCmd := &cobra.Command{
		Use:           "list",
		Short:         "List profiles",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          profileList,
	}

	profileUseCmd := &cobra.Command{
		Use:           "use <name>",
		Short:         "Switch the default profile",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          profileUse,
	}

	profileCmd.AddCommand(profileListCmd, profileUseCmd)
	return profileCmd
}

func profileList(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)

	store, err := openStateStore(false)
	if err != nil {
		return out.Error("Failed to open state store", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), storeRequestTimeout)
	defer cancel()

	profiles, err := store.Profiles(ctx)
	if err != nil {
		return out.Error("Failed to list profiles", err)
	}

	if out.jsonMode {
		return out.Print(map[string]interface{}{"profiles": profiles})
	}

	fmt.Println("Profiles:")
	for _, profile := range profiles {
		marker := " "
		if profile.IsDefault {
			marker = "*"
		}
		fmt.Printf("  %s %s\n", marker, profile.Name)
	}
	return nil
}

func profileUse(cmd *cobra.Command, args []string) error {
	out := newOutputFormatter(cmd)
	name := strings.TrimSpace(args[0])
	if !validate.Ident(name) {
		return out.Error(fmt.Sprintf("Invalid profile name %q", name), nil)
	}

	store, err := openStateStore(false)
	if err != nil {
		return out.Error("Failed to open state store", err)
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), storeRequestTimeout)
	defer cancel()

	if err := store.ActivateProfile(ctx, name); err != nil {
		return out.Error(fmt.Sprintf("Failed to activate profile %q", name), err)
	}

	return out.Success(fmt.Sprintf("Profile %q is now the default", name), map[string]interface{}{
		"profile": name,
	})
}
