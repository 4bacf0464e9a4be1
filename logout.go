package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/tonimelisma/onedrive-backup/internal/config"
	"github.com/tonimelisma/onedrive-backup/internal/graph"
)

func newLogoutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "logout <name>",
		Short: "Forget the saved sign-in for a backup",
		Long: `Deletes the token file saved for <name>. The next backup with that name
opens the browser to sign in again.`,
		Args: cobra.ExactArgs(1),
		RunE: runLogout,
	}
}

func runLogout(_ *cobra.Command, args []string) error {
	logger := buildLogger(os.Stderr)

	removed, err := graph.Logout(config.TokenPath(args[0]), logger)
	if err != nil {
		return err
	}

	if !removed {
		statusf(flagQuiet, "No saved sign-in for %q.\n", args[0])
		return nil
	}

	statusf(flagQuiet, "Signed out of %q.\n", args[0])

	return nil
}
