package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jask/recurring/internal/database"
)

// Version is set at build time with -ldflags "-X .../cmd.Version=...".
var Version = "dev"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the program and database schema versions",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		v, dirty, err := database.SchemaVersion(app.cfg.Database.Path)
		if err != nil {
			return fmt.Errorf("schema version: %w", err)
		}
		state := "clean"
		if dirty {
			state = "dirty"
		}
		fmt.Fprintf(cmd.OutOrStdout(), "recurring %s\nschema %d (%s) at %s\n", Version, v, state, app.cfg.Database.Path)
		return nil
	},
}
