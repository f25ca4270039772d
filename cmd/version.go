package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/pdk-cli/pdk/internal/update"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the engine version and check for updates",
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("pdk %s\n", Version)
		if update.Suppressed() {
			return nil
		}
		if latest, hasUpdate := update.Check(Version); hasUpdate {
			fmt.Printf("a newer version is available: %s\n", latest)
		}
		return nil
	},
}
