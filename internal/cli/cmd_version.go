package cli

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Version is the tool version, recorded in every run's metadata.
const Version = "0.1.0"

// newVersionCmd creates the version command
func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show gh-backup version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Println("gh-backup version " + Version)
		},
	}
}
