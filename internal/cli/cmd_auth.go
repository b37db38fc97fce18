package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/randalmurphal/gh-backup/internal/github"
)

// newAuthCmd creates the auth command
func newAuthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Show GitHub authentication state",
		Long: `Auth reports whether the gh CLI is logged in, which account and host it
is using, and whether the token carries the scopes an export needs.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			state, err := github.CheckAuth()
			if err != nil {
				return Exitf(1, err)
			}
			if !state.LoggedIn {
				fmt.Println("Not logged in to GitHub. Run 'gh auth login' first.")
				return Exit(1)
			}
			fmt.Printf("Logged in to %s as %s\n", state.Hostname, state.Account)
			if len(state.Scopes) > 0 {
				fmt.Printf("Token scopes: %v\n", state.Scopes)
			}
			for _, warning := range state.MissingScopeWarnings() {
				fmt.Println("Warning:", warning)
			}
			return nil
		},
	}
}
