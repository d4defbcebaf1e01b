package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mammoth-cyber/mammothctl/internal/api"
	"github.com/mammoth-cyber/mammothctl/internal/provision"
)

func newPurgeUserCmd() *cobra.Command {
	creds := &credentialFlags{}
	var email string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "purge-user",
		Short: "Remove a user and everything that would be orphaned",
		Long: `Deletes a user together with the teams, access roles, policies and
applications that only exist for them. Runs in dry-run mode unless
--dry-run=false is passed; dry runs log every would-be deletion without
changing anything.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			resolved, err := creds.load()
			if err != nil {
				return err
			}
			if email == "" {
				email = resolved.UserEmail
			}
			if email == "" {
				return usageError("USER_EMAIL must be set (environment, --email, or --env file)")
			}

			client, err := authenticate(ctx, resolved, api.WithDryRun(dryRun))
			if err != nil {
				return err
			}
			defer client.Close()

			if err := provision.PurgeUser(ctx, client, email); err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintf(cmd.OutOrStdout(), "dry run: no changes made for %s (pass --dry-run=false to apply)\n", email)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", email)
			}
			return nil
		},
	}

	creds.register(cmd)
	cmd.Flags().StringVar(&email, "email", "", "user email (overrides USER_EMAIL)")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "log intended deletions without performing them")
	return cmd
}
