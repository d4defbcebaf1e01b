package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mammoth-cyber/mammothctl/internal/provision"
)

func newCreateUserCmd() *cobra.Command {
	creds := &credentialFlags{}
	var email string
	var sshEndpoint string

	cmd := &cobra.Command{
		Use:   "create-user",
		Short: "Create a user with their team, access role, policy and SSH app",
		Long: `Provisions a portal user and the objects the sample flow attaches to
them: a team and access role named after the email's local part, an SSH
application pointing at the user's endpoint, and a policy binding them.
Inputs default to USER_EMAIL and USER_SSH_IP from the environment.`,
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
			if sshEndpoint == "" {
				sshEndpoint = resolved.UserSSHIP
			}
			if email == "" || sshEndpoint == "" {
				return usageError("USER_EMAIL and USER_SSH_IP must be set (environment, --email/--ssh, or --env file)")
			}

			client, err := authenticate(ctx, resolved)
			if err != nil {
				return err
			}
			defer client.Close()

			result, err := provision.CreateUser(ctx, client, email, sshEndpoint)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "user:        %s\n", result.UserID)
			fmt.Fprintf(out, "team:        %s\n", result.TeamID)
			fmt.Fprintf(out, "access role: %s\n", result.AccessRoleID)
			fmt.Fprintf(out, "policy:      %s\n", result.PolicyID)
			fmt.Fprintf(out, "application: %s\n", result.ApplicationID)
			return nil
		},
	}

	creds.register(cmd)
	cmd.Flags().StringVar(&email, "email", "", "user email (overrides USER_EMAIL)")
	cmd.Flags().StringVar(&sshEndpoint, "ssh", "", "SSH host:port for the user's application (overrides USER_SSH_IP)")
	return cmd
}
