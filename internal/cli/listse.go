package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mammoth-cyber/mammothctl/internal/api"
)

func newListSECmd() *cobra.Command {
	creds := &credentialFlags{}
	var nwName string

	cmd := &cobra.Command{
		Use:   "list-se",
		Short: "List the portal's networks (service edges)",
		Long: `Prints every network the API reports. With --nwname, only the
network with that exact name is fetched and printed in full.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			resolved, err := creds.load()
			if err != nil {
				return err
			}
			client, err := authenticate(ctx, resolved)
			if err != nil {
				return err
			}
			defer client.Close()

			networks, err := client.List(ctx, api.PathNetworks)
			if err != nil {
				return err
			}

			if nwName == "" {
				return printJSON(cmd, networks)
			}
			for _, nw := range networks {
				if api.String(nw, "name") != nwName {
					continue
				}
				full, err := client.Get(ctx, api.PathNetworks, api.String(nw, "id"))
				if err != nil {
					return err
				}
				return printJSON(cmd, full)
			}
			return fmt.Errorf("network %q not found", nwName)
		},
	}

	creds.register(cmd)
	cmd.Flags().StringVar(&nwName, "nwname", "", "print only the network with this name")
	return cmd
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
