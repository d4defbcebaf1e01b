package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mammoth-cyber/mammothctl/internal/blocklist"
	"github.com/mammoth-cyber/mammothctl/internal/webcat"
)

func newBlockListPACCmd() *cobra.Command {
	creds := &credentialFlags{}
	var (
		filePath string
		listURL  string
	)

	cmd := &cobra.Command{
		Use:   "block-list-pac",
		Short: "Block a list of IPs through the default forwarding policy's PAC",
		Long: `Parses a block list, keeps its plain IPv4 addresses, renders a proxy
auto-config script that routes them into a blackhole proxy, and writes
it into the tenant's default forwarding policy over GraphQL. Domains
and CIDR ranges in the list are ignored; PAC blocking works on
resolved addresses.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			var (
				entries []string
				stats   blocklist.Stats
				err     error
			)
			switch {
			case filePath != "":
				var f *os.File
				f, err = os.Open(filePath)
				if err != nil {
					return usageError("%v", err)
				}
				defer f.Close()
				entries, stats, err = blocklist.Parse(ctx, f)
			default:
				entries, stats, err = blocklist.FetchAndParse(ctx, listURL)
			}
			if err != nil {
				return err
			}
			stats.Report(cmd.OutOrStdout())

			ips := blocklist.IPv4Only(entries)
			if len(ips) > webcat.MaxEntries {
				ips = ips[:webcat.MaxEntries]
			}

			resolved, err := creds.load()
			if err != nil {
				return err
			}
			client, err := authenticate(ctx, resolved)
			if err != nil {
				return err
			}
			defer client.Close()

			svc := webcat.NewService(client.Host(), client.BearerToken())
			result, err := svc.SetPAC(ctx, blocklist.PACFile(ips))
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "blocked IPs: %d\n", len(ips))
			fmt.Fprintf(cmd.OutOrStdout(), "Update result matches: %t\n", result.Verified)
			if !result.Verified {
				return fmt.Errorf("forwarding policy %s does not reflect the uploaded PAC", result.PolicyID)
			}
			return nil
		},
	}

	creds.register(cmd)
	cmd.Flags().StringVar(&filePath, "file", "", "block list file to parse")
	cmd.Flags().StringVar(&listURL, "url", "", "URL of a block list to download and parse")
	cmd.MarkFlagsMutuallyExclusive("file", "url")
	cmd.MarkFlagsOneRequired("file", "url")
	return cmd
}
