package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mammoth-cyber/mammothctl/internal/blocklist"
	"github.com/mammoth-cyber/mammothctl/internal/webcat"
)

func newBlockListCmd() *cobra.Command {
	creds := &credentialFlags{}
	var (
		filePath string
		listURL  string
		category string
		listType string
	)

	cmd := &cobra.Command{
		Use:   "block-list",
		Short: "Upload a block list into a web category",
		Long: `Parses a block list (hosts-file syntax, bare domains, IPv4 addresses
and CIDR ranges; comment lines starting with # or ! are skipped) and
writes the entries into a web category's include or exclude list over
GraphQL. Lists longer than 5000 entries are truncated.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			if listType != string(webcat.ListInclude) && listType != string(webcat.ListExclude) {
				return usageError("invalid --list-type %q: must be 'include' or 'exclude'", listType)
			}

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
			result, err := svc.SetList(ctx, category, webcat.ListType(listType), entries)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "new %s list size: %d\n", listType, len(result.Applied))
			fmt.Fprintf(cmd.OutOrStdout(), "Update result matches: %t\n", result.Verified)
			if !result.Verified {
				return fmt.Errorf("portal's %s list for %q does not match the uploaded entries", listType, category)
			}
			return nil
		},
	}

	creds.register(cmd)
	cmd.Flags().StringVar(&filePath, "file", "", "block list file to parse")
	cmd.Flags().StringVar(&listURL, "url", "", "URL of a block list to download and parse")
	cmd.Flags().StringVar(&category, "category", webcat.DefaultCategory, "web category to update")
	cmd.Flags().StringVar(&listType, "list-type", string(webcat.ListInclude), "which category list to replace: 'include' or 'exclude'")
	cmd.MarkFlagsMutuallyExclusive("file", "url")
	cmd.MarkFlagsOneRequired("file", "url")
	return cmd
}
