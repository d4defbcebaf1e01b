package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mammoth-cyber/mammothctl/internal/api"
	"github.com/mammoth-cyber/mammothctl/internal/devicetag"
)

func newDeviceTagCmd() *cobra.Command {
	creds := &credentialFlags{}
	var csvPath string
	var dryRun bool

	cmd := &cobra.Command{
		Use:   "device-tag",
		Short: "Assign device tags to registered devices from a CSV",
		Long: `Reads MAC address / tag pairs from a CSV file, matches them against
the registered-device inventory, and writes the tags. The plan is
printed first; in dry-run mode (the default) nothing is written.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			entries, err := devicetag.ReadCSV(ctx, csvPath)
			if err != nil {
				return usageError("%v", err)
			}
			if len(entries) == 0 {
				return usageError("%s contains no device entries", csvPath)
			}

			resolved, err := creds.load()
			if err != nil {
				return err
			}
			client, err := authenticate(ctx, resolved, api.WithDryRun(dryRun))
			if err != nil {
				return err
			}
			defer client.Close()

			inventory := devicetag.NewInventory(client.Host(), client.BearerToken(), client.Token())
			devices, err := inventory.Devices(ctx)
			if err != nil {
				return err
			}

			plan := devicetag.Plan(entries, devices)
			if err := devicetag.WritePlan(cmd.OutOrStdout(), plan); err != nil {
				return err
			}

			updated, err := devicetag.Apply(ctx, client, plan)
			if err != nil {
				return err
			}
			if dryRun {
				fmt.Fprintln(cmd.OutOrStdout(), "dry run: no tags written (pass --dry-run=false to apply)")
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "updated %d device(s)\n", updated)
			}
			return nil
		},
	}

	creds.register(cmd)
	cmd.Flags().StringVar(&csvPath, "csv", "", "CSV file with mac_address and tag columns")
	cmd.Flags().BoolVar(&dryRun, "dry-run", true, "print the plan without writing tags")
	_ = cmd.MarkFlagRequired("csv")
	return cmd
}
