package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/mammoth-cyber/mammothctl/internal/bootstrap"
	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

func newBootstrapCmd() *cobra.Command {
	var manifestPath string
	var workDir string

	cmd := &cobra.Command{
		Use:   "bootstrap",
		Short: "Prepare this machine for the sample API scripts",
		Long: `Installs the system packages, clones or refreshes the sample
repository, provisions its Python virtual environment, and installs the
pinned dependencies. Every step is idempotent; a second run is a no-op.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			manifest, err := loadManifest(manifestPath)
			if err != nil {
				return usageError("%v", err)
			}

			runner := bootstrap.NewExecRunner(cmd.OutOrStdout(), cmd.ErrOrStderr())
			var opts []bootstrap.Option
			if workDir != "" {
				opts = append(opts, bootstrap.WithWorkingDir(workDir))
			}
			b := bootstrap.New(manifest, runner, cmd.OutOrStdout(), opts...)

			if err := b.Run(ctx); err != nil {
				ctxlog.FromContext(ctx).Error("bootstrap failed", "error", err)

				var toolErr *bootstrap.ToolError
				switch {
				case errors.Is(err, bootstrap.ErrRequirementsMissing):
					// The fatal message is already on stdout.
					return &ExitError{Code: 1, Message: err.Error()}
				case errors.As(err, &toolErr) && toolErr.ExitCode > 0:
					return &ExitError{Code: toolErr.ExitCode, Message: err.Error()}
				}
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&manifestPath, "manifest", "", "HCL manifest overriding the built-in bootstrap defaults")
	cmd.Flags().StringVar(&workDir, "dir", "", "directory to treat as the working directory (default: current)")
	return cmd
}

func loadManifest(path string) (*bootstrap.Manifest, error) {
	if path == "" {
		return bootstrap.DefaultManifest()
	}
	return bootstrap.LoadManifest(path)
}
