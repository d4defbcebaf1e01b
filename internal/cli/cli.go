package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mammoth-cyber/mammothctl/internal/api"
	"github.com/mammoth-cyber/mammothctl/internal/config"
	"github.com/mammoth-cyber/mammothctl/internal/ctxlog"
)

// ExitError is a custom error type that includes a specific exit code.
type ExitError struct {
	Code    int
	Message string
}

// Error implements the error interface for ExitError.
func (e *ExitError) Error() string {
	return e.Message
}

func usageError(format string, args ...any) error {
	return &ExitError{Code: 2, Message: fmt.Sprintf(format, args...)}
}

// rootOptions holds the persistent flags shared by every command.
type rootOptions struct {
	logLevel  string
	logFormat string
	debug     bool
}

// credentialFlags are the flags every API command accepts for credential
// resolution; values collected here override the environment.
type credentialFlags struct {
	apiKey    string
	apiSecret string
	envFile   string
}

func (f *credentialFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.apiKey, "api-key", "", "API key (overrides API_KEY)")
	cmd.Flags().StringVar(&f.apiSecret, "api-secret", "", "API secret (overrides API_SECRET)")
	cmd.Flags().StringVar(&f.envFile, "env", "", "dotenv file with credentials (overrides environment and flags)")
}

func (f *credentialFlags) load() (config.Credentials, error) {
	creds, err := config.Load(config.Overrides{
		APIKey:    f.apiKey,
		APISecret: f.apiSecret,
		EnvFile:   f.envFile,
	})
	if err != nil {
		return config.Credentials{}, usageError("%v", err)
	}
	if err := creds.RequireAPI(); err != nil {
		return config.Credentials{}, usageError("%v", err)
	}
	return creds, nil
}

// authenticate builds a portal client from resolved credentials and
// performs the token exchange. The caller owns the client.
func authenticate(ctx context.Context, creds config.Credentials, opts ...api.Option) (*api.Client, error) {
	c := api.New(creds.APIHost, opts...)
	if err := c.Authenticate(ctx, creds.APIKey, creds.APISecret); err != nil {
		_ = c.Close()
		return nil, err
	}
	return c, nil
}

// New builds the mammothctl command tree. out receives command output,
// errW receives logs.
func New(out, errW io.Writer) *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:   "mammothctl",
		Short: "Bootstrap and drive the Mammoth management portal API",
		Long: `mammothctl prepares a workstation for the portal's sample API flows
and runs those flows directly: user provisioning and teardown, network
listing, block list uploads, and device tagging.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			logger, err := buildLogger(errW, opts)
			if err != nil {
				return err
			}
			ctx := ctxlog.WithLogger(cmd.Context(), logger)
			cmd.SetContext(ctxlog.With(ctx, "command", cmd.Name()))
			return nil
		},
	}
	root.SetOut(out)
	root.SetErr(errW)

	pf := root.PersistentFlags()
	pf.StringVar(&opts.logLevel, "log-level", "info", "Set the logging level. Options: 'debug', 'info', 'warn', 'error'.")
	pf.StringVar(&opts.logFormat, "log-format", "text", "Log output format. Options: 'text' or 'json'.")
	pf.BoolVar(&opts.debug, "debug", false, "Shorthand for --log-level=debug.")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError("%v", err)
	})

	root.AddCommand(
		newBootstrapCmd(),
		newCreateUserCmd(),
		newPurgeUserCmd(),
		newListSECmd(),
		newBlockListCmd(),
		newBlockListPACCmd(),
		newDeviceTagCmd(),
	)
	return root
}

func buildLogger(errW io.Writer, opts *rootOptions) (*slog.Logger, error) {
	level := strings.ToLower(opts.logLevel)
	if opts.debug {
		level = "debug"
	}

	var slogLevel slog.Level
	switch level {
	case "debug":
		slogLevel = slog.LevelDebug
	case "info":
		slogLevel = slog.LevelInfo
	case "warn":
		slogLevel = slog.LevelWarn
	case "error":
		slogLevel = slog.LevelError
	default:
		return nil, usageError("invalid log-level: must be 'debug', 'info', 'warn', or 'error'")
	}

	handlerOpts := &slog.HandlerOptions{Level: slogLevel}
	var handler slog.Handler
	switch strings.ToLower(opts.logFormat) {
	case "text":
		handler = slog.NewTextHandler(errW, handlerOpts)
	case "json":
		handler = slog.NewJSONHandler(errW, handlerOpts)
	default:
		return nil, usageError("invalid log-format: must be 'text' or 'json'")
	}
	return slog.New(handler), nil
}

// Run executes the command tree against args and normalizes failures
// into ExitError values for main.
func Run(ctx context.Context, out, errW io.Writer, args []string) error {
	root := New(out, errW)
	root.SetArgs(args)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return nil
	}

	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr
	}
	return &ExitError{Code: 1, Message: err.Error()}
}
