package cli

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"

	"github.com/owuorvin/jubabuy/internal/client"
	"github.com/owuorvin/jubabuy/internal/config"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Format string // "text" | "json" | "yaml"
	Server string
	Prefs  string
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json", "yaml"}

// NewRootCommand creates the root command of marketctl.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "marketctl",
		Short: "Browse the Jubabuy marketplace",
		Long:  "Browse dwellings, vehicles and land parcels, and manage favorites, from the terminal.",
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !slices.Contains(ValidFormats, opts.Format) {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid format %q: must be one of %v", opts.Format, ValidFormats))
			}
			return nil
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	cmd.SetFlagErrorFunc(func(c *cobra.Command, err error) error {
		return WrapExitError(ExitCommandError, "invalid flags", err)
	})

	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (text|json|yaml)")
	cmd.PersistentFlags().StringVar(&opts.Server, "server", "", "marketplace API URL (default $MARKET_API_URL)")
	cmd.PersistentFlags().StringVar(&opts.Prefs, "prefs", "", "prefs database path (default $MARKET_PREFS_PATH)")

	cmd.AddCommand(NewBrowseCommand(opts))
	cmd.AddCommand(NewFeaturedCommand(opts))
	cmd.AddCommand(NewShowCommand(opts))
	cmd.AddCommand(NewFavoriteCommand(opts))
	cmd.AddCommand(NewLoginCommand(opts))
	cmd.AddCommand(NewLogoutCommand(opts))
	cmd.AddCommand(NewWhoamiCommand(opts))
	cmd.AddCommand(NewDevTokenCommand(opts))

	return cmd
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{Format: o.Format, Writer: cmd.OutOrStdout(), ErrWriter: cmd.ErrOrStderr()}
}

// Execute runs cmd with args, reports a failure in the selected format and returns
// the process exit code.
func Execute(ctx context.Context, cmd *cobra.Command, args []string) int {
	cmd.SetArgs(args)
	executed, err := cmd.ExecuteContextC(ctx)
	if err == nil {
		return ExitSuccess
	}
	format, _ := cmd.PersistentFlags().GetString("format")
	if !slices.Contains(ValidFormats, format) {
		format = "text"
	}
	if executed == nil {
		executed = cmd
	}
	f := &OutputFormatter{Format: format, Writer: executed.OutOrStdout(), ErrWriter: executed.ErrOrStderr()}
	f.Error(err)
	return GetExitCode(err)
}

// openSession loads the client configuration, applies the global flags and opens a session.
func (o *RootOptions) openSession() (*client.Session, error) {
	cfg, err := config.LoadClient()
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "invalid configuration", err)
	}
	if o.Server != "" {
		cfg.APIURL = strings.TrimRight(o.Server, "/")
	}
	if o.Prefs != "" {
		cfg.PrefsPath = o.Prefs
	}
	s, err := client.NewSession(cfg)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open session", err)
	}
	return s, nil
}
