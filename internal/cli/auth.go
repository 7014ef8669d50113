package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/owuorvin/jubabuy/internal/auth"
	"github.com/owuorvin/jubabuy/internal/client"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(rootOpts *RootOptions) *cobra.Command {
	var token string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with an access token",
		Long: `Store an access token for later commands and load the user's favorites.

The token is read from --token, or from stdin when --token is "-".`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if token == "-" {
				raw, err := io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return WrapExitError(ExitCommandError, "failed to read token", err)
				}
				token = string(raw)
			}
			token = strings.TrimSpace(token)
			if token == "" {
				return NewExitError(ExitCommandError, "--token is required")
			}

			session, err := rootOpts.openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			profile, err := session.Login(cmd.Context(), token)
			if profile == nil {
				return WrapExitError(ExitCommandError, "login failed", err)
			}
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "WARN: %v\n", err)
			}
			return writeProfile(rootOpts.formatter(cmd), profile)
		},
	}

	cmd.Flags().StringVar(&token, "token", "", `access token, or "-" for stdin`)
	return cmd
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "logout",
		Short:         "Forget the stored token and favorites",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := rootOpts.openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			if err := session.Logout(); err != nil {
				return WrapExitError(ExitFailure, "logout failed", err)
			}
			return rootOpts.formatter(cmd).Success(map[string]bool{"signed_in": false}, func(w io.Writer) error {
				fmt.Fprintln(w, "Signed out.")
				return nil
			})
		},
	}
}

// NewWhoamiCommand creates the whoami command.
func NewWhoamiCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "whoami",
		Short:         "Show the signed-in user",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := rootOpts.openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			profile := session.Profile()
			if profile == nil {
				return NewExitError(ExitFailure, "not signed in")
			}
			return writeProfile(rootOpts.formatter(cmd), profile)
		},
	}
}

func writeProfile(f *OutputFormatter, p *client.Profile) error {
	return f.Success(p, func(w io.Writer) error {
		role := "user"
		if p.IsAdmin {
			role = "admin"
		}
		fmt.Fprintf(w, "Signed in as %s (%s)\n", p.UserID, role)
		if !p.ExpiresAt.IsZero() {
			fmt.Fprintf(w, "Token expires %s\n", p.ExpiresAt.Local().Format(time.RFC1123))
		}
		return nil
	})
}

// DevTokenOptions holds flags for the dev-token command.
type DevTokenOptions struct {
	*RootOptions
	UserID string
	Admin  bool
	Secret string
	TTL    time.Duration
}

// NewDevTokenCommand creates the dev-token command, which signs a token with the
// server's secret for local development.
func NewDevTokenCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DevTokenOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:           "dev-token",
		Short:         "Sign an access token for local development",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			secret := opts.Secret
			if secret == "" {
				secret = os.Getenv("JWT_SECRET")
			}
			if secret == "" {
				return NewExitError(ExitCommandError, "--secret or JWT_SECRET is required")
			}
			token, err := auth.GenerateJWT(opts.UserID, opts.Admin, secret, opts.TTL)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to sign token", err)
			}
			return opts.formatter(cmd).Success(map[string]string{"token": token}, func(w io.Writer) error {
				fmt.Fprintln(w, token)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&opts.UserID, "user", "", "user id to put in the token")
	cmd.Flags().BoolVar(&opts.Admin, "admin", false, "grant the admin role")
	cmd.Flags().StringVar(&opts.Secret, "secret", "", "signing secret (default $JWT_SECRET)")
	cmd.Flags().DurationVar(&opts.TTL, "ttl", 24*time.Hour, "token lifetime")
	cmd.MarkFlagRequired("user")

	return cmd
}
