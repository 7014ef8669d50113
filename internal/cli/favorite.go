package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/owuorvin/jubabuy/internal/client"
)

type favoriteResult struct {
	ID        string `json:"id"`
	Favorited bool   `json:"favorited"`
	Notice    string `json:"notice,omitempty"`
}

// NewFavoriteCommand creates the favorite command group.
func NewFavoriteCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "favorite",
		Short: "Manage favorite listings",
	}
	cmd.AddCommand(newFavoriteToggleCommand(rootOpts))
	cmd.AddCommand(newFavoriteListCommand(rootOpts))
	return cmd
}

func newFavoriteToggleCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "toggle <listing-id>",
		Short:         "Add a listing to favorites, or remove it",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := rootOpts.openSession()
			if err != nil {
				return err
			}
			defer session.Close()
			if session.Profile() == nil {
				return NewExitError(ExitCommandError, "not signed in: run marketctl login first")
			}

			id := args[0]
			var last client.FavoriteEvent
			cancel := session.Favorites.Subscribe(func(e client.FavoriteEvent) {
				if e.ID == id {
					last = e
				}
			})
			session.Favorites.Toggle(cmd.Context(), id)
			session.Favorites.Wait()
			cancel()

			if last.Err != nil {
				return WrapExitError(ExitFailure, last.Notice, last.Err)
			}
			result := favoriteResult{ID: id, Favorited: last.Favorited}
			return rootOpts.formatter(cmd).Success(result, func(w io.Writer) error {
				if result.Favorited {
					fmt.Fprintf(w, "Added %s to favorites.\n", id)
				} else {
					fmt.Fprintf(w, "Removed %s from favorites.\n", id)
				}
				return nil
			})
		},
	}
}

func newFavoriteListCommand(rootOpts *RootOptions) *cobra.Command {
	var refresh bool

	cmd := &cobra.Command{
		Use:           "list",
		Short:         "List favorite listing ids",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			session, err := rootOpts.openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			if refresh {
				if session.Profile() == nil {
					return NewExitError(ExitCommandError, "not signed in: run marketctl login first")
				}
				if err := session.Favorites.Refresh(cmd.Context()); err != nil {
					return err
				}
			}
			ids := session.Favorites.IDs()
			return rootOpts.formatter(cmd).Success(ids, func(w io.Writer) error {
				if len(ids) == 0 {
					fmt.Fprintln(w, "No favorites.")
				}
				for _, id := range ids {
					fmt.Fprintln(w, id)
				}
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&refresh, "refresh", false, "reload the list from the server")
	return cmd
}
