package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/owuorvin/jubabuy/internal/client"
	"github.com/owuorvin/jubabuy/internal/models"
)

// BrowseOptions holds flags for the browse command.
type BrowseOptions struct {
	*RootOptions
	Filters []string
	Pages   int
}

type browseResult struct {
	Kind    models.Kind       `json:"kind"`
	Filters map[string]string `json:"filters,omitempty"`
	Page    int               `json:"page"`
	Pages   int               `json:"pages"`
	Total   int64             `json:"total"`
	HasNext bool              `json:"has_next"`
	Items   []models.Listing  `json:"items"`
}

// NewBrowseCommand creates the browse command.
func NewBrowseCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &BrowseOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "browse <kind>",
		Short: "List dwellings, vehicles or parcels matching filters",
		Long: `List listings of one kind, newest first.

Filters are repeated key=value pairs using the same names as the API:
  marketctl browse dwellings -f category=sale -f bedrooms=2 -f priceMax=100000
  marketctl browse vehicles -f make=Toyota -f yearMin=2015 --pages 2`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runBrowse(cmd, args[0], opts)
		},
	}

	cmd.Flags().StringArrayVarP(&opts.Filters, "filter", "f", nil, "filter as key=value (repeatable)")
	cmd.Flags().IntVar(&opts.Pages, "pages", 1, "number of pages to stitch together")

	return cmd
}

func parseFilters(pairs []string) (map[string]string, error) {
	out := make(map[string]string, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, NewExitError(ExitCommandError, fmt.Sprintf("invalid filter %q: expected key=value", p))
		}
		out[k] = strings.TrimSpace(v)
	}
	return out, nil
}

func runBrowse(cmd *cobra.Command, kindArg string, opts *BrowseOptions) error {
	kind, err := models.ParseKind(kindArg)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid kind", err)
	}
	if opts.Pages < 1 {
		return NewExitError(ExitCommandError, "--pages must be at least 1")
	}
	partial, err := parseFilters(opts.Filters)
	if err != nil {
		return err
	}

	session, err := opts.openSession()
	if err != nil {
		return err
	}
	defer session.Close()

	ctx := cmd.Context()
	browser, err := session.Browse(ctx, kind)
	if err != nil {
		return err
	}
	defer browser.Close()

	if len(partial) > 0 {
		if err := browser.Filters.Apply(partial); err != nil {
			return err
		}
		browser.Filters.Flush()
		browser.Filters.Wait()
	} else if err := browser.Start(ctx); err != nil {
		return err
	}

	snap := browser.Pages.Snapshot()
	if snap.Err != nil {
		return snap.Err
	}
	for loaded := 1; loaded < opts.Pages && snap.HasNext; loaded++ {
		if err := browser.Pages.LoadMore(ctx); err != nil {
			return err
		}
		snap = browser.Pages.Snapshot()
	}

	result := browseResult{
		Kind:    kind,
		Filters: browser.Filters.Current(),
		Page:    snap.Page,
		Pages:   snap.Pages,
		Total:   snap.Total,
		HasNext: snap.HasNext,
		Items:   snap.Items,
	}
	return opts.formatter(cmd).Success(result, func(w io.Writer) error {
		if len(snap.Items) == 0 {
			fmt.Fprintf(w, "No %s match.\n", kind.Plural())
			return nil
		}
		if err := writeListings(w, snap.Items, session.Favorites); err != nil {
			return err
		}
		fmt.Fprintf(w, "\n%d of %d %s (page %d of %d)\n", len(snap.Items), snap.Total, kind.Plural(), snap.Page, snap.Pages)
		if snap.HasNext {
			fmt.Fprintf(w, "More available: --pages %d\n", opts.Pages+1)
		}
		return nil
	})
}

// NewFeaturedCommand creates the featured command.
func NewFeaturedCommand(rootOpts *RootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:           "featured",
		Short:         "Show the featured listings of every kind",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if limit < 1 {
				return NewExitError(ExitCommandError, "--limit must be at least 1")
			}
			session, err := rootOpts.openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			featured, err := session.FetchFeatured(cmd.Context(), limit)
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(featured, func(w io.Writer) error {
				for _, kind := range models.Kinds {
					fmt.Fprintf(w, "== %s ==\n", strings.ToUpper(kind.Plural()))
					if len(featured[kind]) == 0 {
						fmt.Fprintln(w, "(none)")
						continue
					}
					if err := writeListings(w, featured[kind], session.Favorites); err != nil {
						return err
					}
				}
				return nil
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 6, "listings per kind")
	return cmd
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "show <kind> <id-or-slug>",
		Short:         "Show one listing in full",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, err := models.ParseKind(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "invalid kind", err)
			}
			session, err := rootOpts.openSession()
			if err != nil {
				return err
			}
			defer session.Close()

			l, err := session.API.GetListing(cmd.Context(), kind, args[1])
			if client.IsNotFound(err) {
				return WrapExitError(ExitFailure, fmt.Sprintf("no %s %q", kind, args[1]), err)
			}
			if err != nil {
				return err
			}
			return rootOpts.formatter(cmd).Success(l, func(w io.Writer) error {
				return writeListing(w, l)
			})
		},
	}
}
