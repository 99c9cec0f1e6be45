package cli

import (
	"bytes"
	"context"
	"fmt"

	"github.com/atotto/clipboard"
	"github.com/setlistfan/favsync/internal/app"
	"github.com/setlistfan/favsync/internal/favorite"
	"github.com/setlistfan/favsync/internal/toggle"
	"github.com/spf13/cobra"
)

// copyToClipboard is replaced in tests.
var copyToClipboard = clipboard.WriteAll

// ListOptions holds options for the list command.
type ListOptions struct {
	Copy bool
}

// NewListCommand creates the list command.
func NewListCommand(global *GlobalOptions) *cobra.Command {
	opts := &ListOptions{}

	cmd := &cobra.Command{
		Use:   "list [artists|concerts]",
		Short: "List favorites",
		Long:  "Fetch the account's favorites. When the API is unreachable the cached list is shown.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types := favorite.EntityTypes()
			if len(args) == 1 {
				t, err := favorite.ParseEntityType(args[0])
				if err != nil {
					return err
				}
				types = []favorite.EntityType{t}
			}
			return runList(cmd, global, opts, types)
		},
	}

	cmd.Flags().BoolVarP(&opts.Copy, "copy", "c", false, "Copy the listed targets to the clipboard")

	return cmd
}

func runList(cmd *cobra.Command, global *GlobalOptions, opts *ListOptions, types []favorite.EntityType) error {
	e, err := global.newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	cached := false
	if err := e.app.Refresh(cmd.Context()); err != nil {
		if e.app.Store().Len() == 0 {
			return err
		}
		e.logger.Warn().Err(err).Msg("showing cached favorites")
		cached = true
	}

	res := listResult{Cached: cached}
	for _, t := range types {
		records := e.app.Favorites(t)
		if t == favorite.EntityArtist {
			res.Artists = records
		} else {
			res.Concerts = records
		}
	}

	if opts.Copy {
		var buf bytes.Buffer
		for _, r := range append(res.Artists, res.Concerts...) {
			fmt.Fprintln(&buf, r.Target().String())
		}
		if err := copyToClipboard(buf.String()); err != nil {
			return fmt.Errorf("failed to copy to clipboard: %w", err)
		}
	}

	if global.JSON {
		return outputJSON(cmd, res)
	}

	out := cmd.OutOrStdout()
	if cached {
		fmt.Fprintln(out, "(offline, showing cached favorites)")
	}
	for _, t := range types {
		records := res.Artists
		if t == favorite.EntityConcert {
			records = res.Concerts
		}
		writeRecords(out, t, records)
	}
	return nil
}

// NewCheckCommand creates the check command.
func NewCheckCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "check TYPE ID",
		Short: "Show whether an artist or concert is favorited",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := favorite.NewTarget(args[0], args[1])
			if err != nil {
				return err
			}
			return withEnv(cmd, global, func(ctx context.Context, a *app.App) error {
				b, err := a.UseFavoriteStatus(ctx, target.Type, target.ID)
				if err != nil {
					return err
				}
				defer b.Unmount()
				return outputStatus(cmd, global.JSON, target, b.State(), 0)
			})
		},
	}
}

// NewAddCommand creates the add command.
func NewAddCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "add TYPE ID",
		Short: "Favorite an artist or concert",
		Long:  "Favorite an artist or concert. Adding a favorite that already exists succeeds.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnsure(cmd, global, args, true)
		},
	}
}

// NewRemoveCommand creates the remove command.
func NewRemoveCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:     "remove TYPE ID",
		Aliases: []string{"rm"},
		Short:   "Unfavorite an artist or concert",
		Long:    "Unfavorite an artist or concert. Removing a favorite that does not exist succeeds.",
		Args:    cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runEnsure(cmd, global, args, false)
		},
	}
}

// NewToggleCommand creates the toggle command.
func NewToggleCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "toggle TYPE ID",
		Short: "Flip the favorite state of an artist or concert",
		Long:  "Flip the favorite state, starting from the locally cached value.",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			target, err := favorite.NewTarget(args[0], args[1])
			if err != nil {
				return err
			}
			return withEnv(cmd, global, func(ctx context.Context, a *app.App) error {
				outcome, err := a.ToggleFavorite(ctx, target.Type, target.ID)
				if err != nil {
					return err
				}
				return outputStatus(cmd, global.JSON, target, a.Button(target).State(), outcome)
			})
		},
	}
}

// runEnsure moves the target to want, asking the server for the current
// state first. A failed status check counts as not favorited.
func runEnsure(cmd *cobra.Command, global *GlobalOptions, args []string, want bool) error {
	target, err := favorite.NewTarget(args[0], args[1])
	if err != nil {
		return err
	}

	return withEnv(cmd, global, func(ctx context.Context, a *app.App) error {
		b, err := a.UseFavoriteStatus(ctx, target.Type, target.ID)
		if err != nil {
			return err
		}
		defer b.Unmount()

		if b.State().IsFavorite() == want {
			return outputStatus(cmd, global.JSON, target, b.State(), toggle.OutcomeConverged)
		}

		outcome, err := b.Toggle(ctx)
		if err != nil {
			return err
		}
		return outputStatus(cmd, global.JSON, target, b.State(), outcome)
	})
}

func withEnv(cmd *cobra.Command, global *GlobalOptions, fn func(ctx context.Context, a *app.App) error) error {
	e, err := global.newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()
	return fn(cmd.Context(), e.app)
}
