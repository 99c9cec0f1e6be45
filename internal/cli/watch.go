package cli

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/setlistfan/favsync/internal/favorite"
	"github.com/setlistfan/favsync/internal/live"
	"github.com/setlistfan/favsync/internal/protocol/websocket"
	"github.com/spf13/cobra"
)

// WatchOptions holds options for the watch command.
type WatchOptions struct {
	MaxReconnects int
}

// NewWatchCommand creates the watch command.
func NewWatchCommand(global *GlobalOptions) *cobra.Command {
	opts := &WatchOptions{}

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Follow favorite changes made on other devices",
		Long:  "Connect to the sync stream and print every change to the account's favorites until interrupted.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWatch(cmd, global, opts)
		},
	}

	cmd.Flags().IntVar(&opts.MaxReconnects, "max-reconnects", websocket.DefaultConfig().MaxReconnects, "Consecutive failed connection attempts before giving up (-1 retries forever)")

	return cmd
}

func runWatch(cmd *cobra.Command, global *GlobalOptions, opts *WatchOptions) error {
	e, err := global.newEnv(cmd)
	if err != nil {
		return err
	}
	defer e.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out := cmd.OutOrStdout()
	cancel := e.app.Store().Observe(func(c favorite.Change) {
		if global.JSON {
			outputJSON(cmd, map[string]any{"change": c.Kind.String(), "records": c.Records})
			return
		}
		switch c.Kind {
		case favorite.ChangeReplaced:
			fmt.Fprintf(out, "synced %d favorites\n", len(c.Records))
		case favorite.ChangeCleared:
			fmt.Fprintln(out, "favorites cleared")
		default:
			for _, r := range c.Records {
				fmt.Fprintf(out, "%s %s\n", c.Kind, r.Target())
			}
		}
	})
	defer cancel()

	cfg := websocket.DefaultConfig()
	cfg.ConnectTimeout = e.cfg.Timeout
	cfg.MaxReconnects = opts.MaxReconnects

	feed := live.New(e.cfg.StreamURL, e.app.Store(), e.tokens,
		live.WithConfig(cfg),
		live.WithRefresh(e.app.Refresh),
		live.WithLogger(e.logger),
	)

	e.logger.Info().Str("url", e.cfg.StreamURL).Msg("watching favorites")
	return feed.Run(ctx)
}
