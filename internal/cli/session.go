package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/setlistfan/favsync/internal/auth"
	"github.com/setlistfan/favsync/internal/remote"
	"github.com/spf13/cobra"
)

// NewLoginCommand creates the login command.
func NewLoginCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Save a session token",
		Long: `Save the bearer token used for every favorites call. The token is taken
from --token or read from the first line of standard input, then verified by
loading the account's favorites.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token := strings.TrimSpace(global.Token)
			if token == "" {
				line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if err != nil && line == "" {
					return fmt.Errorf("no token given: pass --token or pipe it on stdin")
				}
				token = strings.TrimSpace(line)
			}
			if token == "" {
				return auth.ErrNoToken
			}
			if auth.Expired(token, time.Now()) {
				return fmt.Errorf("token has expired")
			}

			e, err := global.newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.session.Save(token); err != nil {
				return err
			}

			if err := e.app.Refresh(cmd.Context()); err != nil {
				if errors.Is(err, remote.ErrUnauthenticated) {
					e.session.Clear()
					return fmt.Errorf("token rejected: %w", err)
				}
				e.logger.Warn().Err(err).Msg("could not verify token, saved anyway")
			}

			if global.JSON {
				return outputJSON(cmd, map[string]any{"logged_in": true, "favorites": e.app.Store().Len()})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Logged in. %d favorites loaded.\n", e.app.Store().Len())
			return nil
		},
	}
}

// NewLogoutCommand creates the logout command.
func NewLogoutCommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Forget the session and cached favorites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := global.newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			if err := e.app.Logout(cmd.Context()); err != nil {
				return err
			}
			if global.JSON {
				return outputJSON(cmd, map[string]bool{"logged_in": false})
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out.")
			return nil
		},
	}
}
