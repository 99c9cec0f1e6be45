package cli

import (
	tea "github.com/charmbracelet/bubbletea"
	"github.com/setlistfan/favsync/internal/tui/views"
	"github.com/spf13/cobra"
)

// tuiModel wraps the FavoritesView for bubbletea
type tuiModel struct {
	view *views.FavoritesView
}

func (m tuiModel) Init() tea.Cmd {
	return m.view.Init()
}

func (m tuiModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	updated, cmd := m.view.Update(msg)
	m.view = updated.(*views.FavoritesView)
	return m, cmd
}

func (m tuiModel) View() string {
	return m.view.View()
}

// NewTUICommand creates the interactive favorites browser command.
func NewTUICommand(global *GlobalOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tui",
		Short: "Browse and toggle favorites interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := global.newEnv(cmd)
			if err != nil {
				return err
			}
			defer e.Close()

			ctx := cmd.Context()
			model := tuiModel{
				view: views.NewFavoritesView(e.app,
					views.WithContext(ctx),
					views.WithClipboard(copyToClipboard),
				),
			}

			p := tea.NewProgram(model,
				tea.WithAltScreen(),
				tea.WithContext(ctx),
				tea.WithInput(cmd.InOrStdin()),
				tea.WithOutput(cmd.OutOrStdout()),
			)
			if _, err := p.Run(); err != nil {
				e.logger.Error().Err(err).Msg("tui exited")
				return err
			}
			return nil
		},
	}
}
