package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/setlistfan/favsync/internal/favorite"
	"github.com/setlistfan/favsync/internal/toggle"
	"github.com/setlistfan/favsync/internal/tui"
)

// Favorites is the application surface the view drives.
type Favorites interface {
	Store() *favorite.Store
	Refresh(ctx context.Context) error
	ToggleFavorite(ctx context.Context, t favorite.EntityType, id int64) (toggle.Outcome, error)
}

// refreshedMsg is sent when a refresh finishes.
type refreshedMsg struct {
	err error
}

// toggledMsg is sent when a toggle settles.
type toggledMsg struct {
	target  favorite.Target
	outcome toggle.Outcome
	err     error
}

// clearNotificationMsg is sent to clear the notification.
type clearNotificationMsg struct{}

// FavoritesView lists the account's favorites and flips them in place.
//
// Rows are snapshotted when the list is refreshed, so an entry that was just
// unfavorited stays on screen with an empty heart and can be favorited again.
type FavoritesView struct {
	app    Favorites
	ctx    context.Context
	styles tui.Styles
	keys   *tui.KeyMap
	copyFn func(string) error

	width  int
	height int

	tab      favorite.EntityType
	rows     map[favorite.EntityType][]favorite.Record
	cursor   map[favorite.EntityType]int
	inflight map[favorite.Target]bool
	loading  bool

	notification string
	errMsg       string
}

// Option configures a FavoritesView.
type Option func(*FavoritesView)

// WithClipboard replaces the function used by the copy key.
func WithClipboard(fn func(string) error) Option {
	return func(v *FavoritesView) {
		v.copyFn = fn
	}
}

// WithContext sets the context passed to refreshes and toggles.
func WithContext(ctx context.Context) Option {
	return func(v *FavoritesView) {
		v.ctx = ctx
	}
}

// NewFavoritesView creates the favorites view.
func NewFavoritesView(app Favorites, opts ...Option) *FavoritesView {
	v := &FavoritesView{
		app:      app,
		ctx:      context.Background(),
		styles:   tui.DefaultStyles(),
		copyFn:   clipboard.WriteAll,
		tab:      favorite.EntityArtist,
		rows:     make(map[favorite.EntityType][]favorite.Record),
		cursor:   make(map[favorite.EntityType]int),
		inflight: make(map[favorite.Target]bool),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.snapshot()
	v.keys = v.keyMap()
	return v
}

func (v *FavoritesView) keyMap() *tui.KeyMap {
	km := tui.NewKeyMap()
	km.Register([]string{"j", "down"}, "", func() tea.Cmd { v.move(1); return nil })
	km.Register([]string{"k", "up"}, "", func() tea.Cmd { v.move(-1); return nil })
	km.Register([]string{"g"}, "", func() tea.Cmd { v.cursor[v.tab] = 0; return nil })
	km.Register([]string{"G"}, "", func() tea.Cmd { v.cursor[v.tab] = len(v.rows[v.tab]) - 1; v.move(0); return nil })
	km.Register([]string{"space", "enter"}, "Toggle", v.toggleSelected)
	km.Register([]string{"tab", "shift+tab"}, "Artists/Concerts", func() tea.Cmd { v.switchTab(); return nil })
	km.Register([]string{"r", "ctrl+r"}, "Refresh", v.refresh)
	km.Register([]string{"y"}, "Copy", v.copySelected)
	km.Register([]string{"q", "ctrl+c"}, "Quit", func() tea.Cmd { return tea.Quit })
	return km
}

// Init loads the list from the server.
func (v *FavoritesView) Init() tea.Cmd {
	return v.refresh()
}

// Update handles messages.
func (v *FavoritesView) Update(msg tea.Msg) (tui.Component, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		v.SetSize(msg.Width, msg.Height)
		return v, nil

	case tea.KeyMsg:
		cmd, _ := v.keys.Handle(msg)
		return v, cmd

	case tui.RefreshMsg:
		return v, v.refresh()

	case refreshedMsg:
		v.loading = false
		v.snapshot()
		if msg.err != nil {
			v.errMsg = "Refresh failed: " + msg.err.Error()
		} else {
			v.errMsg = ""
		}
		return v, nil

	case toggledMsg:
		return v, v.settle(msg)

	case clearNotificationMsg:
		v.notification = ""
		return v, nil
	}

	return v, nil
}

func (v *FavoritesView) refresh() tea.Cmd {
	if v.loading {
		return nil
	}
	v.loading = true
	ctx := v.ctx
	return func() tea.Msg {
		return refreshedMsg{err: v.app.Refresh(ctx)}
	}
}

// snapshot copies the store into the rows shown on screen.
func (v *FavoritesView) snapshot() {
	for _, t := range favorite.EntityTypes() {
		v.rows[t] = v.app.Store().List(t)
	}
	v.move(0)
}

func (v *FavoritesView) toggleSelected() tea.Cmd {
	rec, ok := v.Selected()
	if !ok {
		return nil
	}
	target := rec.Target()
	if v.inflight[target] {
		return nil
	}
	v.inflight[target] = true
	v.errMsg = ""

	ctx := v.ctx
	return func() tea.Msg {
		outcome, err := v.app.ToggleFavorite(ctx, target.Type, target.ID)
		return toggledMsg{target: target, outcome: outcome, err: err}
	}
}

func (v *FavoritesView) settle(msg toggledMsg) tea.Cmd {
	delete(v.inflight, msg.target)

	if msg.err != nil {
		if !errors.Is(msg.err, toggle.ErrUnmounted) {
			v.errMsg = fmt.Sprintf("Could not update %s: %v", msg.target, msg.err)
		}
		return nil
	}

	switch msg.outcome {
	case toggle.OutcomeAdded:
		return v.notify("♥ Favorited " + msg.target.String())
	case toggle.OutcomeRemoved:
		return v.notify("♡ Unfavorited " + msg.target.String())
	case toggle.OutcomeConverged:
		return v.notify("✓ " + msg.target.String() + " already up to date")
	}
	return nil
}

func (v *FavoritesView) copySelected() tea.Cmd {
	rec, ok := v.Selected()
	if !ok {
		return nil
	}
	if err := v.copyFn(rec.Target().String()); err != nil {
		return v.notify("✗ Copy failed")
	}
	return v.notify("✓ Copied " + rec.Target().String())
}

func (v *FavoritesView) notify(text string) tea.Cmd {
	v.notification = text
	return tea.Tick(2*time.Second, func(t time.Time) tea.Msg {
		return clearNotificationMsg{}
	})
}

func (v *FavoritesView) move(delta int) {
	c := v.cursor[v.tab] + delta
	if n := len(v.rows[v.tab]); c >= n {
		c = n - 1
	}
	if c < 0 {
		c = 0
	}
	v.cursor[v.tab] = c
}

func (v *FavoritesView) switchTab() {
	if v.tab == favorite.EntityArtist {
		v.tab = favorite.EntityConcert
	} else {
		v.tab = favorite.EntityArtist
	}
}

// View renders the view.
func (v *FavoritesView) View() string {
	if v.width == 0 || v.height == 0 {
		return ""
	}

	tabs := v.renderTabs()
	list := v.renderList(v.height - 4)
	helpBar := v.renderHelpBar()
	statusBar := v.renderStatusBar()

	return lipgloss.JoinVertical(lipgloss.Left, tabs, list, helpBar, statusBar)
}

func (v *FavoritesView) renderTabs() string {
	var parts []string
	for _, t := range favorite.EntityTypes() {
		heading := t.Plural()
		label := fmt.Sprintf("%s%s (%d)", strings.ToUpper(heading[:1]), heading[1:], len(v.rows[t]))
		if t == v.tab {
			parts = append(parts, v.styles.TabActive.Render(label))
		} else {
			parts = append(parts, v.styles.Tab.Render(label))
		}
	}
	return v.styles.Title.Render("Favorites ") + strings.Join(parts, " ")
}

func (v *FavoritesView) renderList(height int) string {
	rows := v.rows[v.tab]
	if len(rows) == 0 {
		text := "No favorite " + v.tab.Plural() + " yet"
		if v.loading {
			text = "Loading..."
		}
		return lipgloss.NewStyle().Height(max(height, 1)).Render(v.styles.Muted.Render(text))
	}

	// Keep the cursor visible.
	start := 0
	cursor := v.cursor[v.tab]
	if height > 0 && cursor >= height {
		start = cursor - height + 1
	}
	end := len(rows)
	if height > 0 && end > start+height {
		end = start + height
	}

	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		lines = append(lines, v.renderRow(rows[i], i == cursor))
	}
	return lipgloss.NewStyle().Height(max(height, 1)).Render(strings.Join(lines, "\n"))
}

func (v *FavoritesView) renderRow(rec favorite.Record, selected bool) string {
	target := rec.Target()
	heart := v.heart(target)

	width := max(v.width-4, 1)
	text := target.String()
	if !rec.CreatedAt.IsZero() {
		text = tui.PadRight(text, 16) + " since " + rec.CreatedAt.Format("2006-01-02")
	}
	text = tui.Truncate(text, width)

	if selected {
		return heart + " " + v.styles.Selected.Render(tui.PadRight(text, width))
	}
	return heart + " " + v.styles.Row.Render(text)
}

func (v *FavoritesView) heart(target favorite.Target) string {
	switch {
	case v.inflight[target]:
		return v.styles.Pending.Render("…")
	case v.app.Store().Contains(target):
		return v.styles.Favorite.Render("♥")
	default:
		return v.styles.Muted.Render("♡")
	}
}

// renderHelpBar renders keyboard shortcuts.
func (v *FavoritesView) renderHelpBar() string {
	descStyle := lipgloss.NewStyle().Foreground(lipgloss.Color("252"))
	sep := v.styles.Muted.Render(" │ ")

	hints := []string{v.styles.Key.Render("j/k") + descStyle.Render(" Navigate")}
	for _, kb := range v.keys.Bindings() {
		hints = append(hints, v.styles.Key.Render(kb.Keys()[0])+descStyle.Render(" "+kb.Help()))
	}
	return v.styles.Bar.Width(v.width).Render(strings.Join(hints, sep))
}

// renderStatusBar renders the error or notification line.
func (v *FavoritesView) renderStatusBar() string {
	var status string
	switch {
	case v.errMsg != "":
		status = v.styles.Error.Render("✗ " + v.errMsg)
	case strings.HasPrefix(v.notification, "✗"):
		status = v.styles.Error.Render(v.notification)
	case v.notification != "":
		status = v.styles.Success.Render(v.notification)
	case v.loading:
		status = v.styles.Muted.Render("Syncing...")
	}
	return lipgloss.NewStyle().Width(v.width).Background(lipgloss.Color("236")).Padding(0, 1).Render(status)
}

// Title returns the view title.
func (v *FavoritesView) Title() string {
	return "Favorites"
}

// SetSize sets the view dimensions.
func (v *FavoritesView) SetSize(width, height int) {
	v.width = width
	v.height = height
}

// Tab returns the collection being shown.
func (v *FavoritesView) Tab() favorite.EntityType {
	return v.tab
}

// Rows returns the rows of the current tab.
func (v *FavoritesView) Rows() []favorite.Record {
	return v.rows[v.tab]
}

// Cursor returns the selected row index in the current tab.
func (v *FavoritesView) Cursor() int {
	return v.cursor[v.tab]
}

// Selected returns the record under the cursor.
func (v *FavoritesView) Selected() (favorite.Record, bool) {
	rows := v.rows[v.tab]
	c := v.cursor[v.tab]
	if c < 0 || c >= len(rows) {
		return favorite.Record{}, false
	}
	return rows[c], true
}

// Pending reports whether a toggle for target is in flight.
func (v *FavoritesView) Pending(target favorite.Target) bool {
	return v.inflight[target]
}

// Notification returns the current notification message.
func (v *FavoritesView) Notification() string {
	return v.notification
}

// Err returns the error shown in the status bar.
func (v *FavoritesView) Err() string {
	return v.errMsg
}

// Loading reports whether a refresh is running.
func (v *FavoritesView) Loading() bool {
	return v.loading
}
