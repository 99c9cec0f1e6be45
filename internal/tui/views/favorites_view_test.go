package views

import (
	"context"
	"errors"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/setlistfan/favsync/internal/favorite"
	"github.com/setlistfan/favsync/internal/toggle"
	"github.com/setlistfan/favsync/internal/tui"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeApp struct {
	store      *favorite.Store
	server     []favorite.Record
	refreshErr error
	refreshes  int
	toggleFn   func(target favorite.Target) (toggle.Outcome, error)
	toggled    []favorite.Target
}

func newFakeApp(records ...favorite.Record) *fakeApp {
	store := favorite.NewStore()
	store.SetAll(records)
	return &fakeApp{store: store, server: records}
}

func (f *fakeApp) Store() *favorite.Store {
	return f.store
}

func (f *fakeApp) Refresh(ctx context.Context) error {
	f.refreshes++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	f.store.SetAll(f.server)
	return nil
}

func (f *fakeApp) ToggleFavorite(ctx context.Context, t favorite.EntityType, id int64) (toggle.Outcome, error) {
	target := favorite.Target{Type: t, ID: id}
	f.toggled = append(f.toggled, target)
	if f.toggleFn != nil {
		return f.toggleFn(target)
	}
	if f.store.Contains(target) {
		f.store.RemoveTarget(target)
		return toggle.OutcomeRemoved, nil
	}
	f.store.AddOne(favorite.NewRecord(target, 100))
	return toggle.OutcomeAdded, nil
}

func key(s string) tea.KeyMsg {
	switch s {
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace}
	case "tab":
		return tea.KeyMsg{Type: tea.KeyTab}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func press(t *testing.T, v *FavoritesView, k string) tea.Cmd {
	t.Helper()
	updated, cmd := v.Update(key(k))
	require.Same(t, v, updated)
	return cmd
}

// run executes cmd and feeds its message back into the view.
func run(t *testing.T, v *FavoritesView, cmd tea.Cmd) tea.Cmd {
	t.Helper()
	require.NotNil(t, cmd)
	_, next := v.Update(cmd())
	return next
}

func TestNewFavoritesView(t *testing.T) {
	t.Run("shows cached favorites before the first refresh", func(t *testing.T) {
		a := newFakeApp(favorite.NewArtistRecord(1, 42), favorite.NewConcertRecord(2, 9))
		v := NewFavoritesView(a)

		assert.Equal(t, favorite.EntityArtist, v.Tab())
		require.Len(t, v.Rows(), 1)
		assert.Equal(t, favorite.ArtistTarget(42), v.Rows()[0].Target())
		assert.Equal(t, "Favorites", v.Title())
		assert.Zero(t, a.refreshes)
	})

	t.Run("init refreshes from the server", func(t *testing.T) {
		a := newFakeApp()
		a.server = []favorite.Record{favorite.NewArtistRecord(1, 42), favorite.NewArtistRecord(2, 7)}
		v := NewFavoritesView(a)

		cmd := v.Init()
		assert.True(t, v.Loading())
		run(t, v, cmd)

		assert.False(t, v.Loading())
		assert.Equal(t, 1, a.refreshes)
		assert.Len(t, v.Rows(), 2)
		assert.Empty(t, v.Err())
	})

	t.Run("refresh while loading is dropped", func(t *testing.T) {
		v := NewFavoritesView(newFakeApp())
		require.NotNil(t, v.Init())
		assert.Nil(t, press(t, v, "r"))
	})

	t.Run("failed refresh keeps the cached rows", func(t *testing.T) {
		a := newFakeApp(favorite.NewArtistRecord(1, 42))
		a.refreshErr = errors.New("offline")
		v := NewFavoritesView(a)

		run(t, v, v.Init())

		assert.Len(t, v.Rows(), 1)
		assert.Contains(t, v.Err(), "Refresh failed: offline")
	})
}

func TestFavoritesView_Navigation(t *testing.T) {
	a := newFakeApp(
		favorite.NewArtistRecord(1, 1),
		favorite.NewArtistRecord(2, 2),
		favorite.NewArtistRecord(3, 3),
		favorite.NewConcertRecord(4, 9),
	)

	t.Run("moves within bounds", func(t *testing.T) {
		v := NewFavoritesView(a)
		press(t, v, "k")
		assert.Equal(t, 0, v.Cursor())

		press(t, v, "j")
		press(t, v, "j")
		press(t, v, "j")
		assert.Equal(t, 2, v.Cursor())

		press(t, v, "g")
		assert.Equal(t, 0, v.Cursor())
		press(t, v, "G")
		assert.Equal(t, 2, v.Cursor())
	})

	t.Run("tab switches collections and keeps each cursor", func(t *testing.T) {
		v := NewFavoritesView(a)
		press(t, v, "j")

		press(t, v, "tab")
		assert.Equal(t, favorite.EntityConcert, v.Tab())
		assert.Equal(t, 0, v.Cursor())
		rec, ok := v.Selected()
		require.True(t, ok)
		assert.Equal(t, favorite.ConcertTarget(9), rec.Target())

		press(t, v, "tab")
		assert.Equal(t, favorite.EntityArtist, v.Tab())
		assert.Equal(t, 1, v.Cursor())
	})

	t.Run("nothing is selected in an empty collection", func(t *testing.T) {
		v := NewFavoritesView(newFakeApp())
		_, ok := v.Selected()
		assert.False(t, ok)
		assert.Nil(t, press(t, v, "space"))
		assert.Nil(t, press(t, v, "y"))
	})
}

func TestFavoritesView_Toggle(t *testing.T) {
	t.Run("unfavorited row stays visible and can be favorited again", func(t *testing.T) {
		a := newFakeApp(favorite.NewArtistRecord(1, 42))
		v := NewFavoritesView(a)
		target := favorite.ArtistTarget(42)

		cmd := press(t, v, "space")
		assert.True(t, v.Pending(target))
		run(t, v, cmd)

		assert.False(t, v.Pending(target))
		assert.False(t, a.store.Contains(target))
		require.Len(t, v.Rows(), 1)
		assert.Equal(t, "♡ Unfavorited artist/42", v.Notification())

		run(t, v, press(t, v, "enter"))
		assert.True(t, a.store.Contains(target))
		assert.Equal(t, "♥ Favorited artist/42", v.Notification())
		assert.Equal(t, []favorite.Target{target, target}, a.toggled)
	})

	t.Run("presses while pending are ignored", func(t *testing.T) {
		a := newFakeApp(favorite.NewArtistRecord(1, 42))
		v := NewFavoritesView(a)

		first := press(t, v, "space")
		require.NotNil(t, first)
		assert.Nil(t, press(t, v, "space"))

		run(t, v, first)
		assert.Len(t, a.toggled, 1)
	})

	t.Run("failure shows an error", func(t *testing.T) {
		a := newFakeApp(favorite.NewConcertRecord(1, 9))
		a.toggleFn = func(favorite.Target) (toggle.Outcome, error) {
			return toggle.OutcomeRolledBack, errors.New("server exploded")
		}
		v := NewFavoritesView(a)
		press(t, v, "tab")

		run(t, v, press(t, v, "space"))

		assert.Equal(t, "Could not update concert/9: server exploded", v.Err())
		assert.Empty(t, v.Notification())
		assert.False(t, v.Pending(favorite.ConcertTarget(9)))
	})

	t.Run("unmounted result is silent", func(t *testing.T) {
		a := newFakeApp(favorite.NewArtistRecord(1, 42))
		a.toggleFn = func(favorite.Target) (toggle.Outcome, error) {
			return toggle.OutcomeIgnored, toggle.ErrUnmounted
		}
		v := NewFavoritesView(a)

		run(t, v, press(t, v, "space"))

		assert.Empty(t, v.Err())
		assert.Empty(t, v.Notification())
	})

	t.Run("converged toggle notifies", func(t *testing.T) {
		a := newFakeApp(favorite.NewArtistRecord(1, 42))
		a.toggleFn = func(favorite.Target) (toggle.Outcome, error) {
			return toggle.OutcomeConverged, nil
		}
		v := NewFavoritesView(a)

		run(t, v, press(t, v, "space"))
		assert.Equal(t, "✓ artist/42 already up to date", v.Notification())
	})

	t.Run("a new toggle clears the previous error", func(t *testing.T) {
		a := newFakeApp(favorite.NewArtistRecord(1, 42))
		a.toggleFn = func(favorite.Target) (toggle.Outcome, error) {
			return toggle.OutcomeRolledBack, errors.New("boom")
		}
		v := NewFavoritesView(a)
		run(t, v, press(t, v, "space"))
		require.NotEmpty(t, v.Err())

		press(t, v, "space")
		assert.Empty(t, v.Err())
	})
}

func TestFavoritesView_Copy(t *testing.T) {
	t.Run("copies the selected target", func(t *testing.T) {
		var copied string
		v := NewFavoritesView(newFakeApp(favorite.NewArtistRecord(1, 42)), WithClipboard(func(s string) error {
			copied = s
			return nil
		}))

		cmd := press(t, v, "y")

		assert.NotNil(t, cmd)
		assert.Equal(t, "artist/42", copied)
		assert.Equal(t, "✓ Copied artist/42", v.Notification())

		v.Update(clearNotificationMsg{})
		assert.Empty(t, v.Notification())
	})

	t.Run("reports clipboard failures", func(t *testing.T) {
		v := NewFavoritesView(newFakeApp(favorite.NewArtistRecord(1, 42)), WithClipboard(func(string) error {
			return errors.New("no clipboard")
		}))

		press(t, v, "y")
		assert.Equal(t, "✗ Copy failed", v.Notification())
	})
}

func TestFavoritesView_Messages(t *testing.T) {
	t.Run("quit", func(t *testing.T) {
		v := NewFavoritesView(newFakeApp())
		cmd := press(t, v, "q")
		require.NotNil(t, cmd)
		assert.Equal(t, tea.QuitMsg{}, cmd())
	})

	t.Run("window size", func(t *testing.T) {
		v := NewFavoritesView(newFakeApp())
		v.Update(tea.WindowSizeMsg{Width: 100, Height: 30})
		assert.NotEmpty(t, v.View())
	})

	t.Run("refresh message reloads", func(t *testing.T) {
		a := newFakeApp()
		a.server = []favorite.Record{favorite.NewArtistRecord(1, 5)}
		v := NewFavoritesView(a)

		_, cmd := v.Update(tui.RefreshMsg{})
		run(t, v, cmd)
		assert.Len(t, v.Rows(), 1)
	})
}

func TestFavoritesView_View(t *testing.T) {
	t.Run("renders nothing before sizing", func(t *testing.T) {
		v := NewFavoritesView(newFakeApp(favorite.NewArtistRecord(1, 42)))
		assert.Empty(t, v.View())
	})

	t.Run("renders tabs rows and hearts", func(t *testing.T) {
		a := newFakeApp(favorite.NewArtistRecord(1, 42), favorite.NewConcertRecord(2, 9))
		v := NewFavoritesView(a)
		v.SetSize(100, 20)

		out := v.View()
		assert.Contains(t, out, "Artists (1)")
		assert.Contains(t, out, "Concerts (1)")
		assert.Contains(t, out, "artist/42")
		assert.Contains(t, out, "♥")
		assert.Contains(t, out, "Toggle")
	})

	t.Run("pending and removed hearts", func(t *testing.T) {
		a := newFakeApp(favorite.NewArtistRecord(1, 42))
		v := NewFavoritesView(a)
		v.SetSize(100, 20)

		cmd := press(t, v, "space")
		assert.Contains(t, v.View(), "…")

		run(t, v, cmd)
		assert.Contains(t, v.View(), "♡")
	})

	t.Run("empty collection", func(t *testing.T) {
		v := NewFavoritesView(newFakeApp())
		v.SetSize(100, 20)
		press(t, v, "tab")
		assert.Contains(t, v.View(), "No favorite concerts yet")
	})

	t.Run("status bar shows errors", func(t *testing.T) {
		a := newFakeApp()
		a.refreshErr = errors.New("offline")
		v := NewFavoritesView(a)
		v.SetSize(100, 20)

		run(t, v, v.Init())
		assert.Contains(t, v.View(), "Refresh failed: offline")
	})
}
