package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/setlistfan/favsync/internal/auth"
	"github.com/setlistfan/favsync/internal/config"
	"github.com/setlistfan/favsync/internal/favorite"
	"github.com/setlistfan/favsync/internal/favorite/sqlite"
	httpclient "github.com/setlistfan/favsync/internal/protocol/http"
	"github.com/setlistfan/favsync/internal/remote"
	"github.com/setlistfan/favsync/internal/toggle"
)

// Hook names.
const (
	// HookToggled receives a ToggleEvent after a toggle settles without error.
	HookToggled = "favorite.toggled"
	// HookToggleFailed receives a ToggleEvent when a toggle rolls back.
	HookToggleFailed = "favorite.toggle_failed"
	// HookRefreshed receives the []favorite.Record loaded by Refresh.
	HookRefreshed = "favorites.refreshed"
)

// Remote is the sync client surface the app drives.
type Remote interface {
	toggle.Remote
	ListAll(ctx context.Context) ([]favorite.Record, error)
}

// HookHandler is a function that handles a hook event.
type HookHandler func(ctx context.Context, data any) (any, error)

// ToggleEvent is passed to toggle hooks.
type ToggleEvent struct {
	Target  favorite.Target
	Outcome toggle.Outcome
	// State is set for successful toggles only.
	State toggle.State
	Err   error
}

// App is the main application container with dependency injection.
type App struct {
	config config.Config
	store  *favorite.Store
	remote Remote
	tokens auth.TokenSource
	cache  *sqlite.Cache
	logger zerolog.Logger

	mu      sync.RWMutex
	hooks   map[string][]HookHandler
	buttons map[favorite.Target]*toggle.Button
	unbind  func()
}

// Option is a function that configures the App.
type Option func(*App)

// New creates a new App with the given options. Without WithRemote the app
// talks to config.BaseURL using tokens. With a cache, the store is seeded
// from disk and mirrored back on every change.
func New(opts ...Option) *App {
	a := &App{
		config:  config.Default(),
		logger:  zerolog.Nop(),
		hooks:   make(map[string][]HookHandler),
		buttons: make(map[favorite.Target]*toggle.Button),
	}

	for _, opt := range opts {
		opt(a)
	}

	if a.store == nil {
		a.store = favorite.NewStore(favorite.WithLogger(a.logger))
	}
	if a.remote == nil {
		sender := httpclient.NewClient(httpclient.WithTimeout(a.config.Timeout))
		a.remote = remote.New(a.config.BaseURL, sender, a.tokens, remote.WithLogger(a.logger))
	}
	if a.cache != nil {
		if err := sqlite.Seed(context.Background(), a.store, a.cache); err != nil {
			a.logger.Warn().Err(err).Msg("failed to load cached favorites")
		}
		a.unbind = sqlite.Bind(a.store, a.cache, a.logger)
	}

	return a
}

// WithConfig sets the application configuration.
func WithConfig(cfg config.Config) Option {
	return func(a *App) {
		a.config = cfg
	}
}

// WithStore injects the favorite store.
func WithStore(s *favorite.Store) Option {
	return func(a *App) {
		a.store = s
	}
}

// WithRemote injects the sync client.
func WithRemote(r Remote) Option {
	return func(a *App) {
		a.remote = r
	}
}

// WithTokens sets the token source used by the default sync client and
// cleared on logout.
func WithTokens(ts auth.TokenSource) Option {
	return func(a *App) {
		a.tokens = ts
	}
}

// WithCache enables the on-disk snapshot cache.
func WithCache(c *sqlite.Cache) Option {
	return func(a *App) {
		a.cache = c
	}
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(a *App) {
		a.logger = l
	}
}

// Config returns the application configuration.
func (a *App) Config() config.Config {
	return a.config
}

// Store returns the favorite store.
func (a *App) Store() *favorite.Store {
	return a.store
}

// Favorites returns the favorites of one kind, for list screens.
func (a *App) Favorites(t favorite.EntityType) []favorite.Record {
	return a.store.List(t)
}

// UseFavoriteStatus creates a button for the entity and shows the server's
// status for it. The caller owns the button and must Unmount it.
func (a *App) UseFavoriteStatus(ctx context.Context, t favorite.EntityType, id int64) (*toggle.Button, error) {
	target := favorite.Target{Type: t, ID: id}
	if !target.Valid() {
		return nil, fmt.Errorf("%w: %s", favorite.ErrInvalidTarget, target)
	}

	b := a.newButton(target)
	b.Mount(ctx)
	return b, nil
}

// Button returns the app's shared button for target, creating it from the
// store's current value on first use.
func (a *App) Button(target favorite.Target) *toggle.Button {
	a.mu.Lock()
	defer a.mu.Unlock()

	if b, ok := a.buttons[target]; ok && b.Mounted() {
		return b
	}
	b := a.newButton(target)
	a.buttons[target] = b
	return b
}

// ToggleFavorite flips the favorite through the shared button for the
// entity, so concurrent calls for one entity never overlap.
func (a *App) ToggleFavorite(ctx context.Context, t favorite.EntityType, id int64) (toggle.Outcome, error) {
	target := favorite.Target{Type: t, ID: id}
	if !target.Valid() {
		return toggle.OutcomeIgnored, fmt.Errorf("%w: %s", favorite.ErrInvalidTarget, target)
	}

	b := a.Button(target)
	outcome, err := b.Toggle(ctx)
	if err != nil || outcome == toggle.OutcomeIgnored {
		return outcome, err
	}

	if _, err := a.ExecuteHooks(ctx, HookToggled, ToggleEvent{Target: target, Outcome: outcome, State: b.State()}); err != nil {
		a.logger.Warn().Err(err).Str("hook", HookToggled).Msg("hook failed")
	}
	return outcome, nil
}

// Refresh replaces the store with the server's full list.
func (a *App) Refresh(ctx context.Context) error {
	records, err := a.remote.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("failed to refresh favorites: %w", err)
	}
	a.store.SetAll(records)

	if _, err := a.ExecuteHooks(ctx, HookRefreshed, records); err != nil {
		a.logger.Warn().Err(err).Str("hook", HookRefreshed).Msg("hook failed")
	}
	return nil
}

// Logout forgets the session: shared buttons are unmounted, the store and
// cache are emptied and the saved token is removed.
func (a *App) Logout(ctx context.Context) error {
	a.unmountAll()
	a.store.Clear()

	var errs []error
	if a.cache != nil {
		errs = append(errs, a.cache.Clear(ctx))
	}
	if cl, ok := a.tokens.(interface{ Clear() error }); ok {
		errs = append(errs, cl.Clear())
	}
	return errors.Join(errs...)
}

// Close releases the cache and shared buttons.
func (a *App) Close() error {
	a.unmountAll()

	a.mu.Lock()
	unbind := a.unbind
	a.unbind = nil
	a.mu.Unlock()

	if unbind != nil {
		unbind()
	}
	if a.cache != nil {
		return a.cache.Close()
	}
	return nil
}

// RegisterHook registers a hook handler for the given hook name.
func (a *App) RegisterHook(hook string, handler HookHandler) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.hooks[hook] = append(a.hooks[hook], handler)
}

// GetHooks returns all handlers for the given hook.
func (a *App) GetHooks(hook string) []HookHandler {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return append([]HookHandler(nil), a.hooks[hook]...)
}

// ExecuteHooks executes all handlers for the given hook in order, each
// receiving the previous handler's result.
func (a *App) ExecuteHooks(ctx context.Context, hook string, data any) (any, error) {
	result := data
	for _, handler := range a.GetHooks(hook) {
		var err error
		result, err = handler(ctx, result)
		if err != nil {
			return nil, err
		}
	}
	return result, nil
}

func (a *App) newButton(target favorite.Target) *toggle.Button {
	return toggle.NewButton(target, a.store, a.remote,
		toggle.WithLogger(a.logger),
		toggle.WithErrorHandler(a.toggleFailed),
	)
}

// toggleFailed routes rolled-back toggles to HookToggleFailed.
func (a *App) toggleFailed(target favorite.Target, err error) {
	event := ToggleEvent{Target: target, Outcome: toggle.OutcomeRolledBack, Err: err}
	if _, herr := a.ExecuteHooks(context.Background(), HookToggleFailed, event); herr != nil {
		a.logger.Warn().Err(herr).Str("hook", HookToggleFailed).Msg("hook failed")
	}
}

func (a *App) unmountAll() {
	a.mu.Lock()
	buttons := lo.Values(a.buttons)
	a.buttons = make(map[favorite.Target]*toggle.Button)
	a.mu.Unlock()

	for _, b := range buttons {
		b.Unmount()
	}
}
