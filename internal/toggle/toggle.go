// Package toggle drives the favorite button for a single artist or concert:
// optimistic state while a request is in flight, rollback when it fails and
// convergence when the server already agrees with the requested state.
package toggle

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
	"github.com/setlistfan/favsync/internal/favorite"
	"github.com/setlistfan/favsync/internal/remote"
)

// ErrUnmounted is returned by Toggle on a button that was unmounted before
// or during the call.
var ErrUnmounted = errors.New("favorite button is unmounted")

// Remote is the part of the sync client a button needs.
type Remote interface {
	CheckStatus(ctx context.Context, target favorite.Target) (bool, error)
	Add(ctx context.Context, target favorite.Target) (favorite.Record, error)
	Remove(ctx context.Context, target favorite.Target) error
}

// Phase is the button's position in the toggle state machine.
type Phase int

const (
	PhaseIdle Phase = iota
	PhasePending
)

// String returns the string representation of the phase.
func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhasePending:
		return "pending"
	default:
		return "unknown"
	}
}

// State is what a button renders. While Pending, Favorite holds the
// optimistic value To.
type State struct {
	Phase    Phase
	Favorite bool
	From     bool
	To       bool
}

// Idle returns the settled state.
func Idle(fav bool) State {
	return State{Phase: PhaseIdle, Favorite: fav, From: fav, To: fav}
}

// Pending returns the in-flight state for a transition from -> to.
func Pending(from, to bool) State {
	return State{Phase: PhasePending, Favorite: to, From: from, To: to}
}

// IsFavorite reports the value to render.
func (s State) IsFavorite() bool {
	return s.Favorite
}

// IsLoading reports whether a request is in flight and the button is disabled.
func (s State) IsLoading() bool {
	return s.Phase == PhasePending
}

// Outcome tells the caller how a toggle resolved.
type Outcome int

const (
	OutcomeAdded Outcome = iota + 1
	OutcomeRemoved
	// OutcomeConverged means the server already held the requested state.
	OutcomeConverged
	OutcomeRolledBack
	// OutcomeIgnored means the press had no effect.
	OutcomeIgnored
)

// String returns the string representation of the outcome.
func (o Outcome) String() string {
	switch o {
	case OutcomeAdded:
		return "added"
	case OutcomeRemoved:
		return "removed"
	case OutcomeConverged:
		return "converged"
	case OutcomeRolledBack:
		return "rolled_back"
	case OutcomeIgnored:
		return "ignored"
	default:
		return "unknown"
	}
}

// ErrorHandler surfaces a failed toggle to the user.
type ErrorHandler func(target favorite.Target, err error)

// Button is the controller behind one favorite button.
type Button struct {
	target  favorite.Target
	store   *favorite.Store
	api     Remote
	logger  zerolog.Logger
	onError ErrorHandler

	mu          sync.Mutex
	state       State
	active      bool
	gen         uint64
	inStore     bool
	listeners   map[int]func(State)
	order       []int
	nextID      int
	unsubscribe func()
}

// Option configures a Button.
type Option func(*Button)

// WithLogger sets the button logger.
func WithLogger(l zerolog.Logger) Option {
	return func(b *Button) {
		b.logger = l
	}
}

// WithErrorHandler sets the handler called when a toggle rolls back.
func WithErrorHandler(h ErrorHandler) Option {
	return func(b *Button) {
		b.onError = h
	}
}

// NewButton creates a button for target showing the store's current value.
// The button follows later store changes for its target while idle.
func NewButton(target favorite.Target, store *favorite.Store, api Remote, opts ...Option) *Button {
	b := &Button{
		target:    target,
		store:     store,
		api:       api,
		logger:    zerolog.Nop(),
		active:    true,
		listeners: make(map[int]func(State)),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.inStore = store.Contains(target)
	b.state = Idle(b.inStore)
	b.unsubscribe = store.Subscribe(target.Type, b.storeChanged)
	return b
}

// Target returns the entity this button favorites.
func (b *Button) Target() favorite.Target {
	return b.target
}

// State returns the current state.
func (b *Button) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Mounted reports whether the button still accepts presses.
func (b *Button) Mounted() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.active
}

// OnChange registers fn to be called after every state change.
func (b *Button) OnChange(fn func(State)) (cancel func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	id := b.nextID
	b.listeners[id] = fn
	b.order = append(b.order, id)

	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.listeners, id)
		b.order = lo.Without(b.order, id)
	}
}

// Mount asks the server for the target's status and shows the answer,
// overriding the store's value for this button. A failed check shows the
// target as not favorited. The answer is discarded if a toggle started
// while the check was in flight.
func (b *Button) Mount(ctx context.Context) State {
	b.mu.Lock()
	if !b.active {
		defer b.mu.Unlock()
		return b.state
	}
	gen := b.gen
	b.mu.Unlock()

	fav, err := b.api.CheckStatus(ctx, b.target)
	if err != nil {
		b.logger.Debug().Err(err).Str("target", b.target.String()).Msg("favorite status check failed")
		fav = false
	}

	b.mu.Lock()
	if !b.active || b.gen != gen || b.state.Phase == PhasePending {
		defer b.mu.Unlock()
		return b.state
	}
	changed := b.state != Idle(fav)
	b.state = Idle(fav)
	st := b.state
	fns := b.listenersLocked()
	b.mu.Unlock()

	if changed {
		notify(fns, st)
	}
	return st
}

// Toggle flips the favorite. A press while a request is in flight returns
// OutcomeIgnored and does nothing. Failures other than conflict on add and
// not found on remove roll the button back, leave the store untouched and
// are returned after being passed to the error handler. If the button is
// unmounted before the response arrives, the response is dropped and
// ErrUnmounted is returned.
func (b *Button) Toggle(ctx context.Context) (Outcome, error) {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return OutcomeIgnored, ErrUnmounted
	}
	if b.state.Phase == PhasePending {
		b.mu.Unlock()
		b.logger.Debug().Str("target", b.target.String()).Msg("ignoring press while pending")
		return OutcomeIgnored, nil
	}
	from := b.state.Favorite
	b.state = Pending(from, !from)
	b.gen++
	st := b.state
	fns := b.listenersLocked()
	b.mu.Unlock()

	notify(fns, st)

	settled := Idle(from)
	defer func() { b.settle(settled) }()

	if !from {
		rec, err := b.api.Add(ctx, b.target)
		switch {
		case err == nil:
			settled = Idle(true)
			return b.apply(OutcomeAdded, func() { b.store.AddOne(rec) })
		case errors.Is(err, remote.ErrConflict):
			settled = Idle(true)
			if rec.Validate() != nil || rec.Target() != b.target {
				rec = favorite.NewRecord(b.target, 0)
			}
			b.logger.Debug().Str("target", b.target.String()).Msg("favorite already exists")
			return b.apply(OutcomeConverged, func() { b.store.AddOne(rec) })
		default:
			return b.rollback(err)
		}
	}

	err := b.api.Remove(ctx, b.target)
	switch {
	case err == nil:
		settled = Idle(false)
		return b.apply(OutcomeRemoved, func() { b.store.RemoveTarget(b.target) })
	case errors.Is(err, remote.ErrNotFound):
		settled = Idle(false)
		b.logger.Debug().Str("target", b.target.String()).Msg("favorite already absent")
		return b.apply(OutcomeConverged, func() { b.store.RemoveTarget(b.target) })
	default:
		return b.rollback(err)
	}
}

// Unmount detaches the button from the store. Responses that arrive later
// are dropped.
func (b *Button) Unmount() {
	b.mu.Lock()
	if !b.active {
		b.mu.Unlock()
		return
	}
	b.active = false
	unsub := b.unsubscribe
	b.listeners = make(map[int]func(State))
	b.order = nil
	b.mu.Unlock()

	unsub()
}

// apply mutates the store if the button is still mounted.
func (b *Button) apply(outcome Outcome, mutate func()) (Outcome, error) {
	if !b.Mounted() {
		b.logger.Debug().Str("target", b.target.String()).Msg("dropping response for unmounted button")
		return OutcomeIgnored, ErrUnmounted
	}
	mutate()
	return outcome, nil
}

func (b *Button) rollback(err error) (Outcome, error) {
	if !b.Mounted() {
		return OutcomeIgnored, ErrUnmounted
	}
	b.logger.Warn().Err(err).Str("target", b.target.String()).Msg("favorite toggle failed, rolling back")
	if b.onError != nil {
		b.onError(b.target, err)
	}
	return OutcomeRolledBack, err
}

// settle ends the pending phase. It runs on every path out of Toggle.
func (b *Button) settle(st State) {
	b.mu.Lock()
	b.state = st
	if !b.active {
		b.mu.Unlock()
		return
	}
	fns := b.listenersLocked()
	b.mu.Unlock()

	notify(fns, st)
}

// storeChanged follows the store when the target's membership flips and the
// button is idle. Other edits to the sub-collection are ignored so that a
// status check keeps precedence until the store really changes.
func (b *Button) storeChanged(records []favorite.Record) {
	in := lo.ContainsBy(records, func(r favorite.Record) bool { return r.Target() == b.target })

	b.mu.Lock()
	if in == b.inStore {
		b.mu.Unlock()
		return
	}
	b.inStore = in
	if !b.active || b.state.Phase != PhaseIdle || b.state.Favorite == in {
		b.mu.Unlock()
		return
	}
	b.state = Idle(in)
	st := b.state
	fns := b.listenersLocked()
	b.mu.Unlock()

	notify(fns, st)
}

func (b *Button) listenersLocked() []func(State) {
	return lo.FilterMap(b.order, func(id int, _ int) (func(State), bool) {
		fn, ok := b.listeners[id]
		return fn, ok
	})
}

func notify(fns []func(State), st State) {
	for _, fn := range fns {
		fn(st)
	}
}
