// Package live applies favorite changes pushed by the sync stream, so that
// adds and removes made on other devices reach the local store without a
// full refresh.
package live

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/setlistfan/favsync/internal/auth"
	"github.com/setlistfan/favsync/internal/favorite"
	"github.com/setlistfan/favsync/internal/protocol/websocket"
)

// Event types carried by the stream.
const (
	EventAdded   = "favorite.added"
	EventRemoved = "favorite.removed"
	EventReset   = "favorites.reset"
	eventAck     = "ack"
)

// ErrMalformedEvent is returned by Apply for frames it cannot use.
var ErrMalformedEvent = errors.New("malformed sync event")

// Event is one sync stream message.
type Event struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Data      json.RawMessage `json:"data,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
	AckToken  string          `json:"ack_token,omitempty"`
}

type ack struct {
	Type      string `json:"type"`
	MessageID string `json:"message_id"`
	AckToken  string `json:"ack_token"`
}

// removal is the payload of a favorite.removed event. A full record is
// accepted as well since it carries the same ids.
type removal struct {
	ArtistID  *int64 `json:"artistId"`
	ConcertID *int64 `json:"concertId"`
}

// RefreshFunc reloads the whole store.
type RefreshFunc func(ctx context.Context) error

// Feed keeps a store in step with the sync stream.
type Feed struct {
	url     string
	store   *favorite.Store
	tokens  auth.TokenSource
	config  *websocket.Config
	refresh RefreshFunc
	logger  zerolog.Logger
	conn    *websocket.Connection
}

// Option configures a Feed.
type Option func(*Feed)

// WithConfig sets the stream connection configuration.
func WithConfig(cfg *websocket.Config) Option {
	return func(f *Feed) {
		f.config = cfg
	}
}

// WithRefresh sets the function run on connect and on favorites.reset.
func WithRefresh(fn RefreshFunc) Option {
	return func(f *Feed) {
		f.refresh = fn
	}
}

// WithLogger sets the feed logger.
func WithLogger(l zerolog.Logger) Option {
	return func(f *Feed) {
		f.logger = l
	}
}

// New creates a feed for the stream at url.
func New(url string, store *favorite.Store, tokens auth.TokenSource, opts ...Option) *Feed {
	f := &Feed{
		url:    url,
		store:  store,
		tokens: tokens,
		config: websocket.DefaultConfig(),
		logger: zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	f.conn = websocket.NewConnection(url, f.config)
	return f
}

// State returns the stream connection state.
func (f *Feed) State() websocket.State {
	return f.conn.State()
}

// Run keeps the stream open until ctx is cancelled. After a drop it waits
// ReconnectDelay and dials again; it gives up after MaxReconnects
// consecutive failed attempts. A missing token ends Run immediately.
func (f *Feed) Run(ctx context.Context) error {
	f.conn.OnMessage(func(m *websocket.Message) {
		if err := f.Apply(ctx, m.Data); err != nil {
			f.logger.Warn().Err(err).Str("message_id", m.ID).Msg("skipping sync event")
		}
	})
	f.conn.OnStateChange(func(s websocket.State) {
		f.logger.Debug().Str("state", s.String()).Str("url", f.url).Msg("sync stream state")
	})
	defer f.conn.Close()

	failures := 0
	for {
		err := f.session(ctx)
		if ctx.Err() != nil {
			return nil
		}
		if errors.Is(err, auth.ErrNoToken) {
			return err
		}

		var connected *sessionError
		if errors.As(err, &connected) {
			failures = 0
			err = connected.err
		} else {
			failures++
		}
		if f.config.MaxReconnects >= 0 && failures > f.config.MaxReconnects {
			return fmt.Errorf("sync stream unavailable after %d attempts: %w", failures, err)
		}

		f.logger.Warn().Err(err).Int("attempt", failures).Dur("retry_in", f.config.ReconnectDelay).Msg("sync stream dropped")
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(f.config.ReconnectDelay):
		}
	}
}

// sessionError marks a session that connected before it ended.
type sessionError struct {
	err error
}

func (e *sessionError) Error() string {
	return e.err.Error()
}

func (e *sessionError) Unwrap() error {
	return e.err
}

// session runs one connection until it drops or ctx ends.
func (f *Feed) session(ctx context.Context) error {
	if f.tokens == nil {
		return auth.ErrNoToken
	}
	token, err := f.tokens.Token(ctx)
	if err != nil {
		return err
	}
	if token == "" || auth.Expired(token, time.Now()) {
		return auth.ErrNoToken
	}

	f.conn.SetHeader("Authorization", "Bearer "+token)
	if err := f.conn.Connect(ctx); err != nil {
		return err
	}
	f.logger.Info().Str("url", f.url).Msg("sync stream connected")

	// Changes made while disconnected are only visible through a full list.
	if f.refresh != nil {
		if err := f.refresh(ctx); err != nil {
			f.logger.Warn().Err(err).Msg("refresh after connect failed")
		}
	}

	select {
	case <-ctx.Done():
		f.conn.Close()
		return ctx.Err()
	case <-f.conn.Done():
		return &sessionError{err: f.conn.Err()}
	}
}

// Apply decodes one stream frame and applies it to the store. Unknown
// event types are ignored.
func (f *Feed) Apply(ctx context.Context, data []byte) error {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}

	log := f.logger.Debug().Str("event_id", ev.ID).Str("type", ev.Type)

	switch ev.Type {
	case EventAdded:
		var rec favorite.Record
		if err := json.Unmarshal(ev.Data, &rec); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, ev.Type, err)
		}
		if err := rec.Validate(); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, ev.Type, err)
		}
		log.Bool("inserted", f.store.AddOne(rec)).Msg("applied sync event")

	case EventRemoved:
		var r removal
		if err := json.Unmarshal(ev.Data, &r); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrMalformedEvent, ev.Type, err)
		}
		if r.ArtistID == nil && r.ConcertID == nil {
			return fmt.Errorf("%w: %s: no artist or concert id", ErrMalformedEvent, ev.Type)
		}
		removed := f.store.RemoveOne(favorite.RemoveCriteria{ArtistID: r.ArtistID, ConcertID: r.ConcertID})
		log.Bool("removed", removed).Msg("applied sync event")

	case EventReset:
		if f.refresh != nil {
			if err := f.refresh(ctx); err != nil {
				return fmt.Errorf("failed to refresh on reset: %w", err)
			}
		}
		log.Msg("applied sync event")

	default:
		log.Msg("ignoring sync event")
	}

	if ev.AckToken != "" {
		f.ack(ctx, ev)
	}
	return nil
}

func (f *Feed) ack(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ack{Type: eventAck, MessageID: ev.ID, AckToken: ev.AckToken})
	if err != nil {
		return
	}
	if err := f.conn.Send(ctx, payload); err != nil && !errors.Is(err, websocket.ErrConnectionNotConnected) {
		f.logger.Warn().Err(err).Str("event_id", ev.ID).Msg("failed to acknowledge sync event")
	}
}
