// Package remote talks to the favorites REST API and classifies its failures.
package remote

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/setlistfan/favsync/internal/auth"
	"github.com/setlistfan/favsync/internal/favorite"
	"github.com/setlistfan/favsync/internal/logging"
	httpclient "github.com/setlistfan/favsync/internal/protocol/http"
	"golang.org/x/sync/singleflight"
)

// Sender executes one HTTP request.
type Sender interface {
	Send(ctx context.Context, req *httpclient.Request) (*httpclient.Response, error)
}

// Client is the Favorite Sync Client.
type Client struct {
	baseURL string
	sender  Sender
	tokens  auth.TokenSource
	logger  zerolog.Logger
	now     func() time.Time
	checks  singleflight.Group
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the client logger.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithClock overrides the clock used for local token expiry checks.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		c.now = now
	}
}

// New creates a client for the API rooted at baseURL.
func New(baseURL string, sender Sender, tokens auth.TokenSource, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		sender:  sender,
		tokens:  tokens,
		logger:  zerolog.Nop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

type checkResponse struct {
	Favorite bool `json:"favorite"`
}

type messageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error"`
}

// CheckStatus reports whether target is favorited. Concurrent checks for the
// same target share one request. The shared request is not cancelled with any
// one caller's ctx; each caller stops waiting when its own ctx is done.
func (c *Client) CheckStatus(ctx context.Context, target favorite.Target) (bool, error) {
	const op = "check favorite"
	if !target.Valid() {
		return false, c.invalidTarget(op, target)
	}

	shared := context.WithoutCancel(ctx)
	ch := c.checks.DoChan(target.String(), func() (any, error) {
		resp, err := c.do(shared, op, target, http.MethodGet, c.targetURL(target)+"/check")
		if err != nil {
			return false, err
		}
		var body checkResponse
		if err := resp.DecodeJSON(&body); err != nil {
			return false, &Error{Kind: KindServer, Op: op, Target: target, Status: resp.StatusCode, Message: "malformed response", Err: err}
		}
		return body.Favorite, nil
	})

	select {
	case <-ctx.Done():
		return false, &Error{Kind: KindNetwork, Op: op, Target: target, Err: ctx.Err()}
	case res := <-ch:
		if res.Err != nil {
			return false, res.Err
		}
		return res.Val.(bool), nil
	}
}

// Add favorites target and returns the server's record. On conflict the
// returned error is KindConflict and the record is still usable: it is the
// server's copy when the response carried one, otherwise a placeholder with
// favorite id 0.
func (c *Client) Add(ctx context.Context, target favorite.Target) (favorite.Record, error) {
	const op = "add favorite"
	if !target.Valid() {
		return favorite.Record{}, c.invalidTarget(op, target)
	}

	resp, err := c.do(ctx, op, target, http.MethodPost, c.targetURL(target))
	if err != nil {
		var re *Error
		if errors.As(err, &re) && re.Kind == KindConflict && resp != nil {
			return decodeRecord(resp, target), err
		}
		return favorite.Record{}, err
	}

	var rec favorite.Record
	if err := resp.DecodeJSON(&rec); err != nil {
		return favorite.Record{}, &Error{Kind: KindServer, Op: op, Target: target, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	if rec.ArtistID == nil && rec.ConcertID == nil {
		rec = fillTarget(rec, target)
	}
	if rec.Validate() != nil || rec.Target() != target {
		return favorite.Record{}, &Error{Kind: KindServer, Op: op, Target: target, Status: resp.StatusCode, Message: "response does not match requested target"}
	}
	return rec, nil
}

// Remove unfavorites target. A KindNotFound error means it was already absent.
func (c *Client) Remove(ctx context.Context, target favorite.Target) error {
	const op = "remove favorite"
	if !target.Valid() {
		return c.invalidTarget(op, target)
	}

	_, err := c.do(ctx, op, target, http.MethodDelete, c.targetURL(target))
	return err
}

// ListAll returns the user's complete favorites snapshot.
func (c *Client) ListAll(ctx context.Context) ([]favorite.Record, error) {
	const op = "list favorites"

	resp, err := c.do(ctx, op, favorite.Target{}, http.MethodGet, c.baseURL+"/favorites")
	if err != nil {
		return nil, err
	}

	var records []favorite.Record
	if err := resp.DecodeJSON(&records); err != nil {
		return nil, &Error{Kind: KindServer, Op: op, Status: resp.StatusCode, Message: "malformed response", Err: err}
	}
	return records, nil
}

// do resolves the token, sends the request and classifies the outcome. The
// response is returned alongside classified HTTP errors so callers can read
// the body.
func (c *Client) do(ctx context.Context, op string, target favorite.Target, method, url string) (*httpclient.Response, error) {
	token, err := c.token(ctx)
	if err != nil {
		c.logger.Debug().Str("op", op).Str("target", target.String()).Msg("skipping request without a usable token")
		return nil, &Error{Kind: KindUnauthenticated, Op: op, Target: target, Err: err}
	}

	req := &httpclient.Request{
		Method:    method,
		URL:       url,
		Token:     token,
		RequestID: logging.RequestID(ctx),
	}

	resp, err := c.sender.Send(ctx, req)
	if err != nil {
		c.logger.Warn().Err(err).Str("op", op).Str("method", method).Str("url", url).Msg("favorites request failed")
		return nil, &Error{Kind: KindNetwork, Op: op, Target: target, Err: err}
	}

	log := c.logger.Debug()
	if !resp.IsSuccess() {
		log = c.logger.Warn()
	}
	log.Str("op", op).
		Str("method", method).
		Str("url", url).
		Int("status_code", resp.StatusCode).
		Dur("duration_ms", resp.Timing.Total).
		Str("request_id", resp.RequestID).
		Msg("favorites request")

	if !resp.IsSuccess() {
		return resp, &Error{
			Kind:    kindForStatus(resp.StatusCode),
			Op:      op,
			Target:  target,
			Status:  resp.StatusCode,
			Message: errorMessage(resp),
		}
	}
	return resp, nil
}

func (c *Client) token(ctx context.Context) (string, error) {
	if c.tokens == nil {
		return "", auth.ErrNoToken
	}
	token, err := c.tokens.Token(ctx)
	if err != nil {
		return "", err
	}
	if token == "" {
		return "", auth.ErrNoToken
	}
	if auth.Expired(token, c.now()) {
		return "", fmt.Errorf("token expired: %w", auth.ErrNoToken)
	}
	return token, nil
}

func (c *Client) targetURL(t favorite.Target) string {
	return fmt.Sprintf("%s/favorites/%s/%d", c.baseURL, t.Type, t.ID)
}

func (c *Client) invalidTarget(op string, t favorite.Target) error {
	return &Error{Kind: KindServer, Op: op, Target: t, Err: favorite.ErrInvalidTarget}
}

// decodeRecord reads a record from a conflict response, falling back to a
// placeholder for target.
func decodeRecord(resp *httpclient.Response, target favorite.Target) favorite.Record {
	var rec favorite.Record
	if err := json.Unmarshal(resp.Body, &rec); err == nil {
		if rec.ArtistID == nil && rec.ConcertID == nil {
			rec = fillTarget(rec, target)
		}
		if rec.Validate() == nil && rec.Target() == target {
			return rec
		}
	}
	return favorite.NewRecord(target, 0)
}

func fillTarget(rec favorite.Record, target favorite.Target) favorite.Record {
	filled := favorite.NewRecord(target, rec.FavoriteID)
	filled.CreatedAt = rec.CreatedAt
	return filled
}

func errorMessage(resp *httpclient.Response) string {
	var body messageResponse
	if err := json.Unmarshal(resp.Body, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	msg := strings.TrimSpace(string(resp.Body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
