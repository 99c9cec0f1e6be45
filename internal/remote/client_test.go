package remote

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/setlistfan/favsync/internal/auth"
	"github.com/setlistfan/favsync/internal/favorite"
	httpclient "github.com/setlistfan/favsync/internal/protocol/http"
	"github.com/setlistfan/favsync/internal/remote/remotetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "secret"

func newTestClient(t *testing.T, baseURL string, tokens auth.TokenSource, opts ...httpclient.Option) *Client {
	t.Helper()
	return New(baseURL, httpclient.NewClient(opts...), tokens)
}

func TestClient_CheckStatus(t *testing.T) {
	srv := remotetest.New(testToken)
	defer srv.Close()
	srv.Seed(favorite.NewArtistRecord(7, 42))

	c := newTestClient(t, srv.URL, auth.Static(testToken))

	t.Run("favorited", func(t *testing.T) {
		ok, err := c.CheckStatus(context.Background(), favorite.ArtistTarget(42))
		require.NoError(t, err)
		assert.True(t, ok)
	})

	t.Run("not favorited", func(t *testing.T) {
		ok, err := c.CheckStatus(context.Background(), favorite.ConcertTarget(42))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("request path and auth header", func(t *testing.T) {
		reqs := srv.Requests()
		require.NotEmpty(t, reqs)
		last := reqs[len(reqs)-1]
		assert.Equal(t, http.MethodGet, last.Method)
		assert.Equal(t, "/favorites/concert/42/check", last.Path)
		assert.Equal(t, "Bearer "+testToken, last.Headers.Get("Authorization"))
	})

	t.Run("invalid target sends nothing", func(t *testing.T) {
		before := srv.RequestCount()
		_, err := c.CheckStatus(context.Background(), favorite.Target{Type: "venue", ID: 1})
		require.Error(t, err)
		assert.ErrorIs(t, err, favorite.ErrInvalidTarget)
		assert.Equal(t, before, srv.RequestCount())
	})
}

func TestClient_CheckStatus_SharesInFlightRequest(t *testing.T) {
	srv := remotetest.New(testToken)
	defer srv.Close()
	srv.Hang(http.MethodGet)

	c := newTestClient(t, srv.URL, auth.Static(testToken))

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = c.CheckStatus(context.Background(), favorite.ArtistTarget(1))
		}(i)
	}

	require.Eventually(t, func() bool { return srv.RequestCount() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(50 * time.Millisecond)
	srv.Release(http.MethodGet)
	wg.Wait()

	for _, err := range results {
		assert.NoError(t, err)
	}
	assert.Equal(t, 1, srv.RequestCount())
}

func TestClient_CheckStatus_CallerCancelDoesNotFailOthers(t *testing.T) {
	srv := remotetest.New(testToken)
	defer srv.Close()
	srv.Seed(favorite.NewArtistRecord(1, 42))
	srv.Hang(http.MethodGet)

	c := newTestClient(t, srv.URL, auth.Static(testToken))
	target := favorite.ArtistTarget(42)

	ctxA, cancelA := context.WithCancel(context.Background())
	defer cancelA()

	errA := make(chan error, 1)
	go func() {
		_, err := c.CheckStatus(ctxA, target)
		errA <- err
	}()
	require.Eventually(t, func() bool { return srv.RequestCount() == 1 }, time.Second, 5*time.Millisecond)

	type result struct {
		fav bool
		err error
	}
	resB := make(chan result, 1)
	go func() {
		fav, err := c.CheckStatus(context.Background(), target)
		resB <- result{fav, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancelA()
	select {
	case err := <-errA:
		assert.ErrorIs(t, err, context.Canceled)
		assert.ErrorIs(t, err, ErrNetwork)
	case <-time.After(time.Second):
		t.Fatal("cancelled caller kept waiting")
	}

	srv.Release(http.MethodGet)
	select {
	case res := <-resB:
		require.NoError(t, res.err)
		assert.True(t, res.fav)
	case <-time.After(2 * time.Second):
		t.Fatal("second caller never returned")
	}
	assert.Equal(t, 1, srv.RequestCount())
}

func TestClient_Add(t *testing.T) {
	t.Run("returns created record", func(t *testing.T) {
		srv := remotetest.New(testToken)
		defer srv.Close()
		srv.Seed(favorite.NewConcertRecord(6, 1))

		c := newTestClient(t, srv.URL, auth.Static(testToken))
		rec, err := c.Add(context.Background(), favorite.ArtistTarget(42))
		require.NoError(t, err)
		assert.Equal(t, int64(7), rec.FavoriteID)
		assert.Equal(t, favorite.ArtistTarget(42), rec.Target())
		assert.True(t, srv.Has(favorite.ArtistTarget(42)))
	})

	t.Run("conflict carries the server record", func(t *testing.T) {
		srv := remotetest.New(testToken)
		defer srv.Close()
		srv.Seed(favorite.NewArtistRecord(7, 42))

		c := newTestClient(t, srv.URL, auth.Static(testToken))
		rec, err := c.Add(context.Background(), favorite.ArtistTarget(42))
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, int64(7), rec.FavoriteID)
		assert.Equal(t, favorite.ArtistTarget(42), rec.Target())
	})

	t.Run("conflict without body yields placeholder", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusConflict)
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, auth.Static(testToken))
		rec, err := c.Add(context.Background(), favorite.ConcertTarget(9))
		assert.ErrorIs(t, err, ErrConflict)
		assert.Equal(t, int64(0), rec.FavoriteID)
		assert.Equal(t, favorite.ConcertTarget(9), rec.Target())
	})

	t.Run("fills missing ids from target", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"favoriteId":11}`))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, auth.Static(testToken))
		rec, err := c.Add(context.Background(), favorite.ConcertTarget(9))
		require.NoError(t, err)
		assert.Equal(t, favorite.NewConcertRecord(11, 9), rec)
	})

	t.Run("mismatched record is a server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`{"favoriteId":11,"artistId":5}`))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, auth.Static(testToken))
		_, err := c.Add(context.Background(), favorite.ArtistTarget(6))
		assert.ErrorIs(t, err, ErrServer)
	})

	t.Run("malformed body is a server error", func(t *testing.T) {
		server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusCreated)
			w.Write([]byte(`not json`))
		}))
		defer server.Close()

		c := newTestClient(t, server.URL, auth.Static(testToken))
		_, err := c.Add(context.Background(), favorite.ArtistTarget(6))
		assert.ErrorIs(t, err, ErrServer)
	})
}

func TestClient_Remove(t *testing.T) {
	srv := remotetest.New(testToken)
	defer srv.Close()
	srv.Seed(favorite.NewConcertRecord(3, 9))

	c := newTestClient(t, srv.URL, auth.Static(testToken))

	require.NoError(t, c.Remove(context.Background(), favorite.ConcertTarget(9)))
	assert.False(t, srv.Has(favorite.ConcertTarget(9)))

	err := c.Remove(context.Background(), favorite.ConcertTarget(9))
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "favorite not found")
	assert.Contains(t, err.Error(), "HTTP 404")
}

func TestClient_ListAll(t *testing.T) {
	t.Run("returns every record", func(t *testing.T) {
		srv := remotetest.New(testToken)
		defer srv.Close()
		srv.Seed(favorite.NewArtistRecord(1, 10), favorite.NewConcertRecord(2, 20))

		c := newTestClient(t, srv.URL+"/", auth.Static(testToken))
		records, err := c.ListAll(context.Background())
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, favorite.ArtistTarget(10), records[0].Target())
		assert.Equal(t, favorite.ConcertTarget(20), records[1].Target())
		assert.Equal(t, "/favorites", srv.Requests()[0].Path)
	})

	t.Run("empty list", func(t *testing.T) {
		srv := remotetest.New(testToken)
		defer srv.Close()

		c := newTestClient(t, srv.URL, auth.Static(testToken))
		records, err := c.ListAll(context.Background())
		require.NoError(t, err)
		assert.Empty(t, records)
	})
}

func TestClient_ErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		want   error
		kind   Kind
	}{
		{"unauthorized", http.StatusUnauthorized, ErrUnauthenticated, KindUnauthenticated},
		{"forbidden", http.StatusForbidden, ErrUnauthenticated, KindUnauthenticated},
		{"not found", http.StatusNotFound, ErrNotFound, KindNotFound},
		{"conflict", http.StatusConflict, ErrConflict, KindConflict},
		{"internal", http.StatusInternalServerError, ErrServer, KindServer},
		{"bad gateway", http.StatusBadGateway, ErrServer, KindServer},
		{"bad request", http.StatusBadRequest, ErrServer, KindServer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := remotetest.New(testToken)
			defer srv.Close()
			srv.Fail(http.MethodDelete, tt.status)

			c := newTestClient(t, srv.URL, auth.Static(testToken))
			err := c.Remove(context.Background(), favorite.ArtistTarget(1))
			require.Error(t, err)
			assert.ErrorIs(t, err, tt.want)

			kind, ok := KindOf(err)
			require.True(t, ok)
			assert.Equal(t, tt.kind, kind)
			assert.False(t, Retryable(err))

			var re *Error
			require.True(t, errors.As(err, &re))
			assert.Equal(t, tt.status, re.Status)
		})
	}
}

func TestClient_Unauthenticated(t *testing.T) {
	srv := remotetest.New(testToken)
	defer srv.Close()

	expired, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "user-1",
		"exp": time.Now().Add(-time.Hour).Unix(),
	}).SignedString([]byte("k"))
	require.NoError(t, err)

	sources := map[string]auth.TokenSource{
		"nil source":  nil,
		"empty token": auth.Static(""),
		"expired jwt": auth.Static(expired),
	}

	for name, src := range sources {
		t.Run(name, func(t *testing.T) {
			c := newTestClient(t, srv.URL, src)
			_, err := c.CheckStatus(context.Background(), favorite.ArtistTarget(1))
			assert.ErrorIs(t, err, ErrUnauthenticated)
			assert.ErrorIs(t, err, auth.ErrNoToken)
		})
	}

	assert.Equal(t, 0, srv.RequestCount())

	t.Run("wrong token is rejected by server", func(t *testing.T) {
		c := newTestClient(t, srv.URL, auth.Static("other"))
		_, err := c.ListAll(context.Background())
		assert.ErrorIs(t, err, ErrUnauthenticated)
		assert.Equal(t, 1, srv.RequestCount())
	})
}

func TestClient_Network(t *testing.T) {
	t.Run("timeout", func(t *testing.T) {
		srv := remotetest.New(testToken)
		defer srv.Close()
		srv.Hang(http.MethodPost)

		c := newTestClient(t, srv.URL, auth.Static(testToken), httpclient.WithTimeout(50*time.Millisecond))
		_, err := c.Add(context.Background(), favorite.ArtistTarget(1))
		assert.ErrorIs(t, err, ErrNetwork)
		assert.True(t, Retryable(err))
	})

	t.Run("connection refused", func(t *testing.T) {
		srv := remotetest.New(testToken)
		url := srv.URL
		srv.Close()

		c := newTestClient(t, url, auth.Static(testToken))
		err := c.Remove(context.Background(), favorite.ArtistTarget(1))
		assert.ErrorIs(t, err, ErrNetwork)
	})

	t.Run("context cancelled", func(t *testing.T) {
		srv := remotetest.New(testToken)
		defer srv.Close()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		c := newTestClient(t, srv.URL, auth.Static(testToken))
		_, err := c.ListAll(ctx)
		assert.ErrorIs(t, err, ErrNetwork)
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestError_Error(t *testing.T) {
	err := &Error{Kind: KindNotFound, Op: "remove favorite", Target: favorite.ConcertTarget(9), Status: 404, Message: "gone"}
	assert.Equal(t, "remove favorite concert/9: favorite target not found: gone (HTTP 404)", err.Error())

	assert.Equal(t, "unknown", Kind(0).String())
	_, ok := KindOf(errors.New("plain"))
	assert.False(t, ok)
}
