// Package remotetest provides an in-memory favorites API for tests.
package remotetest

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/setlistfan/favsync/internal/favorite"
)

// Server wraps httptest.Server with a fake favorites backend.
type Server struct {
	*httptest.Server

	Token string

	mu        sync.Mutex
	favorites map[favorite.Target]favorite.Record
	order     []favorite.Target
	nextID    int64
	requests  []*RecordedRequest
	faults    map[string]int
	hang      map[string]chan struct{}
}

// RecordedRequest stores request details for verification.
type RecordedRequest struct {
	Method  string
	Path    string
	Headers http.Header
	Time    time.Time
}

// New starts a server that accepts the given bearer token.
func New(token string) *Server {
	s := &Server{
		Token:     token,
		favorites: make(map[favorite.Target]favorite.Record),
		nextID:    1,
		faults:    make(map[string]int),
		hang:      make(map[string]chan struct{}),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /favorites", s.wrap(s.handleList))
	mux.HandleFunc("GET /favorites/{type}/{id}/check", s.wrap(s.handleCheck))
	mux.HandleFunc("POST /favorites/{type}/{id}", s.wrap(s.handleAdd))
	mux.HandleFunc("DELETE /favorites/{type}/{id}", s.wrap(s.handleRemove))

	s.Server = httptest.NewServer(mux)
	return s
}

// Close releases hung handlers and shuts the server down.
func (s *Server) Close() {
	s.mu.Lock()
	for method, ch := range s.hang {
		close(ch)
		delete(s.hang, method)
	}
	s.mu.Unlock()
	s.Server.Close()
}

// Seed stores records as if they had been added earlier.
func (s *Server) Seed(records ...favorite.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range records {
		t := rec.Target()
		if _, ok := s.favorites[t]; !ok {
			s.order = append(s.order, t)
		}
		s.favorites[t] = rec
		if rec.FavoriteID >= s.nextID {
			s.nextID = rec.FavoriteID + 1
		}
	}
}

// Has reports whether the backend holds a favorite for t.
func (s *Server) Has(t favorite.Target) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.favorites[t]
	return ok
}

// Fail makes every request with method answer status. Status 0 clears it.
func (s *Server) Fail(method string, status int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if status == 0 {
		delete(s.faults, method)
		return
	}
	s.faults[method] = status
}

// Hang makes requests with method block until Release or the client gives up.
func (s *Server) Hang(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.hang[method]; !ok {
		s.hang[method] = make(chan struct{})
	}
}

// Release unblocks requests held by Hang.
func (s *Server) Release(method string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.hang[method]; ok {
		close(ch)
		delete(s.hang, method)
	}
}

// Requests returns all recorded requests.
func (s *Server) Requests() []*RecordedRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make([]*RecordedRequest, len(s.requests))
	copy(result, s.requests)
	return result
}

// RequestCount returns the number of recorded requests.
func (s *Server) RequestCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.requests)
}

// wrap records the request, enforces auth and applies injected faults.
func (s *Server) wrap(h http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		s.requests = append(s.requests, &RecordedRequest{
			Method:  r.Method,
			Path:    r.URL.Path,
			Headers: r.Header.Clone(),
			Time:    time.Now(),
		})
		status := s.faults[r.Method]
		hang := s.hang[r.Method]
		s.mu.Unlock()

		if hang != nil {
			select {
			case <-hang:
			case <-r.Context().Done():
				return
			}
		}

		if r.Header.Get("Authorization") != "Bearer "+s.Token {
			writeJSON(w, http.StatusUnauthorized, map[string]string{"message": "Authorization required"})
			return
		}
		if status != 0 {
			writeJSON(w, status, map[string]string{"message": http.StatusText(status)})
			return
		}
		h(w, r)
	}
}

func (s *Server) handleList(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	records := make([]favorite.Record, 0, len(s.order))
	for _, t := range s.order {
		records = append(records, s.favorites[t])
	}
	s.mu.Unlock()

	writeJSON(w, http.StatusOK, records)
}

func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	t, ok := parseTarget(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"favorite": s.Has(t)})
}

func (s *Server) handleAdd(w http.ResponseWriter, r *http.Request) {
	t, ok := parseTarget(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	if existing, ok := s.favorites[t]; ok {
		s.mu.Unlock()
		writeJSON(w, http.StatusConflict, existing)
		return
	}
	rec := favorite.NewRecord(t, s.nextID)
	rec.CreatedAt = time.Now().UTC().Truncate(time.Second)
	s.nextID++
	s.favorites[t] = rec
	s.order = append(s.order, t)
	s.mu.Unlock()

	writeJSON(w, http.StatusCreated, rec)
}

func (s *Server) handleRemove(w http.ResponseWriter, r *http.Request) {
	t, ok := parseTarget(w, r)
	if !ok {
		return
	}

	s.mu.Lock()
	_, exists := s.favorites[t]
	if exists {
		delete(s.favorites, t)
		kept := s.order[:0]
		for _, o := range s.order {
			if o != t {
				kept = append(kept, o)
			}
		}
		s.order = kept
	}
	s.mu.Unlock()

	if !exists {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "favorite not found"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"message": "favorite removed"})
}

func parseTarget(w http.ResponseWriter, r *http.Request) (favorite.Target, bool) {
	typ := strings.ToLower(r.PathValue("type"))
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if (typ != "artist" && typ != "concert") || err != nil {
		writeJSON(w, http.StatusNotFound, map[string]string{"message": "unknown entity"})
		return favorite.Target{}, false
	}
	return favorite.Target{Type: favorite.EntityType(typ), ID: id}, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
