package favorite

import (
	"sync"

	"github.com/rs/zerolog"
	"github.com/samber/lo"
)

// Listener receives the new contents of one sub-collection after a mutation.
type Listener func(records []Record)

// ChangeKind describes an effective store mutation.
type ChangeKind int

const (
	ChangeReplaced ChangeKind = iota
	ChangeAdded
	ChangeRemoved
	ChangeCleared
)

// String returns the string representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeReplaced:
		return "replaced"
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeCleared:
		return "cleared"
	default:
		return "unknown"
	}
}

// Change is emitted to observers for every mutation that changed the store.
// Records holds the full collection for ChangeReplaced, the inserted record
// for ChangeAdded and the dropped records for ChangeRemoved.
type Change struct {
	Kind    ChangeKind
	Records []Record
}

type subscription struct {
	id int
	fn Listener
}

// Store is the in-memory Favorite Store.
//
// Mutations are applied one at a time under a single lock. Listeners and
// observers run after the lock is released, in mutation order; a listener may
// read or mutate the store, its own mutation is delivered after the current
// batch.
type Store struct {
	mu       sync.RWMutex
	artists  []Record
	concerts []Record

	nextID    int
	subs      map[EntityType][]subscription
	observers map[int]func(Change)
	obsOrder  []int
	pending   []func()
	draining  bool

	logger zerolog.Logger
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithLogger sets the store logger.
func WithLogger(l zerolog.Logger) StoreOption {
	return func(s *Store) {
		s.logger = l
	}
}

// NewStore creates an empty store.
func NewStore(opts ...StoreOption) *Store {
	s := &Store{
		subs:      make(map[EntityType][]subscription),
		observers: make(map[int]func(Change)),
		logger:    zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SetAll replaces the whole collection with records from a full list fetch.
// Duplicate targets are not checked; records that reference neither or both
// entity kinds cannot be partitioned and are skipped.
func (s *Store) SetAll(records []Record) {
	artists := make([]Record, 0, len(records))
	concerts := make([]Record, 0, len(records))
	for _, r := range records {
		switch r.Type() {
		case EntityArtist:
			artists = append(artists, r.Clone())
		case EntityConcert:
			concerts = append(concerts, r.Clone())
		default:
			s.logger.Warn().Int64("favorite_id", r.FavoriteID).Msg("skipping malformed favorite record")
		}
	}

	s.mu.Lock()
	s.artists = artists
	s.concerts = concerts
	s.enqueue([]EntityType{EntityArtist, EntityConcert}, Change{
		Kind:    ChangeReplaced,
		Records: append(cloneAll(artists), cloneAll(concerts)...),
	})
	s.mu.Unlock()

	s.drain()
}

// AddOne inserts rec unless its sub-collection already holds a record for the
// same target. It returns whether an insertion happened.
func (s *Store) AddOne(rec Record) bool {
	typ := rec.Type()
	if typ == "" {
		s.logger.Warn().Int64("favorite_id", rec.FavoriteID).Msg("rejecting malformed favorite record")
		return false
	}
	target := rec.Target()

	s.mu.Lock()
	list := s.list(typ)
	if lo.ContainsBy(*list, func(r Record) bool { return r.Target() == target }) {
		s.mu.Unlock()
		return false
	}
	*list = append(*list, rec.Clone())
	s.enqueue([]EntityType{typ}, Change{Kind: ChangeAdded, Records: []Record{rec.Clone()}})
	s.mu.Unlock()

	s.drain()
	return true
}

// RemoveOne removes any record whose artist or concert id matches criteria.
// It returns whether anything was removed.
func (s *Store) RemoveOne(criteria RemoveCriteria) bool {
	s.mu.Lock()
	var removed []Record
	var affected []EntityType
	if criteria.ArtistID != nil {
		if out := s.removeWhere(EntityArtist, *criteria.ArtistID); len(out) > 0 {
			removed = append(removed, out...)
			affected = append(affected, EntityArtist)
		}
	}
	if criteria.ConcertID != nil {
		if out := s.removeWhere(EntityConcert, *criteria.ConcertID); len(out) > 0 {
			removed = append(removed, out...)
			affected = append(affected, EntityConcert)
		}
	}
	if len(removed) == 0 {
		s.mu.Unlock()
		return false
	}
	s.enqueue(affected, Change{Kind: ChangeRemoved, Records: removed})
	s.mu.Unlock()

	s.drain()
	return true
}

// RemoveTarget removes the record favoriting t, if any.
func (s *Store) RemoveTarget(t Target) bool {
	return s.RemoveOne(CriteriaFor(t))
}

// Clear empties the store on logout or session invalidation.
func (s *Store) Clear() {
	s.mu.Lock()
	if len(s.artists) == 0 && len(s.concerts) == 0 {
		s.mu.Unlock()
		return
	}
	s.artists = nil
	s.concerts = nil
	s.enqueue([]EntityType{EntityArtist, EntityConcert}, Change{Kind: ChangeCleared})
	s.mu.Unlock()

	s.drain()
}

// Artists returns a copy of the artist favorites.
func (s *Store) Artists() []Record {
	return s.List(EntityArtist)
}

// Concerts returns a copy of the concert favorites.
func (s *Store) Concerts() []Record {
	return s.List(EntityConcert)
}

// List returns a copy of one sub-collection.
func (s *Store) List(t EntityType) []Record {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !t.Valid() {
		return nil
	}
	return cloneAll(*s.list(t))
}

// Snapshot returns a copy of both sub-collections.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{Artists: cloneAll(s.artists), Concerts: cloneAll(s.concerts)}
}

// Get returns the record favoriting t.
func (s *Store) Get(t Target) (Record, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !t.Type.Valid() {
		return Record{}, false
	}
	rec, ok := lo.Find(*s.list(t.Type), func(r Record) bool { return r.Target() == t })
	if !ok {
		return Record{}, false
	}
	return rec.Clone(), true
}

// Contains reports whether t is favorited.
func (s *Store) Contains(t Target) bool {
	_, ok := s.Get(t)
	return ok
}

// Len returns the total number of favorites.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.artists) + len(s.concerts)
}

// Subscribe registers fn for mutations of one sub-collection only.
func (s *Store) Subscribe(t EntityType, fn Listener) (unsubscribe func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.subs[t] = append(s.subs[t], subscription{id: id, fn: fn})

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.subs[t] = lo.Filter(s.subs[t], func(sub subscription, _ int) bool { return sub.id != id })
	}
}

// Observe registers fn for every effective mutation of the store.
func (s *Store) Observe(fn func(Change)) (cancel func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	id := s.nextID
	s.observers[id] = fn
	s.obsOrder = append(s.obsOrder, id)

	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.observers, id)
		s.obsOrder = lo.Without(s.obsOrder, id)
	}
}

// list returns the backing slice for t. Must be called with mu held.
func (s *Store) list(t EntityType) *[]Record {
	if t == EntityConcert {
		return &s.concerts
	}
	return &s.artists
}

// removeWhere drops records of type t targeting id. Must be called with mu held.
func (s *Store) removeWhere(t EntityType, id int64) []Record {
	list := s.list(t)
	target := Target{Type: t, ID: id}
	var removed []Record
	*list = lo.Filter(*list, func(r Record, _ int) bool {
		if r.Target() == target {
			removed = append(removed, r)
			return false
		}
		return true
	})
	return removed
}

// enqueue snapshots the affected sub-collections and queues the callbacks to
// run. Must be called with mu held.
func (s *Store) enqueue(affected []EntityType, change Change) {
	for _, t := range affected {
		records := cloneAll(*s.list(t))
		for _, sub := range s.subs[t] {
			fn := sub.fn
			s.pending = append(s.pending, func() { fn(cloneAll(records)) })
		}
	}
	for _, id := range s.obsOrder {
		fn := s.observers[id]
		s.pending = append(s.pending, func() { fn(change) })
	}
}

// drain runs queued callbacks outside the lock. Only one goroutine drains at
// a time; others leave their batch to it. A panicking callback releases the
// drain so later mutations still notify.
func (s *Store) drain() {
	s.mu.Lock()
	if s.draining {
		s.mu.Unlock()
		return
	}
	s.draining = true

	finished := false
	defer func() {
		if !finished {
			s.mu.Lock()
			s.draining = false
			s.mu.Unlock()
		}
	}()

	for len(s.pending) > 0 {
		batch := s.pending
		s.pending = nil
		s.mu.Unlock()
		for _, call := range batch {
			call()
		}
		s.mu.Lock()
	}
	s.draining = false
	finished = true
	s.mu.Unlock()
}

func cloneAll(records []Record) []Record {
	if records == nil {
		return []Record{}
	}
	return lo.Map(records, func(r Record, _ int) Record { return r.Clone() })
}
