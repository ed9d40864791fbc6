package sakan

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"github.com/oklog/ulid/v2"
)

// Entity is anything the sync layer can hold: a typed row with a stable
// identifier.
type Entity interface {
	EntityID() string
}

const (
	// freshFor is how long a successful fetch counts as fresh; non-forced
	// refetches inside the window are skipped.
	freshFor = 30 * time.Second
	// retryAfter is the single-retry delay after a transient fetch failure.
	retryAfter = 5 * time.Second

	tempIDPrefix = "temp-"
)

// newTempID mints a client-side identifier for an optimistic row. The prefix
// marks it as provisional until the server echoes the real identifier.
func newTempID() string {
	return tempIDPrefix + ulid.Make().String()
}

// isTempID reports whether id was minted client-side.
func isTempID(id string) bool {
	return strings.HasPrefix(id, tempIDPrefix)
}

// syncCore is the shared machinery behind every collection store: a mutexed
// local slice of typed rows, a cache snapshot, fetch bookkeeping, idempotent
// event merging, and optimistic mutation with rollback.
type syncCore[T Entity] struct {
	gateway    Gateway
	cache      CacheStore
	collection string
	cacheKey   string
	fromRow    func(Row) T
	// query builds the read filter for the current session; nil means read
	// the whole collection.
	query func() *Query

	retryDelay time.Duration

	mu        sync.Mutex
	items     []T
	loading   bool
	fetching  bool
	lastFetch time.Time
	closed    bool
}

func newSyncCore[T Entity](gateway Gateway, cache CacheStore, collection, cacheKey string, fromRow func(Row) T, query func() *Query) *syncCore[T] {
	return &syncCore[T]{
		gateway:    gateway,
		cache:      cache,
		collection: collection,
		cacheKey:   cacheKey,
		fromRow:    fromRow,
		query:      query,
		retryDelay: retryAfter,
	}
}

// loadCache paints the store from the last persisted snapshot. Called once
// at startup so the app has data before the first fetch completes.
func (s *syncCore[T]) loadCache() {
	if s.cache == nil {
		return
	}
	rows, err := s.cache.Load(s.cacheKey)
	if err != nil {
		glog.Warningf("%s: cache load failed: %v", s.collection, err)
		return
	}
	if len(rows) == 0 {
		return
	}
	items := make([]T, 0, len(rows))
	for _, r := range rows {
		items = append(items, s.fromRow(r))
	}
	s.mu.Lock()
	if len(s.items) == 0 {
		s.items = items
	}
	s.mu.Unlock()
	glog.V(1).Infof("%s: painted %d rows from cache", s.collection, len(items))
}

// persist writes the current items back to the cache snapshot.
func (s *syncCore[T]) persist(rows []Row) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Save(s.cacheKey, rows); err != nil {
		glog.Warningf("%s: cache save failed: %v", s.collection, err)
	}
}

// Fetch loads the collection from the gateway.
//
// Rules: a fetch already in flight makes this call a no-op; a non-forced
// fetch inside the freshness window is skipped; a transient failure is
// retried exactly once after a short delay; if both attempts fail the store
// keeps whatever it already holds (cache or previous fetch) and returns the
// error.
func (s *syncCore[T]) Fetch(ctx context.Context, force bool) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.fetching {
		s.mu.Unlock()
		return nil
	}
	if !force && !s.lastFetch.IsZero() && time.Since(s.lastFetch) < freshFor {
		s.mu.Unlock()
		return nil
	}
	s.fetching = true
	s.loading = true
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.fetching = false
		s.loading = false
		s.mu.Unlock()
	}()

	var q *Query
	if s.query != nil {
		q = s.query()
	}

	rows, err := s.gateway.ReadCollection(ctx, s.collection, q)
	if err != nil && IsTransient(err) {
		glog.Warningf("%s: fetch failed, retrying in %s: %v", s.collection, s.retryDelay, err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(s.retryDelay):
		}
		rows, err = s.gateway.ReadCollection(ctx, s.collection, q)
	}
	if err != nil {
		glog.Errorf("%s: fetch failed: %v", s.collection, err)
		return err
	}

	items := make([]T, 0, len(rows))
	for _, r := range rows {
		items = append(items, s.fromRow(r))
	}

	s.mu.Lock()
	s.items = items
	s.lastFetch = time.Now()
	s.mu.Unlock()

	s.persist(rows)
	glog.V(1).Infof("%s: fetched %d rows", s.collection, len(items))
	return nil
}

// Items returns a copy of the current rows.
func (s *syncCore[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// Get returns the row with the given identifier.
func (s *syncCore[T]) Get(id string) (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, item := range s.items {
		if item.EntityID() == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// IsLoading reports whether a fetch is in flight.
func (s *syncCore[T]) IsLoading() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.loading
}

// Close marks the store closed. Further fetches and mutations fail with
// ErrClosed; reads keep working on the last state.
func (s *syncCore[T]) Close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

// snapshot copies the current items for rollback.
func (s *syncCore[T]) snapshotLocked() []T {
	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}

// ApplyEvent merges one change event into local state idempotently: inserts
// and updates upsert by identifier, deletes remove if present. Replaying an
// already-applied event leaves state unchanged.
func (s *syncCore[T]) ApplyEvent(ev ChangeEvent) {
	switch ev.Type {
	case ChangeInsert, ChangeUpdate:
		item := s.fromRow(ev.Record)
		s.upsert(item)
	case ChangeDelete:
		id := strOr(ev.Record, "id", "")
		if id == "" && ev.Old != nil {
			id = strOr(ev.Old, "id", "")
		}
		if id != "" {
			s.remove(id)
		}
	}
}

func (s *syncCore[T]) upsert(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.items {
		if existing.EntityID() == item.EntityID() {
			s.items[i] = item
			return
		}
	}
	s.items = append(s.items, item)
}

func (s *syncCore[T]) remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.items {
		if existing.EntityID() == id {
			s.items = append(s.items[:i], s.items[i+1:]...)
			return
		}
	}
}

// replaceID swaps a provisional row for its server-confirmed form.
func (s *syncCore[T]) replaceID(tempID string, item T) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, existing := range s.items {
		if existing.EntityID() == tempID {
			s.items[i] = item
			return
		}
	}
	// The provisional row is gone (a subscription echo may have landed
	// first); make sure the confirmed row is present exactly once.
	for _, existing := range s.items {
		if existing.EntityID() == item.EntityID() {
			return
		}
	}
	s.items = append(s.items, item)
}

// optimisticAdd appends a provisional row, inserts it remotely, and swaps in
// the server-confirmed row. On failure the provisional row is rolled back
// and the error returned.
func (s *syncCore[T]) optimisticAdd(ctx context.Context, provisional T, payload Row) (T, error) {
	var zero T

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return zero, ErrClosed
	}
	prior := s.snapshotLocked()
	s.items = append(s.items, provisional)
	s.mu.Unlock()

	row, err := s.gateway.InsertRow(ctx, s.collection, payload)
	if err != nil {
		s.mu.Lock()
		s.items = prior
		s.mu.Unlock()
		glog.Warningf("%s: insert rolled back: %v", s.collection, err)
		return zero, err
	}

	confirmed := s.fromRow(row)
	s.replaceID(provisional.EntityID(), confirmed)
	return confirmed, nil
}

// optimisticUpdate rewrites a row locally, patches it remotely, and rolls
// the local change back on failure.
func (s *syncCore[T]) optimisticUpdate(ctx context.Context, id string, apply func(T) T, patch Row) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prior := s.snapshotLocked()
	found := false
	for i, existing := range s.items {
		if existing.EntityID() == id {
			s.items[i] = apply(existing)
			found = true
			break
		}
	}
	s.mu.Unlock()

	if !found {
		return ErrNotFound
	}

	if err := s.gateway.UpdateRow(ctx, s.collection, id, patch); err != nil {
		s.mu.Lock()
		s.items = prior
		s.mu.Unlock()
		glog.Warningf("%s: update %s rolled back: %v", s.collection, id, err)
		return err
	}
	return nil
}

// optimisticRemove drops a row locally, deletes it remotely, and restores it
// on failure.
func (s *syncCore[T]) optimisticRemove(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	prior := s.snapshotLocked()
	s.mu.Unlock()

	s.remove(id)

	if err := s.gateway.DeleteRow(ctx, s.collection, id); err != nil {
		s.mu.Lock()
		s.items = prior
		s.mu.Unlock()
		glog.Warningf("%s: delete %s rolled back: %v", s.collection, id, err)
		return err
	}
	return nil
}

// setItems replaces local state wholesale. Used by stores that re-scope their
// data (e.g. switching chat partners).
func (s *syncCore[T]) setItems(items []T) {
	s.mu.Lock()
	s.items = items
	s.mu.Unlock()
}

// resetFreshness forces the next non-forced fetch to hit the gateway.
func (s *syncCore[T]) resetFreshness() {
	s.mu.Lock()
	s.lastFetch = time.Time{}
	s.mu.Unlock()
}
