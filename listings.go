package sakan

import (
	"context"
	"sync"

	"github.com/golang/glog"
)

const collectionListings = "listings"

// ListingsStore is the synchronized view of the listings collection.
//
// Everyone can read; only admins can write. Live change events are only
// wired for admin sessions, so regular users see listing changes on their
// next refresh rather than instantly.
type ListingsStore struct {
	core    *syncCore[Listing]
	session func() *Session

	mu  sync.Mutex
	sub *Subscription
}

func newListingsStore(gateway Gateway, cache CacheStore, session func() *Session) *ListingsStore {
	return &ListingsStore{
		core:    newSyncCore(gateway, cache, collectionListings, CacheKeyListings, ListingFromRow, nil),
		session: session,
	}
}

func (s *ListingsStore) Items() []Listing { return s.core.Items() }
func (s *ListingsStore) IsLoading() bool  { return s.core.IsLoading() }
func (s *ListingsStore) Refresh(ctx context.Context, force bool) error {
	return s.core.Fetch(ctx, force)
}

// GetByID resolves a listing from local state first, then falls back to the
// gateway; a remote hit is merged into local state so the next lookup is
// local.
func (s *ListingsStore) GetByID(ctx context.Context, id string) (Listing, error) {
	if l, ok := s.core.Get(id); ok {
		return l, nil
	}
	rows, err := s.core.gateway.ReadCollection(ctx, collectionListings, Eq("id", id))
	if err != nil {
		return Listing{}, err
	}
	if len(rows) == 0 {
		return Listing{}, ErrNotFound
	}
	l := ListingFromRow(rows[0])
	s.core.upsert(l)
	return l, nil
}

func (s *ListingsStore) requireAdmin() error {
	sess := s.session()
	if !sess.CanWrite() {
		return permissionError("account cannot write")
	}
	if !sess.IsAdmin() {
		return permissionError("listings are admin-managed")
	}
	return nil
}

// Add creates a listing. The row appears locally at once under a provisional
// identifier and is reconciled with the server-assigned one on success.
func (s *ListingsStore) Add(ctx context.Context, l Listing) (Listing, error) {
	if err := s.requireAdmin(); err != nil {
		return Listing{}, err
	}
	if l.Name == "" {
		return Listing{}, validationError("listing name is required")
	}
	if l.Price < 0 {
		return Listing{}, validationError("price cannot be negative")
	}

	payload := l.Payload()
	payload["created_by"] = s.session().UserID

	l.ID = newTempID()
	l.CreatedBy = s.session().UserID
	return s.core.optimisticAdd(ctx, l, payload)
}

// Update replaces a listing. Rolled back locally if the gateway rejects it.
func (s *ListingsStore) Update(ctx context.Context, l Listing) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	if l.ID == "" || isTempID(l.ID) {
		return validationError("listing has no confirmed identifier")
	}
	return s.core.optimisticUpdate(ctx, l.ID, func(Listing) Listing { return l }, l.Payload())
}

// Remove deletes a listing.
func (s *ListingsStore) Remove(ctx context.Context, id string) error {
	if err := s.requireAdmin(); err != nil {
		return err
	}
	return s.core.optimisticRemove(ctx, id)
}

// Duplicate clones an existing listing under a new identifier with " (copy)"
// appended to its name.
func (s *ListingsStore) Duplicate(ctx context.Context, id string) (Listing, error) {
	if err := s.requireAdmin(); err != nil {
		return Listing{}, err
	}
	src, err := s.GetByID(ctx, id)
	if err != nil {
		return Listing{}, err
	}
	src.Name += " (copy)"
	return s.Add(ctx, src)
}

// subscribe wires live change events. Only called for admin sessions.
func (s *ListingsStore) subscribe(rt *RealtimeClient) error {
	sub, err := rt.Subscribe(SubscribeOptions{Channel: collectionListings}, func(ev ChangeEvent) {
		s.core.ApplyEvent(ev)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	glog.V(1).Info("listings: live updates enabled")
	return nil
}

func (s *ListingsStore) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	s.core.Close()
}
