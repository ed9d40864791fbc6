package sakan

import (
	"context"
	"sync"
)

const collectionFavorites = "favorites"

// FavoritesStore is the synchronized view of the current user's favorites.
//
// Toggling is optimistic and duplicate-safe: adding an already-favorited
// listing is a no-op, including when two adds for the same listing race.
type FavoritesStore struct {
	core    *syncCore[Favorite]
	session func() *Session

	mu      sync.Mutex
	sub     *Subscription
	pending map[string]struct{} // listing ids with an add in flight
}

func newFavoritesStore(gateway Gateway, cache CacheStore, session func() *Session) *FavoritesStore {
	s := &FavoritesStore{
		session: session,
		pending: map[string]struct{}{},
	}
	s.core = newSyncCore(gateway, cache, collectionFavorites, CacheKeyFavorites, FavoriteFromRow, s.query)
	return s
}

func (s *FavoritesStore) query() *Query {
	return Eq("user_id", s.session().UserID)
}

func (s *FavoritesStore) Items() []Favorite { return s.core.Items() }
func (s *FavoritesStore) IsLoading() bool   { return s.core.IsLoading() }

func (s *FavoritesStore) Refresh(ctx context.Context, force bool) error {
	if s.session().Role == RoleGuest {
		return nil
	}
	return s.core.Fetch(ctx, force)
}

// IsFavorited reports whether the current user has favorited the listing.
func (s *FavoritesStore) IsFavorited(listingID string) bool {
	_, ok := s.find(listingID)
	return ok
}

func (s *FavoritesStore) find(listingID string) (Favorite, bool) {
	for _, f := range s.core.Items() {
		if f.ListingID == listingID {
			return f, true
		}
	}
	return Favorite{}, false
}

// Add favorites a listing. Already-favorited listings (including ones whose
// add is still in flight) are a silent no-op.
func (s *FavoritesStore) Add(ctx context.Context, listingID string) error {
	sess := s.session()
	if !sess.CanWrite() {
		return permissionError("sign in to favorite listings")
	}
	if listingID == "" {
		return validationError("listing is required")
	}

	s.mu.Lock()
	if _, inFlight := s.pending[listingID]; inFlight {
		s.mu.Unlock()
		return nil
	}
	if _, exists := s.find(listingID); exists {
		s.mu.Unlock()
		return nil
	}
	s.pending[listingID] = struct{}{}
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, listingID)
		s.mu.Unlock()
	}()

	f := Favorite{
		ID:        newTempID(),
		ListingID: listingID,
		UserID:    sess.UserID,
	}
	_, err := s.core.optimisticAdd(ctx, f, Row{
		"listing_id": listingID,
		"user_id":    sess.UserID,
	})
	return err
}

// Remove unfavorites a listing. Removing something never favorited is a
// no-op.
func (s *FavoritesStore) Remove(ctx context.Context, listingID string) error {
	if !s.session().CanWrite() {
		return permissionError("sign in to favorite listings")
	}
	f, ok := s.find(listingID)
	if !ok {
		return nil
	}
	return s.core.optimisticRemove(ctx, f.ID)
}

// Toggle flips the favorite state of a listing.
func (s *FavoritesStore) Toggle(ctx context.Context, listingID string) error {
	if s.IsFavorited(listingID) {
		return s.Remove(ctx, listingID)
	}
	return s.Add(ctx, listingID)
}

func (s *FavoritesStore) subscribe(rt *RealtimeClient) error {
	sess := s.session()
	if sess.Role == RoleGuest {
		return nil
	}
	sub, err := rt.Subscribe(SubscribeOptions{
		Channel: collectionFavorites,
		Filter:  "user_id=eq." + sess.UserID,
	}, func(ev ChangeEvent) {
		s.core.ApplyEvent(ev)
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

func (s *FavoritesStore) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	s.core.Close()
}
