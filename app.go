package sakan

import (
	"context"

	"github.com/golang/glog"
)

// AppOptions tunes the composition root.
type AppOptions struct {
	// Realtime overrides the realtime connection settings.
	Realtime *RealtimeConfig
	// DisableRealtime runs without the change feed; data still loads and
	// mutates, it just only moves on refresh.
	DisableRealtime bool
}

// App wires the client, the cache, the realtime feed, the five collection
// stores and the activity monitor into one unit. It holds no data of its
// own: every read goes to a store.
type App struct {
	client   *Client
	cache    CacheStore
	realtime *RealtimeClient
	monitor  *ActivityMonitor
	opts     AppOptions

	Listings  *ListingsStore
	Bookings  *BookingsStore
	Favorites *FavoritesStore
	Chat      *ChatStore
	Settings  *SettingsStore
}

// NewApp builds the app around a client and a cache. Pass nil opts for
// defaults.
func NewApp(client *Client, cache CacheStore, opts *AppOptions) *App {
	a := &App{client: client, cache: cache}
	if opts != nil {
		a.opts = *opts
	}

	session := client.Session
	a.Listings = newListingsStore(client, cache, session)
	a.Bookings = newBookingsStore(client, cache, session)
	a.Favorites = newFavoritesStore(client, cache, session)
	a.Chat = newChatStore(client, cache, session)
	a.Settings = newSettingsStore(client, cache, session)

	// Idle refresh is a liveness safeguard, not forced: stores whose data is
	// still inside the freshness window skip the round trip.
	a.monitor = NewActivityMonitor(func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		if err := a.RefreshAll(ctx, false); err != nil {
			glog.Warningf("app: idle refresh: %v", err)
		}
	})
	return a
}

// Session returns the current caller's identity.
func (a *App) Session() *Session { return a.client.Session() }

// Start paints every store from its cache snapshot, loads fresh data, and
// brings up the realtime feed. Cached data is visible as soon as Start
// begins fetching, so a slow network never blocks the first paint.
func (a *App) Start(ctx context.Context) error {
	a.Listings.core.loadCache()
	a.Bookings.core.loadCache()
	a.Favorites.core.loadCache()
	a.Chat.core.loadCache()
	a.Settings.core.loadCache()

	if err := a.RefreshAll(ctx, false); err != nil {
		// Cached data keeps the app usable; the error still surfaces so
		// the caller can show a connectivity notice.
		glog.Warningf("app: initial load incomplete: %v", err)
	}

	if a.opts.DisableRealtime {
		return nil
	}

	a.realtime = a.client.Realtime(a.opts.Realtime)
	if err := a.realtime.Connect(ctx); err != nil {
		glog.Warningf("app: realtime unavailable, running poll-only: %v", err)
		a.realtime = nil
		return nil
	}

	if a.Session().IsAdmin() {
		if err := a.Listings.subscribe(a.realtime); err != nil {
			glog.Warningf("app: listings subscription: %v", err)
		}
	}
	for name, fn := range map[string]func(*RealtimeClient) error{
		"bookings":  a.Bookings.subscribe,
		"favorites": a.Favorites.subscribe,
		"chat":      a.Chat.subscribe,
		"settings":  a.Settings.subscribe,
	} {
		if err := fn(a.realtime); err != nil {
			glog.Warningf("app: %s subscription: %v", name, err)
		}
	}
	return nil
}

// RefreshAll fetches every store. The first error is returned after all
// stores have been attempted.
func (a *App) RefreshAll(ctx context.Context, force bool) error {
	var firstErr error
	for _, refresh := range []func(context.Context, bool) error{
		a.Listings.Refresh,
		a.Bookings.Refresh,
		a.Favorites.Refresh,
		a.Chat.Refresh,
		a.Settings.Refresh,
	} {
		if err := refresh(ctx, force); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// IsLoading reports whether any store has a fetch in flight.
func (a *App) IsLoading() bool {
	return a.Listings.IsLoading() ||
		a.Bookings.IsLoading() ||
		a.Favorites.IsLoading() ||
		a.Chat.IsLoading() ||
		a.Settings.IsLoading()
}

// RecordActivity marks the user as active; the host UI calls this on
// interaction events.
func (a *App) RecordActivity() { a.monitor.RecordActivity() }

// SetVisible records foreground/background transitions; returning from the
// background triggers a refresh.
func (a *App) SetVisible(visible bool) { a.monitor.SetVisible(visible) }

// ConnectionState reports the realtime feed state.
func (a *App) ConnectionState() ConnectionState {
	if a.realtime == nil {
		return StateDisconnected
	}
	return a.realtime.State()
}

// Close shuts everything down. Pending cache writes finish; timers stop.
func (a *App) Close() error {
	a.monitor.Close()
	a.Listings.Close()
	a.Bookings.Close()
	a.Favorites.Close()
	a.Chat.Close()
	a.Settings.Close()
	if a.realtime != nil {
		return a.realtime.Close()
	}
	return nil
}
