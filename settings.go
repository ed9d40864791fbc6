package sakan

import (
	"context"
	"sync"
)

const collectionSettings = "settings"

// SettingsStore is the synchronized view of platform settings: a small
// key/value collection (contact numbers, announcement banners, feature
// toggles) everyone reads and only admins write.
//
// Writes are upserts keyed by setting name, so a key is created on its first
// write. Local state is updated only after the gateway accepts the write.
type SettingsStore struct {
	core    *syncCore[SettingEntry]
	gateway Gateway
	session func() *Session

	mu  sync.Mutex
	sub *Subscription
}

func newSettingsStore(gateway Gateway, cache CacheStore, session func() *Session) *SettingsStore {
	return &SettingsStore{
		core:    newSyncCore(gateway, cache, collectionSettings, CacheKeySettings, SettingFromRow, nil),
		gateway: gateway,
		session: session,
	}
}

func (s *SettingsStore) Items() []SettingEntry { return s.core.Items() }
func (s *SettingsStore) IsLoading() bool       { return s.core.IsLoading() }

func (s *SettingsStore) Refresh(ctx context.Context, force bool) error {
	return s.core.Fetch(ctx, force)
}

// Get returns the value for key, or fallback when the key has never been
// written.
func (s *SettingsStore) Get(key string, fallback any) any {
	if entry, ok := s.core.Get(key); ok && entry.Value != nil {
		return entry.Value
	}
	return fallback
}

// GetString is Get for string-valued settings.
func (s *SettingsStore) GetString(key, fallback string) string {
	if v, ok := s.Get(key, fallback).(string); ok {
		return v
	}
	return fallback
}

// Update writes one setting, creating it on first write.
func (s *SettingsStore) Update(ctx context.Context, key string, value any) error {
	if !s.session().IsAdmin() {
		return permissionError("settings are admin-managed")
	}
	if key == "" {
		return validationError("setting key is required")
	}

	payload := Row{"key": key, "value": value}
	var err error
	if up, ok := s.gateway.(interface {
		UpsertRow(ctx context.Context, name string, payload Row, conflictColumn string) error
	}); ok {
		err = up.UpsertRow(ctx, collectionSettings, payload, "key")
	} else if _, exists := s.core.Get(key); exists {
		err = s.gateway.UpdateRow(ctx, collectionSettings, key, payload)
	} else {
		_, err = s.gateway.InsertRow(ctx, collectionSettings, payload)
	}
	if err != nil {
		return err
	}

	entry, _ := s.core.Get(key)
	entry.Key = key
	entry.Value = value
	s.core.upsert(entry)
	return nil
}

func (s *SettingsStore) subscribe(rt *RealtimeClient) error {
	sub, err := rt.Subscribe(SubscribeOptions{Channel: collectionSettings}, func(ev ChangeEvent) {
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

func (s *SettingsStore) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	s.core.Close()
}
