package sakan

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/golang/glog"
)

const (
	collectionMessages = "messages"
	collectionProfiles = "profiles"
)

// NotificationHandler is called for messages addressed to the current user.
// Echoes of the user's own messages never trigger it.
type NotificationHandler func(ChatMessage)

// ChatStore is the synchronized view of one two-party message thread.
//
// Regular users always talk to support: their partner is resolved to the
// first admin profile. Admins pick their partner explicitly with
// SetActivePartner, which swaps the thread and its live channel.
//
// Sending is not optimistic: a message enters local state only once the
// gateway has accepted it, so the thread never shows a message that might
// vanish.
type ChatStore struct {
	core     *syncCore[ChatMessage]
	gateway  Gateway
	realtime *RealtimeClient
	session  func() *Session

	mu       sync.Mutex
	partner  string
	sub      *Subscription
	onNotify NotificationHandler
}

func newChatStore(gateway Gateway, cache CacheStore, session func() *Session) *ChatStore {
	s := &ChatStore{gateway: gateway, session: session}
	s.core = newSyncCore(gateway, cache, collectionMessages, CacheKeyMessages, MessageFromRow, s.query)
	return s
}

func (s *ChatStore) query() *Query {
	s.mu.Lock()
	partner := s.partner
	s.mu.Unlock()
	if partner == "" {
		return nil
	}
	return &Query{
		Pair: &PairFilter{
			SenderColumn:   "sender_id",
			ReceiverColumn: "receiver_id",
			A:              s.session().UserID,
			B:              partner,
		},
		OrderBy: "created_at",
	}
}

// Messages returns the thread in chronological order.
func (s *ChatStore) Messages() []ChatMessage {
	msgs := s.core.Items()
	// Timestamps are RFC 3339, so lexical order is chronological.
	sort.SliceStable(msgs, func(i, j int) bool {
		return msgs[i].CreatedAt < msgs[j].CreatedAt
	})
	return msgs
}

func (s *ChatStore) IsLoading() bool { return s.core.IsLoading() }

// Partner returns the active conversation partner's user id, or "" when none
// is resolved yet.
func (s *ChatStore) Partner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.partner
}

// OnNotification registers the handler for incoming messages addressed to
// the current user.
func (s *ChatStore) OnNotification(h NotificationHandler) {
	s.mu.Lock()
	s.onNotify = h
	s.mu.Unlock()
}

// resolvePartner finds who the user talks to. Regular users get the first
// admin profile; admins start with no partner until SetActivePartner.
func (s *ChatStore) resolvePartner(ctx context.Context) error {
	sess := s.session()
	if sess.Role == RoleGuest {
		return nil
	}
	if sess.IsAdmin() {
		return nil
	}
	rows, err := s.gateway.ReadCollection(ctx, collectionProfiles, Eq("role", string(RoleAdmin)))
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		glog.Warning("chat: no admin profile found, chat disabled")
		return fmt.Errorf("%w: no support contact available", ErrNotFound)
	}
	s.mu.Lock()
	s.partner = strOr(rows[0], "id", "")
	s.mu.Unlock()
	return nil
}

// SetActivePartner switches the thread to another user. Admin only. Local
// messages are cleared, the thread refetched, and the live channel moved to
// the new pair.
func (s *ChatStore) SetActivePartner(ctx context.Context, userID string) error {
	if !s.session().IsAdmin() {
		return permissionError("only admins switch conversations")
	}
	if userID == "" {
		return validationError("partner is required")
	}

	s.mu.Lock()
	s.partner = userID
	oldSub := s.sub
	s.sub = nil
	s.mu.Unlock()

	if oldSub != nil {
		oldSub.Close()
	}
	s.core.setItems(nil)
	s.core.resetFreshness()

	if err := s.core.Fetch(ctx, true); err != nil {
		return err
	}
	if s.realtime != nil {
		return s.subscribePair()
	}
	return nil
}

// Refresh loads the active thread. Resolves the partner first if needed.
func (s *ChatStore) Refresh(ctx context.Context, force bool) error {
	sess := s.session()
	if sess.Role == RoleGuest {
		return nil
	}
	if s.Partner() == "" {
		if err := s.resolvePartner(ctx); err != nil {
			return err
		}
		if s.Partner() == "" {
			return nil
		}
	}
	return s.core.Fetch(ctx, force)
}

// Send delivers a message to the active partner. Text is required unless an
// image is attached.
func (s *ChatStore) Send(ctx context.Context, text, imageURL string) error {
	sess := s.session()
	if !sess.CanWrite() {
		return permissionError("sign in to send messages")
	}
	partner := s.Partner()
	if partner == "" {
		return validationError("no conversation partner")
	}
	if text == "" && imageURL == "" {
		return validationError("message is empty")
	}

	row, err := s.gateway.InsertRow(ctx, collectionMessages, Row{
		"sender_id":    sess.UserID,
		"receiver_id":  partner,
		"message_text": text,
		"image_url":    imageURL,
	})
	if err != nil {
		return err
	}
	// Merge the confirmed row now; the subscription echo for it is then a
	// no-op.
	s.core.upsert(MessageFromRow(row))
	return nil
}

// subscribe wires the live channel once the partner is known.
func (s *ChatStore) subscribe(rt *RealtimeClient) error {
	s.realtime = rt
	if s.Partner() == "" {
		return nil
	}
	return s.subscribePair()
}

func (s *ChatStore) subscribePair() error {
	channel := ChatChannel(s.session().UserID, s.Partner())
	sub, err := s.realtime.Subscribe(SubscribeOptions{Channel: channel}, s.handleEvent)
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

func (s *ChatStore) handleEvent(ev ChangeEvent) {
	s.core.ApplyEvent(ev)
	if ev.Type != ChangeInsert {
		return
	}
	msg := MessageFromRow(ev.Record)
	if msg.ReceiverID != s.session().UserID {
		return
	}
	s.mu.Lock()
	notify := s.onNotify
	s.mu.Unlock()
	if notify != nil {
		notify(msg)
	}
}

// Conversations lists the profiles of everyone the current admin has a
// thread with, most recent thread first.
func (s *ChatStore) Conversations(ctx context.Context) ([]UserProfile, error) {
	sess := s.session()
	if !sess.IsAdmin() {
		return nil, permissionError("only admins list conversations")
	}

	rows, err := s.gateway.ReadCollection(ctx, collectionMessages, &Query{
		Any: []Filter{
			{Column: "sender_id", Value: sess.UserID},
			{Column: "receiver_id", Value: sess.UserID},
		},
		OrderBy:    "created_at",
		Descending: true,
	})
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	order := []string{}
	for _, r := range rows {
		m := MessageFromRow(r)
		other := m.SenderID
		if other == sess.UserID {
			other = m.ReceiverID
		}
		if other == "" || seen[other] {
			continue
		}
		seen[other] = true
		order = append(order, other)
	}
	if len(order) == 0 {
		return nil, nil
	}

	profileRows, err := s.gateway.ReadCollection(ctx, collectionProfiles, nil)
	if err != nil {
		return nil, err
	}
	byID := map[string]UserProfile{}
	for _, r := range profileRows {
		p := ProfileFromRow(r)
		byID[p.ID] = p
	}

	out := make([]UserProfile, 0, len(order))
	for _, id := range order {
		if p, ok := byID[id]; ok {
			out = append(out, p)
		} else {
			out = append(out, UserProfile{ID: id})
		}
	}
	return out, nil
}

func (s *ChatStore) Close() {
	s.mu.Lock()
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	s.core.Close()
}
