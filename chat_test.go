package sakan

import (
	"context"
	"errors"
	"testing"
)

func TestChatChannelSymmetry(t *testing.T) {
	a := ChatChannel("u1", "admin9")
	b := ChatChannel("admin9", "u1")
	if a != b {
		t.Fatalf("channel name depends on argument order: %q vs %q", a, b)
	}
	if a != "chat-admin9-u1" {
		t.Errorf("got %q, want chat-admin9-u1", a)
	}
}

func TestChatResolvesPartnerToFirstAdmin(t *testing.T) {
	g := newFakeGateway()
	g.seed(collectionProfiles,
		Row{"id": "a1", "role": "admin", "full_name": "Support"},
		Row{"id": "a2", "role": "admin", "full_name": "Backup Support"},
	)
	s := newChatStore(g, nil, userSession("u1"))

	if err := s.Refresh(context.Background(), true); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if got := s.Partner(); got != "a1" {
		t.Errorf("got partner %q, want first admin a1", got)
	}
}

func TestChatNoAdminDisablesChat(t *testing.T) {
	g := newFakeGateway()
	s := newChatStore(g, nil, userSession("u1"))

	// The caller gets a distinguishable error, not a silently empty thread.
	if err := s.Refresh(context.Background(), true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("Refresh without admins: got %v, want ErrNotFound", err)
	}
	if s.Partner() != "" {
		t.Error("partner should stay unresolved")
	}
	if err := s.Send(context.Background(), "hello", ""); !errors.Is(err, ErrValidation) {
		t.Errorf("Send without partner: got %v, want ErrValidation", err)
	}

	// Once an admin appears, refresh recovers.
	g.seed(collectionProfiles, Row{"id": "a1", "role": "admin"})
	if err := s.Refresh(context.Background(), true); err != nil {
		t.Fatalf("Refresh after admin appeared: %v", err)
	}
	if s.Partner() != "a1" {
		t.Errorf("partner not resolved after recovery: %q", s.Partner())
	}
}

func TestChatSend(t *testing.T) {
	g := newFakeGateway()
	g.seed(collectionProfiles, Row{"id": "a1", "role": "admin"})
	s := newChatStore(g, nil, userSession("u1"))
	ctx := context.Background()

	if err := s.Refresh(ctx, true); err != nil {
		t.Fatal(err)
	}

	t.Run("empty message rejected", func(t *testing.T) {
		if err := s.Send(ctx, "", ""); !errors.Is(err, ErrValidation) {
			t.Errorf("got %v, want ErrValidation", err)
		}
		if g.inserts != 0 {
			t.Error("empty send reached the gateway")
		}
	})

	t.Run("image-only message allowed", func(t *testing.T) {
		if err := s.Send(ctx, "", "https://img.example/1.jpg"); err != nil {
			t.Errorf("Send: %v", err)
		}
	})

	t.Run("text lands with confirmed id", func(t *testing.T) {
		if err := s.Send(ctx, "is the room still free?", ""); err != nil {
			t.Fatalf("Send: %v", err)
		}
		msgs := s.Messages()
		last := msgs[len(msgs)-1]
		if last.Text != "is the room still free?" {
			t.Errorf("message text lost: %+v", last)
		}
		if isTempID(last.ID) || last.ID == "" {
			t.Errorf("message should carry the server id, got %q", last.ID)
		}
		if last.SenderID != "u1" || last.ReceiverID != "a1" {
			t.Errorf("message misaddressed: %+v", last)
		}
	})

	t.Run("guest rejected", func(t *testing.T) {
		guest := newChatStore(g, nil, guestSession())
		if err := guest.Send(ctx, "hi", ""); !errors.Is(err, ErrPermission) {
			t.Errorf("got %v, want ErrPermission", err)
		}
	})
}

func TestChatEchoIsIdempotent(t *testing.T) {
	g := newFakeGateway()
	g.seed(collectionProfiles, Row{"id": "a1", "role": "admin"})
	s := newChatStore(g, nil, userSession("u1"))
	ctx := context.Background()

	if err := s.Refresh(ctx, true); err != nil {
		t.Fatal(err)
	}
	if err := s.Send(ctx, "hello", ""); err != nil {
		t.Fatal(err)
	}
	sent := s.Messages()[0]

	// The subscription echo for the message we just sent must not
	// duplicate it.
	s.handleEvent(ChangeEvent{Type: ChangeInsert, Record: Row{
		"id": sent.ID, "sender_id": "u1", "receiver_id": "a1", "message_text": "hello",
	}})
	if got := len(s.Messages()); got != 1 {
		t.Errorf("echo duplicated the message: %d messages", got)
	}
}

func TestChatNotificationOnlyForIncoming(t *testing.T) {
	g := newFakeGateway()
	s := newChatStore(g, nil, userSession("u1"))

	var notified []ChatMessage
	s.OnNotification(func(m ChatMessage) { notified = append(notified, m) })

	// Addressed to us: notify.
	s.handleEvent(ChangeEvent{Type: ChangeInsert, Record: Row{
		"id": "m1", "sender_id": "a1", "receiver_id": "u1", "message_text": "welcome",
	}})
	// Our own echo: no notification.
	s.handleEvent(ChangeEvent{Type: ChangeInsert, Record: Row{
		"id": "m2", "sender_id": "u1", "receiver_id": "a1", "message_text": "thanks",
	}})
	// An update is not a new message.
	s.handleEvent(ChangeEvent{Type: ChangeUpdate, Record: Row{
		"id": "m1", "sender_id": "a1", "receiver_id": "u1", "message_text": "welcome!",
	}})

	if len(notified) != 1 {
		t.Fatalf("got %d notifications, want 1", len(notified))
	}
	if notified[0].ID != "m1" {
		t.Errorf("notified about the wrong message: %+v", notified[0])
	}
	if got := len(s.Messages()); got != 2 {
		t.Errorf("events not merged: %d messages", got)
	}
}

func TestChatSetActivePartner(t *testing.T) {
	g := newFakeGateway()
	g.seed(collectionMessages, Row{"id": "m1", "sender_id": "u1", "receiver_id": "a1", "message_text": "old thread"})
	s := newChatStore(g, nil, adminSession("a1"))
	ctx := context.Background()

	t.Run("non-admin rejected", func(t *testing.T) {
		user := newChatStore(g, nil, userSession("u1"))
		if err := user.SetActivePartner(ctx, "u2"); !errors.Is(err, ErrPermission) {
			t.Errorf("got %v, want ErrPermission", err)
		}
	})

	t.Run("switch swaps thread", func(t *testing.T) {
		if err := s.SetActivePartner(ctx, "u1"); err != nil {
			t.Fatalf("SetActivePartner: %v", err)
		}
		if s.Partner() != "u1" {
			t.Errorf("partner not switched: %q", s.Partner())
		}
		if got := len(s.Messages()); got != 1 {
			t.Errorf("thread not refetched: %d messages", got)
		}
	})

	t.Run("empty partner rejected", func(t *testing.T) {
		if err := s.SetActivePartner(ctx, ""); !errors.Is(err, ErrValidation) {
			t.Errorf("got %v, want ErrValidation", err)
		}
	})
}

func TestChatConversations(t *testing.T) {
	g := newFakeGateway()
	g.seed(collectionMessages,
		Row{"id": "m3", "sender_id": "u2", "receiver_id": "a1", "message_text": "newest", "created_at": "2026-03-03"},
		Row{"id": "m2", "sender_id": "a1", "receiver_id": "u1", "message_text": "reply", "created_at": "2026-03-02"},
		Row{"id": "m1", "sender_id": "u1", "receiver_id": "a1", "message_text": "oldest", "created_at": "2026-03-01"},
	)
	g.seed(collectionProfiles,
		Row{"id": "u1", "role": "user", "full_name": "Omar"},
		Row{"id": "u2", "role": "user", "full_name": "Nour"},
	)

	t.Run("non-admin rejected", func(t *testing.T) {
		s := newChatStore(g, nil, userSession("u1"))
		if _, err := s.Conversations(context.Background()); !errors.Is(err, ErrPermission) {
			t.Errorf("got %v, want ErrPermission", err)
		}
	})

	t.Run("deduplicated, most recent first", func(t *testing.T) {
		s := newChatStore(g, nil, adminSession("a1"))
		profiles, err := s.Conversations(context.Background())
		if err != nil {
			t.Fatalf("Conversations: %v", err)
		}
		if len(profiles) != 2 {
			t.Fatalf("got %d conversations, want 2", len(profiles))
		}
		if profiles[0].ID != "u2" || profiles[1].ID != "u1" {
			t.Errorf("wrong order: %q then %q", profiles[0].ID, profiles[1].ID)
		}
		if profiles[0].FullName != "Nour" {
			t.Errorf("profile not joined: %+v", profiles[0])
		}
	})
}
