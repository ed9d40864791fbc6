package sakan

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestListingsAdminOnlyWrites(t *testing.T) {
	g := newFakeGateway()
	ctx := context.Background()

	listing := Listing{Name: "Sunny Flat", Price: 1500, Type: ListingFlat, Available: true}

	t.Run("guest", func(t *testing.T) {
		s := newListingsStore(g, nil, guestSession())
		if _, err := s.Add(ctx, listing); !errors.Is(err, ErrPermission) {
			t.Errorf("got %v, want ErrPermission", err)
		}
	})

	t.Run("regular user", func(t *testing.T) {
		s := newListingsStore(g, nil, userSession("u1"))
		if _, err := s.Add(ctx, listing); !errors.Is(err, ErrPermission) {
			t.Errorf("got %v, want ErrPermission", err)
		}
		if err := s.Remove(ctx, "l1"); !errors.Is(err, ErrPermission) {
			t.Errorf("Remove: got %v, want ErrPermission", err)
		}
	})

	t.Run("admin", func(t *testing.T) {
		s := newListingsStore(g, nil, adminSession("a1"))
		added, err := s.Add(ctx, listing)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		if isTempID(added.ID) {
			t.Errorf("server id not reconciled: %q", added.ID)
		}
		if added.CreatedBy != "a1" {
			t.Errorf("creator not stamped: %q", added.CreatedBy)
		}
	})
}

func TestListingsAddValidation(t *testing.T) {
	s := newListingsStore(newFakeGateway(), nil, adminSession("a1"))
	ctx := context.Background()

	if _, err := s.Add(ctx, Listing{Price: 100}); !errors.Is(err, ErrValidation) {
		t.Errorf("nameless listing: got %v, want ErrValidation", err)
	}
	if _, err := s.Add(ctx, Listing{Name: "X", Price: -5}); !errors.Is(err, ErrValidation) {
		t.Errorf("negative price: got %v, want ErrValidation", err)
	}
}

func TestListingsGetByIDFallsBackToGateway(t *testing.T) {
	g := newFakeGateway()
	g.seed(collectionListings, Row{"id": "l9", "name": "Hidden Gem"})
	s := newListingsStore(g, nil, userSession("u1"))
	ctx := context.Background()

	// Not in memory yet: resolved remotely and merged.
	l, err := s.GetByID(ctx, "l9")
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if l.Name != "Hidden Gem" {
		t.Errorf("got %+v", l)
	}

	reads := g.readCount()
	if _, err := s.GetByID(ctx, "l9"); err != nil {
		t.Fatal(err)
	}
	if g.readCount() != reads {
		t.Error("second lookup should be served from memory")
	}
}

func TestListingsGetByIDUnknown(t *testing.T) {
	s := newListingsStore(newFakeGateway(), nil, userSession("u1"))
	if _, err := s.GetByID(context.Background(), "nope"); !errors.Is(err, ErrNotFound) {
		t.Errorf("got %v, want ErrNotFound", err)
	}
}

func TestListingsDuplicate(t *testing.T) {
	g := newFakeGateway()
	g.seed(collectionListings, Row{
		"id": "l1", "name": "Garden View", "price": float64(2000), "rooms": float64(3),
	})
	s := newListingsStore(g, nil, adminSession("a1"))
	ctx := context.Background()

	if err := s.Refresh(ctx, true); err != nil {
		t.Fatal(err)
	}

	dup, err := s.Duplicate(ctx, "l1")
	if err != nil {
		t.Fatalf("Duplicate: %v", err)
	}
	if dup.Name != "Garden View (copy)" {
		t.Errorf("got name %q", dup.Name)
	}
	if dup.ID == "l1" || dup.ID == "" {
		t.Errorf("copy shares the original id: %q", dup.ID)
	}
	if dup.Price != 2000 || dup.Rooms != 3 {
		t.Errorf("copy lost fields: %+v", dup)
	}
	if got := len(s.Items()); got != 2 {
		t.Errorf("got %d listings, want 2", got)
	}
}

func TestListingsUpdateRequiresConfirmedID(t *testing.T) {
	s := newListingsStore(newFakeGateway(), nil, adminSession("a1"))
	err := s.Update(context.Background(), Listing{ID: newTempID(), Name: "X"})
	if !errors.Is(err, ErrValidation) {
		t.Errorf("got %v, want ErrValidation", err)
	}
}

func TestListingsRowDefaults(t *testing.T) {
	l := ListingFromRow(Row{"id": "l1"})
	if l.Name != "Unnamed listing" {
		t.Errorf("name default: %q", l.Name)
	}
	if l.Rooms != 1 || l.Beds != 1 || l.Bathrooms != 1 {
		t.Errorf("room defaults: %+v", l)
	}
	if !l.Available {
		t.Error("availability should default to true")
	}
	if l.SpecialType != SpecialTypeDefault {
		t.Errorf("special type default: %q", l.SpecialType)
	}
	if l.Amenities == nil || l.Images == nil {
		t.Error("sequences should default to empty, not nil")
	}
}

func TestListingPayloadOmitsServerFields(t *testing.T) {
	l := ListingFromRow(Row{"id": "l1", "name": "X", "created_at": "2026-01-01"})
	p := l.Payload()
	for _, key := range []string{"id", "created_at", "updated_at", "created_by"} {
		if _, ok := p[key]; ok {
			t.Errorf("payload leaks server-owned field %q", key)
		}
	}
	if !strings.Contains(p["name"].(string), "X") {
		t.Errorf("payload lost name: %+v", p)
	}
}
