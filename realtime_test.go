package sakan

import (
	"encoding/json"
	"testing"
	"time"
)

func testRealtime() *RealtimeClient {
	cfg := &RealtimeConfig{}
	cfg.defaults()
	return newRealtimeClient("https://api.example.com", cfg)
}

func TestBackoffGrowsAndCaps(t *testing.T) {
	rc := testRealtime()

	var prev time.Duration
	for i := 0; i < 10; i++ {
		d := rc.backoff()
		if d < rc.config.ReconnectBase {
			t.Fatalf("attempt %d: delay %s below base", i, d)
		}
		// Cap plus the maximum jitter of a quarter.
		if max := rc.config.ReconnectMax + rc.config.ReconnectMax/4; d > max {
			t.Fatalf("attempt %d: delay %s above cap %s", i, d, max)
		}
		if i > 0 && i < 4 && d < prev {
			t.Fatalf("attempt %d: delay %s shrank before the cap (prev %s)", i, d, prev)
		}
		prev = d
	}
}

func TestBackoffResetsAfterStableConnection(t *testing.T) {
	rc := testRealtime()
	for i := 0; i < 6; i++ {
		rc.backoff()
	}
	rc.attempt = 0 // what run() does once a connection held for StableAfter
	if d := rc.backoff(); d >= 2*rc.config.ReconnectBase {
		t.Errorf("after reset, got %s, want near base %s", d, rc.config.ReconnectBase)
	}
}

func TestWebsocketURLDerivation(t *testing.T) {
	cases := []struct{ base, want string }{
		{"https://api.sakanhub.com", "wss://api.sakanhub.com/api/v1/realtime"},
		{"http://localhost:8080", "ws://localhost:8080/api/v1/realtime"},
	}
	cfg := &RealtimeConfig{}
	cfg.defaults()
	for _, tc := range cases {
		rc := newRealtimeClient(tc.base, cfg)
		if rc.wsURL != tc.want {
			t.Errorf("base %s: got %s, want %s", tc.base, rc.wsURL, tc.want)
		}
	}
}

func TestSubscribeValidation(t *testing.T) {
	rc := testRealtime()
	if _, err := rc.Subscribe(SubscribeOptions{}, func(ChangeEvent) {}); err == nil {
		t.Error("empty channel accepted")
	}
	if _, err := rc.Subscribe(SubscribeOptions{Channel: "listings"}, nil); err == nil {
		t.Error("nil handler accepted")
	}
}

func TestDispatchRoutesByChannel(t *testing.T) {
	rc := testRealtime()

	var listings, bookings []ChangeEvent
	subL, err := rc.Subscribe(SubscribeOptions{Channel: "listings"}, func(ev ChangeEvent) {
		listings = append(listings, ev)
	})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := rc.Subscribe(SubscribeOptions{Channel: "booking_requests"}, func(ev ChangeEvent) {
		bookings = append(bookings, ev)
	}); err != nil {
		t.Fatal(err)
	}

	event, _ := json.Marshal(ChangeEvent{Type: ChangeInsert, Collection: "listings", Record: Row{"id": "l1"}})
	rc.dispatch(realtimeFrame{Op: "event", Channel: "listings", Event: event})

	if len(listings) != 1 || len(bookings) != 0 {
		t.Fatalf("misrouted: listings=%d bookings=%d", len(listings), len(bookings))
	}
	if listings[0].Type != ChangeInsert || strOr(listings[0].Record, "id", "") != "l1" {
		t.Errorf("event payload lost: %+v", listings[0])
	}

	// A closed subscription stops receiving.
	subL.Close()
	rc.dispatch(realtimeFrame{Op: "event", Channel: "listings", Event: event})
	if len(listings) != 1 {
		t.Error("closed subscription still receives events")
	}

	// Closing twice is fine.
	subL.Close()
}

func TestConfigDefaults(t *testing.T) {
	cfg := &RealtimeConfig{}
	cfg.defaults()
	if cfg.HeartbeatInterval == 0 || cfg.ReconnectBase == 0 || cfg.ReconnectMax == 0 || cfg.StableAfter == 0 {
		t.Errorf("defaults not applied: %+v", cfg)
	}
	if cfg.ReconnectBase >= cfg.ReconnectMax {
		t.Error("base delay should be below the cap")
	}
}
