package sakan

import (
	"context"
	"os"
	"testing"
	"time"
)

// Integration tests run against a live gateway. Set SAKAN_TEST_TOKEN (and
// optionally SAKAN_TEST_URL) to enable them:
//
//	SAKAN_TEST_TOKEN=eyJ... go test -run Integration ./...
func integrationClient(t *testing.T) *Client {
	t.Helper()
	token := os.Getenv("SAKAN_TEST_TOKEN")
	if token == "" {
		t.Skip("SAKAN_TEST_TOKEN not set, skipping integration test")
	}
	opts := []ClientOption{WithTimeout(10 * time.Second)}
	if url := os.Getenv("SAKAN_TEST_URL"); url != "" {
		opts = append(opts, WithBaseURL(url))
	}
	return NewClient(token, opts...)
}

func TestIntegrationReadListings(t *testing.T) {
	c := integrationClient(t)

	rows, err := c.ReadCollection(context.Background(), "listings", &Query{Limit: 5})
	if err != nil {
		t.Fatalf("ReadCollection: %v", err)
	}
	for _, r := range rows {
		l := ListingFromRow(r)
		if l.ID == "" {
			t.Errorf("listing without id: %+v", r)
		}
	}
}

func TestIntegrationAppLifecycle(t *testing.T) {
	c := integrationClient(t)

	app := NewApp(c, NewMemoryCache(), nil)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer app.Close()

	if app.Session().UserID == "" {
		t.Error("token did not resolve to a user")
	}
	// Loading must settle; Start waits for the initial fetches.
	if app.IsLoading() {
		t.Error("stores still loading after Start")
	}
}
