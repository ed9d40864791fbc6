package sakan

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestWebhookVerify(t *testing.T) {
	v := NewWebhookVerifier("whsec_test_secret")
	body := []byte(`{"type":"insert","collection":"listings","record":{"id":"l1"}}`)

	t.Run("valid signature", func(t *testing.T) {
		if !v.Verify(body, v.Sign(body)) {
			t.Error("valid signature rejected")
		}
	})

	t.Run("wrong signature", func(t *testing.T) {
		if v.Verify(body, "deadbeef") {
			t.Error("bogus signature accepted")
		}
	})

	t.Run("tampered body", func(t *testing.T) {
		sig := v.Sign(body)
		tampered := []byte(`{"type":"insert","collection":"listings","record":{"id":"l2"}}`)
		if v.Verify(tampered, sig) {
			t.Error("signature accepted for a different body")
		}
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewWebhookVerifier("whsec_other")
		if v.Verify(body, other.Sign(body)) {
			t.Error("signature from another secret accepted")
		}
	})
}

func TestWebhookParse(t *testing.T) {
	v := NewWebhookVerifier("whsec_test_secret")

	event := DatabaseEvent{
		Type:       ChangeUpdate,
		Collection: "booking_requests",
		Record:     Row{"id": "b1", "status": "approved"},
		Old:        Row{"id": "b1", "status": "pending"},
		Timestamp:  1756300000,
	}
	body, err := json.Marshal(event)
	if err != nil {
		t.Fatal(err)
	}

	got, err := v.Parse(body, v.Sign(body))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if got.Type != ChangeUpdate || got.Collection != "booking_requests" {
		t.Errorf("event header lost: %+v", got)
	}
	if strOr(got.Record, "status", "") != "approved" || strOr(got.Old, "status", "") != "pending" {
		t.Errorf("rows lost: %+v", got)
	}

	if _, err := v.Parse(body, "bad"); err == nil {
		t.Error("Parse accepted an invalid signature")
	}
}

func TestWebhookHTTPHandler(t *testing.T) {
	v := NewWebhookVerifier("whsec_test_secret")
	body := []byte(`{"type":"delete","collection":"favorites","record":{"id":"f1"}}`)

	var received []*DatabaseEvent
	handler := v.HTTPHandler(func(e *DatabaseEvent) { received = append(received, e) })

	post := func(payload []byte, signature string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/webhooks/sakan", strings.NewReader(string(payload)))
		req.Header.Set(SignatureHeader, signature)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}

	t.Run("accepted", func(t *testing.T) {
		rec := post(body, v.Sign(body))
		if rec.Code != http.StatusOK {
			t.Fatalf("got %d, want 200", rec.Code)
		}
		if len(received) != 1 || received[0].Collection != "favorites" {
			t.Errorf("event not delivered: %+v", received)
		}
	})

	t.Run("bad signature", func(t *testing.T) {
		rec := post(body, "nope")
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("got %d, want 401", rec.Code)
		}
	})

	t.Run("bad payload", func(t *testing.T) {
		broken := []byte("{broken")
		rec := post(broken, v.Sign(broken))
		if rec.Code != http.StatusBadRequest {
			t.Errorf("got %d, want 400", rec.Code)
		}
	})

	t.Run("wrong method", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/webhooks/sakan", nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusMethodNotAllowed {
			t.Errorf("got %d, want 405", rec.Code)
		}
	})
}
