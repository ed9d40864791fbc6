package sakan

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

// DatabaseEvent is the payload the gateway POSTs to registered webhook
// endpoints on every collection change. Server integrations (bots, search
// indexers) consume these instead of holding a realtime connection.
type DatabaseEvent struct {
	Type       ChangeType `json:"type"`
	Collection string     `json:"collection"`
	Record     Row        `json:"record"`
	Old        Row        `json:"old,omitempty"`
	Timestamp  int64      `json:"timestamp"`
}

// WebhookVerifier authenticates gateway webhook deliveries. Every delivery
// carries an HMAC-SHA256 hex signature of the raw body in the
// X-Sakan-Signature header.
type WebhookVerifier struct {
	secret []byte
}

func NewWebhookVerifier(secret string) *WebhookVerifier {
	return &WebhookVerifier{secret: []byte(secret)}
}

// SignatureHeader is the request header carrying the delivery signature.
const SignatureHeader = "X-Sakan-Signature"

// Verify checks the signature against the raw request body. Comparison is
// constant time.
func (v *WebhookVerifier) Verify(body []byte, signature string) bool {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign computes the signature for a body. Used by tests and by integrations
// that relay events onward.
func (v *WebhookVerifier) Sign(body []byte) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// Parse verifies and decodes one delivery.
func (v *WebhookVerifier) Parse(body []byte, signature string) (*DatabaseEvent, error) {
	if !v.Verify(body, signature) {
		return nil, fmt.Errorf("%w: invalid webhook signature", ErrPermission)
	}
	var event DatabaseEvent
	if err := json.Unmarshal(body, &event); err != nil {
		return nil, fmt.Errorf("failed to parse webhook payload: %w", err)
	}
	return &event, nil
}

// HTTPHandler adapts a DatabaseEvent callback into an http.Handler suitable
// for mounting on a mux. Invalid signatures get 401, bad payloads 400.
func (v *WebhookVerifier) HTTPHandler(handle func(*DatabaseEvent)) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil {
			http.Error(w, "failed to read body", http.StatusBadRequest)
			return
		}
		event, err := v.Parse(body, r.Header.Get(SignatureHeader))
		if err != nil {
			if IsTransient(err) {
				http.Error(w, "bad payload", http.StatusBadRequest)
			} else {
				http.Error(w, "invalid signature", http.StatusUnauthorized)
			}
			return
		}
		handle(event)
		w.WriteHeader(http.StatusOK)
	})
}
