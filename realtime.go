package sakan

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/golang/glog"
	"nhooyr.io/websocket"
)

// ============================================================================
// Events
// ============================================================================

// ChangeType discriminates what happened to a row.
type ChangeType string

const (
	ChangeInsert ChangeType = "insert"
	ChangeUpdate ChangeType = "update"
	ChangeDelete ChangeType = "delete"
)

// ChangeEvent is one row-level change pushed by the gateway.
type ChangeEvent struct {
	Type       ChangeType `json:"type"`
	Collection string     `json:"collection"`
	// Record is the row after the change. For deletes only the identifier
	// is guaranteed to be present.
	Record Row `json:"record"`
	// Old is the row before the change; populated for updates and deletes.
	Old Row `json:"old,omitempty"`
}

// ChangeHandler receives change events for one subscription. Handlers run on
// the dispatch goroutine and must not block.
type ChangeHandler func(ChangeEvent)

// SubscribeOptions names the channel to listen on. Channel is either a bare
// collection name or a derived channel such as a two-party chat thread.
type SubscribeOptions struct {
	Channel string
	// Filter optionally narrows events server-side, PostgREST style
	// (e.g. "user_id=eq.<id>").
	Filter string
}

// Subscription is a live registration on one channel. Close unregisters it;
// the underlying connection stays up for other subscriptions.
type Subscription struct {
	id      string
	channel string
	client  *RealtimeClient
	once    sync.Once
}

// Close removes the subscription. Safe to call multiple times.
func (s *Subscription) Close() {
	s.once.Do(func() {
		s.client.unsubscribe(s)
	})
}

// ============================================================================
// Connection state
// ============================================================================

type ConnectionState string

const (
	StateDisconnected ConnectionState = "disconnected"
	StateConnecting   ConnectionState = "connecting"
	StateConnected    ConnectionState = "connected"
	StateReconnecting ConnectionState = "reconnecting"
)

// RealtimeConfig tunes the realtime connection. Zero values fall back to the
// defaults used in production.
type RealtimeConfig struct {
	Token             string
	HeartbeatInterval time.Duration
	ReconnectBase     time.Duration
	ReconnectMax      time.Duration
	// StableAfter is how long a connection must survive before the
	// reconnect backoff resets to the base delay.
	StableAfter   time.Duration
	OnStateChange func(ConnectionState)
}

func (c *RealtimeConfig) defaults() {
	if c.HeartbeatInterval == 0 {
		c.HeartbeatInterval = 25 * time.Second
	}
	if c.ReconnectBase == 0 {
		c.ReconnectBase = 1 * time.Second
	}
	if c.ReconnectMax == 0 {
		c.ReconnectMax = 30 * time.Second
	}
	if c.StableAfter == 0 {
		c.StableAfter = 60 * time.Second
	}
}

// ============================================================================
// Wire protocol
// ============================================================================

type realtimeFrame struct {
	Op      string          `json:"op"`
	Channel string          `json:"channel,omitempty"`
	Filter  string          `json:"filter,omitempty"`
	Event   json.RawMessage `json:"event,omitempty"`
}

// ============================================================================
// Client
// ============================================================================

// RealtimeClient maintains one websocket connection to the gateway's change
// feed and fans events out to per-channel subscriptions. It reconnects with
// exponential backoff and re-establishes all live subscriptions after each
// reconnect.
type RealtimeClient struct {
	wsURL  string
	config *RealtimeConfig

	mu            sync.Mutex
	conn          *websocket.Conn
	state         ConnectionState
	subscriptions map[string]*subscription
	nextSubID     int

	attempt        int
	connectedSince time.Time

	intentionalClose bool
	cancel           context.CancelFunc
	done             chan struct{}
}

type subscription struct {
	id      string
	channel string
	filter  string
	handler ChangeHandler
}

func newRealtimeClient(baseURL string, config *RealtimeConfig) *RealtimeClient {
	wsURL := strings.Replace(baseURL, "https://", "wss://", 1)
	wsURL = strings.Replace(wsURL, "http://", "ws://", 1)
	return &RealtimeClient{
		wsURL:         wsURL + "/api/v1/realtime",
		config:        config,
		state:         StateDisconnected,
		subscriptions: map[string]*subscription{},
	}
}

// State returns the current connection state.
func (rc *RealtimeClient) State() ConnectionState {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.state
}

func (rc *RealtimeClient) setState(state ConnectionState) {
	rc.mu.Lock()
	changed := rc.state != state
	rc.state = state
	cb := rc.config.OnStateChange
	rc.mu.Unlock()
	if changed && cb != nil {
		cb(state)
	}
}

// Connect dials the change feed and starts the read and heartbeat loops. The
// context bounds the lifetime of the whole connection, including reconnects.
func (rc *RealtimeClient) Connect(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)

	rc.mu.Lock()
	rc.intentionalClose = false
	rc.cancel = cancel
	rc.done = make(chan struct{})
	rc.mu.Unlock()

	if err := rc.dial(runCtx); err != nil {
		cancel()
		close(rc.done)
		return err
	}

	go rc.run(runCtx)
	return nil
}

func (rc *RealtimeClient) dial(ctx context.Context) error {
	rc.setState(StateConnecting)

	dialCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	u := rc.wsURL
	if rc.config.Token != "" {
		u += "?token=" + rc.config.Token
	}
	conn, _, err := websocket.Dial(dialCtx, u, nil)
	if err != nil {
		rc.setState(StateDisconnected)
		return fmt.Errorf("realtime dial failed: %w", err)
	}

	rc.mu.Lock()
	rc.conn = conn
	rc.connectedSince = time.Now()
	subs := make([]*subscription, 0, len(rc.subscriptions))
	for _, s := range rc.subscriptions {
		subs = append(subs, s)
	}
	rc.mu.Unlock()

	rc.setState(StateConnected)

	// Re-announce every live subscription; on a fresh connect this is a
	// no-op because none exist yet.
	for _, s := range subs {
		if err := rc.send(ctx, realtimeFrame{Op: "subscribe", Channel: s.channel, Filter: s.filter}); err != nil {
			glog.Warningf("realtime: resubscribe %s failed: %v", s.channel, err)
		}
	}
	return nil
}

// run owns the connection: it reads frames, sends heartbeats, and reconnects
// until the context is cancelled or Close is called.
func (rc *RealtimeClient) run(ctx context.Context) {
	defer close(rc.done)

	for {
		readErr := rc.readLoop(ctx)

		rc.mu.Lock()
		intentional := rc.intentionalClose
		stable := time.Since(rc.connectedSince) >= rc.config.StableAfter
		rc.mu.Unlock()

		if intentional || ctx.Err() != nil {
			rc.setState(StateDisconnected)
			return
		}
		if readErr != nil {
			glog.Warningf("realtime: connection lost: %v", readErr)
		}

		if stable {
			rc.attempt = 0
		}

		rc.setState(StateReconnecting)
		delay := rc.backoff()
		select {
		case <-ctx.Done():
			rc.setState(StateDisconnected)
			return
		case <-time.After(delay):
		}

		if err := rc.dial(ctx); err != nil {
			glog.Warningf("realtime: reconnect attempt %d failed: %v", rc.attempt, err)
		}
	}
}

// backoff returns the next reconnect delay: exponential from the base up to
// the max, with up to 25% random jitter.
func (rc *RealtimeClient) backoff() time.Duration {
	delay := rc.config.ReconnectBase << rc.attempt
	if delay > rc.config.ReconnectMax || delay <= 0 {
		delay = rc.config.ReconnectMax
	}
	rc.attempt++
	if quarter := int64(delay) / 4; quarter > 0 {
		delay += time.Duration(rand.Int63n(quarter))
	}
	return delay
}

func (rc *RealtimeClient) readLoop(ctx context.Context) error {
	rc.mu.Lock()
	conn := rc.conn
	rc.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("no connection")
	}

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go rc.heartbeatLoop(heartbeatCtx, conn)

	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		var frame realtimeFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			glog.Warningf("realtime: bad frame: %v", err)
			continue
		}
		switch frame.Op {
		case "event":
			rc.dispatch(frame)
		case "pong":
			// keepalive ack, nothing to do
		}
	}
}

func (rc *RealtimeClient) heartbeatLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(rc.config.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := rc.send(ctx, realtimeFrame{Op: "ping"}); err != nil {
				return
			}
		}
	}
}

func (rc *RealtimeClient) send(ctx context.Context, frame realtimeFrame) error {
	rc.mu.Lock()
	conn := rc.conn
	rc.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("not connected")
	}
	data, err := json.Marshal(frame)
	if err != nil {
		return err
	}
	writeCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return conn.Write(writeCtx, websocket.MessageText, data)
}

func (rc *RealtimeClient) dispatch(frame realtimeFrame) {
	var event ChangeEvent
	if err := json.Unmarshal(frame.Event, &event); err != nil {
		glog.Warningf("realtime: bad event payload on %s: %v", frame.Channel, err)
		return
	}

	rc.mu.Lock()
	handlers := make([]ChangeHandler, 0, 1)
	for _, s := range rc.subscriptions {
		if s.channel == frame.Channel {
			handlers = append(handlers, s.handler)
		}
	}
	rc.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
}

// Subscribe registers a handler for one channel. The registration survives
// reconnects until the returned Subscription is closed.
func (rc *RealtimeClient) Subscribe(opts SubscribeOptions, handler ChangeHandler) (*Subscription, error) {
	if opts.Channel == "" {
		return nil, validationError("channel is required")
	}
	if handler == nil {
		return nil, validationError("handler is required")
	}

	rc.mu.Lock()
	rc.nextSubID++
	id := fmt.Sprintf("sub-%d", rc.nextSubID)
	rc.subscriptions[id] = &subscription{
		id:      id,
		channel: opts.Channel,
		filter:  opts.Filter,
		handler: handler,
	}
	connected := rc.state == StateConnected
	rc.mu.Unlock()

	if connected {
		if err := rc.send(context.Background(), realtimeFrame{Op: "subscribe", Channel: opts.Channel, Filter: opts.Filter}); err != nil {
			glog.Warningf("realtime: subscribe %s deferred to reconnect: %v", opts.Channel, err)
		}
	}

	return &Subscription{id: id, channel: opts.Channel, client: rc}, nil
}

func (rc *RealtimeClient) unsubscribe(s *Subscription) {
	rc.mu.Lock()
	delete(rc.subscriptions, s.id)
	stillUsed := false
	for _, other := range rc.subscriptions {
		if other.channel == s.channel {
			stillUsed = true
			break
		}
	}
	connected := rc.state == StateConnected
	rc.mu.Unlock()

	if connected && !stillUsed {
		if err := rc.send(context.Background(), realtimeFrame{Op: "unsubscribe", Channel: s.channel}); err != nil {
			glog.V(1).Infof("realtime: unsubscribe %s: %v", s.channel, err)
		}
	}
}

// Close tears the connection down and stops reconnecting. Subscriptions are
// kept so a later Connect resumes them.
func (rc *RealtimeClient) Close() error {
	rc.mu.Lock()
	rc.intentionalClose = true
	conn := rc.conn
	cancel := rc.cancel
	done := rc.done
	rc.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	if conn != nil {
		conn.Close(websocket.StatusNormalClosure, "client closed")
	}
	if done != nil {
		<-done
	}
	return nil
}

// ChatChannel derives the canonical channel name for the two-party thread
// between a and b. The pair is sorted so both sides compute the same name.
func ChatChannel(a, b string) string {
	if a > b {
		a, b = b, a
	}
	return "chat-" + a + "-" + b
}
