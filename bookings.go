package sakan

import (
	"context"
	"regexp"
	"sync"
	"time"

	"github.com/golang/glog"
)

const collectionBookings = "booking_requests"

// eventDebounce coalesces bursts of booking change events into one refetch.
const eventDebounce = 3 * time.Second

var phonePattern = regexp.MustCompile(`^\d{10,11}$`)

// BookingsStore is the synchronized view of booking requests.
//
// Admins see every request; regular users see only their own. Change events
// do not patch rows directly: bursts are debounced into a single forced
// refetch so admin decisions and concurrent edits always land as one
// consistent snapshot.
type BookingsStore struct {
	core    *syncCore[BookingRequest]
	session func() *Session

	mu      sync.Mutex
	sub     *Subscription
	pending *time.Timer
	closed  bool
}

func newBookingsStore(gateway Gateway, cache CacheStore, session func() *Session) *BookingsStore {
	s := &BookingsStore{session: session}
	s.core = newSyncCore(gateway, cache, collectionBookings, CacheKeyBookings, BookingFromRow, s.query)
	return s
}

// query scopes reads by role: admins read the whole collection.
func (s *BookingsStore) query() *Query {
	sess := s.session()
	if sess.IsAdmin() {
		return &Query{OrderBy: "created_at", Descending: true}
	}
	q := Eq("user_id", sess.UserID)
	q.OrderBy = "created_at"
	q.Descending = true
	return q
}

func (s *BookingsStore) Items() []BookingRequest { return s.core.Items() }
func (s *BookingsStore) IsLoading() bool         { return s.core.IsLoading() }

func (s *BookingsStore) Refresh(ctx context.Context, force bool) error {
	if s.session().Role == RoleGuest {
		return nil
	}
	return s.core.Fetch(ctx, force)
}

// validate checks a request before it leaves the client.
func validateBooking(b BookingRequest) error {
	if b.ListingID == "" {
		return validationError("listing is required")
	}
	if b.FullName == "" {
		return validationError("full name is required")
	}
	if b.Faculty == "" {
		return validationError("faculty is required")
	}
	if b.Batch == "" {
		return validationError("batch is required")
	}
	if !phonePattern.MatchString(b.Phone) {
		return validationError("phone must be 10 or 11 digits")
	}
	if b.AltPhone != "" && !phonePattern.MatchString(b.AltPhone) {
		return validationError("alternative phone must be 10 or 11 digits")
	}
	return nil
}

// Request submits a booking request for the current user. The request shows
// up locally as pending immediately and is rolled back if the gateway
// rejects it.
func (s *BookingsStore) Request(ctx context.Context, b BookingRequest) (BookingRequest, error) {
	sess := s.session()
	if !sess.CanWrite() {
		return BookingRequest{}, permissionError("sign in to request a booking")
	}
	b.UserID = sess.UserID
	b.Status = BookingPending
	if err := validateBooking(b); err != nil {
		return BookingRequest{}, err
	}

	payload := Row{
		"listing_id":        b.ListingID,
		"user_id":           b.UserID,
		"full_name":         b.FullName,
		"faculty":           b.Faculty,
		"batch":             b.Batch,
		"phone":             b.Phone,
		"alternative_phone": b.AltPhone,
		"status":            string(BookingPending),
	}

	b.ID = newTempID()
	return s.core.optimisticAdd(ctx, b, payload)
}

// UpdateStatus moves a pending request to approved or rejected. Decisions
// are final: a request that already left pending cannot be changed again.
func (s *BookingsStore) UpdateStatus(ctx context.Context, id string, status BookingStatus) error {
	sess := s.session()
	if !sess.IsAdmin() {
		return permissionError("only admins decide booking requests")
	}
	if status != BookingApproved && status != BookingRejected {
		return validationError("status must be approved or rejected")
	}
	current, ok := s.core.Get(id)
	if !ok {
		return ErrNotFound
	}
	if current.Status != BookingPending {
		return validationError("request has already been decided")
	}
	return s.core.optimisticUpdate(ctx, id,
		func(b BookingRequest) BookingRequest { b.Status = status; return b },
		Row{"status": string(status)})
}

// subscribe wires change events into the debounced refetch.
func (s *BookingsStore) subscribe(rt *RealtimeClient) error {
	sess := s.session()
	if sess.Role == RoleGuest {
		return nil
	}
	opts := SubscribeOptions{Channel: collectionBookings}
	if !sess.IsAdmin() {
		opts.Filter = "user_id=eq." + sess.UserID
	}
	sub, err := rt.Subscribe(opts, func(ChangeEvent) {
		s.scheduleRefetch()
	})
	if err != nil {
		return err
	}
	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// scheduleRefetch arms (or re-arms) the debounce timer. Each event pushes
// the refetch back so a burst costs one round trip.
func (s *BookingsStore) scheduleRefetch() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	if s.pending != nil {
		s.pending.Stop()
	}
	s.pending = time.AfterFunc(eventDebounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), DefaultTimeout)
		defer cancel()
		if err := s.core.Fetch(ctx, true); err != nil {
			glog.Warningf("bookings: event refetch failed: %v", err)
		}
	})
}

func (s *BookingsStore) Close() {
	s.mu.Lock()
	s.closed = true
	if s.pending != nil {
		s.pending.Stop()
		s.pending = nil
	}
	sub := s.sub
	s.sub = nil
	s.mu.Unlock()
	if sub != nil {
		sub.Close()
	}
	s.core.Close()
}
