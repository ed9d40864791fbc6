package sakan

import "encoding/json"

// ============================================================================
// Shared Types
// ============================================================================

// APIError represents an error returned by the Sakan platform.
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return e.Code + ": " + e.Message
}

// Row is an untyped collection row as the gateway returns it.
// Normalization into entity types happens at the boundary, with defaults
// applied for missing fields.
type Row map[string]any

// Result is the generic gateway response envelope.
type Result struct {
	OK    bool            `json:"ok"`
	Data  json.RawMessage `json:"data,omitempty"`
	Meta  map[string]any  `json:"meta,omitempty"`
	Error *APIError       `json:"error,omitempty"`
}

// Decode unmarshals the Data field into the provided type.
func (r *Result) Decode(v interface{}) error {
	if r.Data == nil {
		return nil
	}
	return json.Unmarshal(r.Data, v)
}

// ============================================================================
// Roles & Identity
// ============================================================================

// Role is a profile role.
type Role string

const (
	RoleUser    Role = "user"
	RoleAdmin   Role = "admin"
	RoleGuest   Role = "guest"
	RoleStudent Role = "student"
)

// AccountStatus is a profile account status.
type AccountStatus string

const (
	StatusActive AccountStatus = "active"
	StatusBanned AccountStatus = "banned"
)

// Session identifies the current caller, as carried in the access token.
type Session struct {
	UserID string
	Role   Role
	Status AccountStatus
}

// IsAdmin reports whether the session belongs to an administrator.
func (s *Session) IsAdmin() bool {
	return s != nil && s.Role == RoleAdmin
}

// CanWrite reports whether the session may perform non-admin mutations.
// Guests and banned accounts may not.
func (s *Session) CanWrite() bool {
	return s != nil && s.UserID != "" && s.Role != RoleGuest && s.Status != StatusBanned
}

// ============================================================================
// Listing
// ============================================================================

// ListingType is the unit type of a listing.
type ListingType string

const (
	ListingFlat   ListingType = "flat"
	ListingRoom   ListingType = "room"
	ListingBed    ListingType = "bed"
	ListingVilla  ListingType = "villa"
	ListingChalet ListingType = "chalet"
	ListingStudio ListingType = "studio"
)

// ListingStatus is the offer status of a listing.
type ListingStatus string

const (
	ListingForRent ListingStatus = "rent"
	ListingForSale ListingStatus = "sale"
	ListingSummer  ListingStatus = "summer"
)

// Listing is a housing unit available for rent, sale, or seasonal let.
type Listing struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Location    string        `json:"location"`
	Rooms       int           `json:"rooms"`
	Beds        int           `json:"beds"`
	Bathrooms   int           `json:"bathrooms"`
	Size        int           `json:"size"`
	Price       float64       `json:"price"`
	Discount    float64       `json:"discount"`
	Type        ListingType   `json:"listing_type"`
	Status      ListingStatus `json:"status"`
	Amenities   []string      `json:"amenities"`
	Images      []string      `json:"images"`
	Description string        `json:"description"`
	Available   bool          `json:"available"`

	// Optional categorical tags. Empty means unset.
	UnitType        string `json:"unit_type,omitempty"`
	HousingCategory string `json:"housing_category,omitempty"`
	Area            string `json:"area,omitempty"`
	SpecialType     string `json:"special_type,omitempty"`

	CreatedBy string `json:"created_by,omitempty"`
	CreatedAt string `json:"created_at"`
	UpdatedAt string `json:"updated_at"`
}

// EntityID implements Entity.
func (l Listing) EntityID() string { return l.ID }

// SpecialTypeDefault is applied when a listing row carries no special type.
const SpecialTypeDefault = "standard"

// ListingFromRow normalizes a gateway row into a Listing, applying the
// defaults the platform leaves implicit (beds/rooms/bathrooms default to 1,
// missing sequences to empty, availability to true).
func ListingFromRow(r Row) Listing {
	return Listing{
		ID:              strOr(r, "id", ""),
		Name:            strOr(r, "name", "Unnamed listing"),
		Location:        strOr(r, "location", ""),
		Rooms:           intOr(r, "rooms", 1),
		Beds:            intOr(r, "beds", 1),
		Bathrooms:       intOr(r, "bathrooms", 1),
		Size:            intOr(r, "size", 0),
		Price:           floatOr(r, "price", 0),
		Discount:        floatOr(r, "discount", 0),
		Type:            ListingType(strOr(r, "listing_type", string(ListingFlat))),
		Status:          ListingStatus(strOr(r, "status", string(ListingForRent))),
		Amenities:       strSliceOr(r, "amenities"),
		Images:          strSliceOr(r, "images"),
		Description:     strOr(r, "description", ""),
		Available:       boolOr(r, "available", true),
		UnitType:        strOr(r, "unit_type", ""),
		HousingCategory: strOr(r, "housing_category", ""),
		Area:            strOr(r, "area", ""),
		SpecialType:     strOr(r, "special_type", SpecialTypeDefault),
		CreatedBy:       strOr(r, "created_by", ""),
		CreatedAt:       strOr(r, "created_at", ""),
		UpdatedAt:       strOr(r, "updated_at", ""),
	}
}

// Payload builds the insert/update row for a listing. The id and timestamps
// are owned by the gateway and never sent.
func (l Listing) Payload() Row {
	amenities := l.Amenities
	if amenities == nil {
		amenities = []string{}
	}
	images := l.Images
	if images == nil {
		images = []string{}
	}
	specialType := l.SpecialType
	if specialType == "" {
		specialType = SpecialTypeDefault
	}
	return Row{
		"name":             l.Name,
		"location":         l.Location,
		"rooms":            l.Rooms,
		"beds":             l.Beds,
		"bathrooms":        l.Bathrooms,
		"size":             l.Size,
		"price":            l.Price,
		"discount":         l.Discount,
		"listing_type":     string(l.Type),
		"status":           string(l.Status),
		"amenities":        amenities,
		"images":           images,
		"description":      l.Description,
		"available":        l.Available,
		"unit_type":        l.UnitType,
		"housing_category": l.HousingCategory,
		"area":             l.Area,
		"special_type":     specialType,
	}
}

// ============================================================================
// Booking Request
// ============================================================================

// BookingStatus is the review state of a booking request.
type BookingStatus string

const (
	BookingPending  BookingStatus = "pending"
	BookingApproved BookingStatus = "approved"
	BookingRejected BookingStatus = "rejected"
)

// BookingRequest is a reservation inquiry submitted against a listing.
// The applicant fields are snapshotted at request time and never re-derived
// from later profile edits. ListingID is a weak reference: the listing may
// have been deleted since.
type BookingRequest struct {
	ID        string        `json:"id"`
	ListingID string        `json:"listing_id"`
	UserID    string        `json:"user_id"`
	FullName  string        `json:"full_name"`
	Faculty   string        `json:"faculty"`
	Batch     string        `json:"batch"`
	Phone     string        `json:"phone"`
	AltPhone  string        `json:"alternative_phone,omitempty"`
	Status    BookingStatus `json:"status"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

// EntityID implements Entity.
func (b BookingRequest) EntityID() string { return b.ID }

// BookingFromRow normalizes a gateway row into a BookingRequest.
func BookingFromRow(r Row) BookingRequest {
	return BookingRequest{
		ID:        strOr(r, "id", ""),
		ListingID: strOr(r, "listing_id", ""),
		UserID:    strOr(r, "user_id", ""),
		FullName:  strOr(r, "full_name", ""),
		Faculty:   strOr(r, "faculty", ""),
		Batch:     strOr(r, "batch", ""),
		Phone:     strOr(r, "phone", ""),
		AltPhone:  strOr(r, "alternative_phone", ""),
		Status:    BookingStatus(strOr(r, "status", string(BookingPending))),
		CreatedAt: strOr(r, "created_at", ""),
		UpdatedAt: strOr(r, "updated_at", ""),
	}
}

// ============================================================================
// Favorite
// ============================================================================

// Favorite is a user-curated bookmark of a listing.
type Favorite struct {
	ID        string `json:"id"`
	ListingID string `json:"listing_id"`
	UserID    string `json:"user_id"`
}

// EntityID implements Entity.
func (f Favorite) EntityID() string { return f.ID }

// FavoriteFromRow normalizes a gateway row into a Favorite.
func FavoriteFromRow(r Row) Favorite {
	return Favorite{
		ID:        strOr(r, "id", ""),
		ListingID: strOr(r, "listing_id", ""),
		UserID:    strOr(r, "user_id", ""),
	}
}

// ============================================================================
// Chat Message
// ============================================================================

// ChatMessage is one message in a two-party thread. Exactly one of Text and
// ImageURL is expected to be set, though the model does not forbid both.
type ChatMessage struct {
	ID         string `json:"id"`
	SenderID   string `json:"sender_id"`
	ReceiverID string `json:"receiver_id"`
	Text       string `json:"message_text,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	CreatedAt  string `json:"created_at"`
}

// EntityID implements Entity.
func (m ChatMessage) EntityID() string { return m.ID }

// MessageFromRow normalizes a gateway row into a ChatMessage.
func MessageFromRow(r Row) ChatMessage {
	return ChatMessage{
		ID:         strOr(r, "id", ""),
		SenderID:   strOr(r, "sender_id", ""),
		ReceiverID: strOr(r, "receiver_id", ""),
		Text:       strOr(r, "message_text", ""),
		ImageURL:   strOr(r, "image_url", ""),
		CreatedAt:  strOr(r, "created_at", ""),
	}
}

// ============================================================================
// User Profile
// ============================================================================

// UserProfile is a platform account profile.
type UserProfile struct {
	ID        string        `json:"id"`
	Role      Role          `json:"role"`
	Status    AccountStatus `json:"status"`
	FullName  string        `json:"full_name"`
	Email     string        `json:"email,omitempty"`
	Faculty   string        `json:"faculty,omitempty"`
	Batch     string        `json:"batch,omitempty"`
	StudentID string        `json:"student_id,omitempty"`
	Phone     string        `json:"phone,omitempty"`
	AvatarURL string        `json:"avatar_url,omitempty"`
	CreatedAt string        `json:"created_at"`
	UpdatedAt string        `json:"updated_at"`
}

// EntityID implements Entity.
func (p UserProfile) EntityID() string { return p.ID }

// ProfileFromRow normalizes a gateway row into a UserProfile.
func ProfileFromRow(r Row) UserProfile {
	return UserProfile{
		ID:        strOr(r, "id", ""),
		Role:      Role(strOr(r, "role", string(RoleUser))),
		Status:    AccountStatus(strOr(r, "status", string(StatusActive))),
		FullName:  strOr(r, "full_name", ""),
		Email:     strOr(r, "email", ""),
		Faculty:   strOr(r, "faculty", ""),
		Batch:     strOr(r, "batch", ""),
		StudentID: strOr(r, "student_id", ""),
		Phone:     strOr(r, "phone", ""),
		AvatarURL: strOr(r, "avatar_url", ""),
		CreatedAt: strOr(r, "created_at", ""),
		UpdatedAt: strOr(r, "updated_at", ""),
	}
}

// ============================================================================
// Setting Entry
// ============================================================================

// SettingEntry is a platform setting: a unique key with a JSON-shaped value.
// Entries are created on first write and never deleted by this layer.
type SettingEntry struct {
	Key         string `json:"key"`
	Value       any    `json:"value"`
	Description string `json:"description,omitempty"`
}

// EntityID implements Entity. Settings are keyed by name, not surrogate id.
func (s SettingEntry) EntityID() string { return s.Key }

// SettingFromRow normalizes a gateway row into a SettingEntry.
func SettingFromRow(r Row) SettingEntry {
	return SettingEntry{
		Key:         strOr(r, "key", ""),
		Value:       r["value"],
		Description: strOr(r, "description", ""),
	}
}

// ============================================================================
// Row field helpers
// ============================================================================

func strOr(m Row, key, fallback string) string {
	if v, ok := m[key].(string); ok && v != "" {
		return v
	}
	return fallback
}

func intOr(m Row, key string, fallback int) int {
	switch v := m[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return fallback
}

func floatOr(m Row, key string, fallback float64) float64 {
	switch v := m[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return fallback
}

func boolOr(m Row, key string, fallback bool) bool {
	if v, ok := m[key].(bool); ok {
		return v
	}
	return fallback
}

func strSliceOr(m Row, key string) []string {
	out := []string{}
	switch v := m[key].(type) {
	case []string:
		return append(out, v...)
	case []any:
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
	}
	return out
}
