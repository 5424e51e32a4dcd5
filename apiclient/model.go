package apiclient

import (
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/unkn0wn-root/querycache"
)

const (
	DefaultPage  = 1
	DefaultLimit = 20

	DefaultBookingStatus = BookingPending
)

type BookingStatus string

const (
	BookingPending   BookingStatus = "pending"
	BookingConfirmed BookingStatus = "confirmed"
	BookingCancelled BookingStatus = "cancelled"
	BookingCompleted BookingStatus = "completed"
)

type Booking struct {
	ID         int64           `json:"id"`
	TrekID     int64           `json:"trekId"`
	VendorID   int64           `json:"vendorId"`
	UserID     int64           `json:"userId"`
	Status     BookingStatus   `json:"status"`
	Travellers int             `json:"travellers"`
	Amount     decimal.Decimal `json:"amount"`
	Currency   string          `json:"currency"`
	StartDate  time.Time       `json:"startDate"`
	CreatedAt  time.Time       `json:"createdAt"`
}

type Trek struct {
	ID         int64           `json:"id"`
	VendorID   int64           `json:"vendorId"`
	Title      string          `json:"title"`
	Region     string          `json:"region"`
	Difficulty string          `json:"difficulty"`
	Days       int             `json:"days"`
	Itinerary  []ItineraryDay  `json:"itinerary,omitempty"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Capacity   int             `json:"capacity"`
	Published  bool            `json:"published"`
}

type ItineraryDay struct {
	Day         int    `json:"day"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	AltitudeM   int    `json:"altitudeM,omitempty"`
}

// TrekInput is the body of trek create and update calls.
type TrekInput struct {
	VendorID   int64           `json:"vendorId"`
	Title      string          `json:"title"`
	Region     string          `json:"region"`
	Difficulty string          `json:"difficulty"`
	Itinerary  []ItineraryDay  `json:"itinerary"`
	Price      decimal.Decimal `json:"price"`
	Currency   string          `json:"currency"`
	Capacity   int             `json:"capacity"`
	Published  bool            `json:"published"`
}

type Vendor struct {
	ID       int64  `json:"id"`
	Name     string `json:"name"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	Active   bool   `json:"active"`
}

type VendorUpdate struct {
	Verified *bool `json:"verified,omitempty"`
	Active   *bool `json:"active,omitempty"`
}

type User struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Active bool   `json:"active"`
}

type UserUpdate struct {
	Role   *string `json:"role,omitempty"`
	Active *bool   `json:"active,omitempty"`
}

// Template is a communication template (booking confirmation email, SMS, ...).
type Template struct {
	ID      string `json:"id"`
	Channel string `json:"channel"`
	Subject string `json:"subject,omitempty"`
	Body    string `json:"body"`
}

type TemplateUpdate struct {
	Subject *string `json:"subject,omitempty"`
	Body    *string `json:"body,omitempty"`
}

// Page is one page of a list endpoint.
type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Paging is embedded in every list filter. Zero values mean the defaults
// (page 1, 20 items), and both render identically in keys and URLs.
type Paging struct {
	Page  int
	Limit int
}

func (p Paging) normalized() (page, limit int) {
	page, limit = p.Page, p.Limit
	if page <= 0 {
		page = DefaultPage
	}
	if limit <= 0 {
		limit = DefaultLimit
	}
	return page, limit
}

func (p Paging) params(out querycache.Params) {
	page, limit := p.normalized()
	out["page"] = page
	out["limit"] = limit
}

func (p Paging) values(out url.Values) {
	page, limit := p.normalized()
	out.Set("page", strconv.Itoa(page))
	out.Set("limit", strconv.Itoa(limit))
}

// BookingFilter selects bookings. Optional fields are nil when unset; a nil
// Status means DefaultBookingStatus.
type BookingFilter struct {
	Paging
	Status   *BookingStatus
	TrekID   *int64
	VendorID *int64 // required for vendor listings
	From     *time.Time
	To       *time.Time
	Search   string
}

func (f BookingFilter) status() BookingStatus {
	if f.Status == nil {
		return DefaultBookingStatus
	}
	return *f.Status
}

func (f BookingFilter) Params() querycache.Params {
	p := querycache.Params{
		"status":   string(f.status()),
		"trekId":   f.TrekID,
		"vendorId": f.VendorID,
		"from":     formatDate(f.From),
		"to":       formatDate(f.To),
	}
	if f.Search != "" {
		p["q"] = f.Search
	}
	f.Paging.params(p)
	return p
}

func (f BookingFilter) Values() url.Values {
	v := url.Values{}
	v.Set("status", string(f.status()))
	if f.TrekID != nil {
		v.Set("trekId", strconv.FormatInt(*f.TrekID, 10))
	}
	if f.VendorID != nil {
		v.Set("vendorId", strconv.FormatInt(*f.VendorID, 10))
	}
	if f.From != nil {
		v.Set("from", *formatDate(f.From))
	}
	if f.To != nil {
		v.Set("to", *formatDate(f.To))
	}
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	f.Paging.values(v)
	return v
}

type TrekFilter struct {
	Paging
	VendorID   *int64
	Region     string
	Difficulty string
	Published  *bool
}

func (f TrekFilter) Params() querycache.Params {
	p := querycache.Params{"vendorId": f.VendorID, "published": f.Published}
	if f.Region != "" {
		p["region"] = f.Region
	}
	if f.Difficulty != "" {
		p["difficulty"] = f.Difficulty
	}
	f.Paging.params(p)
	return p
}

func (f TrekFilter) Values() url.Values {
	v := url.Values{}
	if f.VendorID != nil {
		v.Set("vendorId", strconv.FormatInt(*f.VendorID, 10))
	}
	if f.Region != "" {
		v.Set("region", f.Region)
	}
	if f.Difficulty != "" {
		v.Set("difficulty", f.Difficulty)
	}
	if f.Published != nil {
		v.Set("published", strconv.FormatBool(*f.Published))
	}
	f.Paging.values(v)
	return v
}

type VendorFilter struct {
	Paging
	Verified *bool
	Search   string
}

func (f VendorFilter) Params() querycache.Params {
	p := querycache.Params{"verified": f.Verified}
	if f.Search != "" {
		p["q"] = f.Search
	}
	f.Paging.params(p)
	return p
}

func (f VendorFilter) Values() url.Values {
	v := url.Values{}
	if f.Verified != nil {
		v.Set("verified", strconv.FormatBool(*f.Verified))
	}
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	f.Paging.values(v)
	return v
}

type UserFilter struct {
	Paging
	Role   string
	Active *bool
	Search string
}

func (f UserFilter) Params() querycache.Params {
	p := querycache.Params{"active": f.Active}
	if f.Role != "" {
		p["role"] = f.Role
	}
	if f.Search != "" {
		p["q"] = f.Search
	}
	f.Paging.params(p)
	return p
}

func (f UserFilter) Values() url.Values {
	v := url.Values{}
	if f.Role != "" {
		v.Set("role", f.Role)
	}
	if f.Active != nil {
		v.Set("active", strconv.FormatBool(*f.Active))
	}
	if f.Search != "" {
		v.Set("q", f.Search)
	}
	f.Paging.values(v)
	return v
}

func formatDate(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := t.UTC().Format(time.DateOnly)
	return &s
}
