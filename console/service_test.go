package console

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/apiclient"
	"github.com/unkn0wn-root/querycache/apierr"
	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/mutation"
	"github.com/unkn0wn-root/querycache/provider/ristretto"
)

// fakeAPI serves fixed data and counts calls per method.
type fakeAPI struct {
	API // unimplemented methods panic

	mu       sync.Mutex
	calls    map[string]int
	bookings map[int64]apiclient.Booking
	treks    map[int64]apiclient.Trek
	nextID   int64
	failWith error
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		calls: map[string]int{},
		bookings: map[int64]apiclient.Booking{
			123: {ID: 123, VendorID: 9, Status: apiclient.BookingPending, Amount: decimal.RequireFromString("899.00")},
			124: {ID: 124, VendorID: 7, Status: apiclient.BookingConfirmed, Amount: decimal.RequireFromString("450.00")},
		},
		treks:  map[int64]apiclient.Trek{1: {ID: 1, VendorID: 9, Title: "Hampta Pass"}},
		nextID: 100,
	}
}

func (f *fakeAPI) count(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[name]
}

func (f *fakeAPI) enter(name string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[name]++
	return f.failWith
}

func (f *fakeAPI) fail(err error) {
	f.mu.Lock()
	f.failWith = err
	f.mu.Unlock()
}

func (f *fakeAPI) bookingPage(vendor *int64) apiclient.Page[apiclient.Booking] {
	f.mu.Lock()
	defer f.mu.Unlock()
	var p apiclient.Page[apiclient.Booking]
	for _, b := range f.bookings {
		if vendor == nil || b.VendorID == *vendor {
			p.Items = append(p.Items, b)
		}
	}
	p.Total, p.Page, p.Limit = len(p.Items), 1, 20
	return p
}

func (f *fakeAPI) ListBookings(_ context.Context, _ apiclient.BookingFilter) (apiclient.Page[apiclient.Booking], error) {
	if err := f.enter("ListBookings"); err != nil {
		return apiclient.Page[apiclient.Booking]{}, err
	}
	return f.bookingPage(nil), nil
}

func (f *fakeAPI) ListVendorBookings(_ context.Context, flt apiclient.BookingFilter) (apiclient.Page[apiclient.Booking], error) {
	if err := f.enter("ListVendorBookings"); err != nil {
		return apiclient.Page[apiclient.Booking]{}, err
	}
	return f.bookingPage(flt.VendorID), nil
}

func (f *fakeAPI) GetBooking(_ context.Context, id int64) (apiclient.Booking, error) {
	if err := f.enter("GetBooking"); err != nil {
		return apiclient.Booking{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b, ok := f.bookings[id]
	if !ok {
		return b, apierr.New(apierr.KindNotFound, "booking not found")
	}
	return b, nil
}

func (f *fakeAPI) UpdateBookingStatus(_ context.Context, id int64, status apiclient.BookingStatus, _ string) (apiclient.Booking, error) {
	if err := f.enter("UpdateBookingStatus"); err != nil {
		return apiclient.Booking{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	b := f.bookings[id]
	b.Status = status
	f.bookings[id] = b
	return b, nil
}

func (f *fakeAPI) ListTreks(_ context.Context, _ apiclient.TrekFilter) (apiclient.Page[apiclient.Trek], error) {
	if err := f.enter("ListTreks"); err != nil {
		return apiclient.Page[apiclient.Trek]{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	var p apiclient.Page[apiclient.Trek]
	for _, t := range f.treks {
		p.Items = append(p.Items, t)
	}
	p.Total = len(p.Items)
	return p, nil
}

func (f *fakeAPI) GetTrek(_ context.Context, id int64) (apiclient.Trek, error) {
	if err := f.enter("GetTrek"); err != nil {
		return apiclient.Trek{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	t, ok := f.treks[id]
	if !ok {
		return t, apierr.New(apierr.KindNotFound, "trek not found")
	}
	return t, nil
}

func (f *fakeAPI) CreateTrek(_ context.Context, in apiclient.TrekInput, _ string) (apiclient.Trek, error) {
	if err := f.enter("CreateTrek"); err != nil {
		return apiclient.Trek{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	t := apiclient.Trek{ID: f.nextID, VendorID: in.VendorID, Title: in.Title, Price: in.Price, Days: len(in.Itinerary)}
	f.treks[t.ID] = t
	return t, nil
}

func (f *fakeAPI) DeleteTrek(_ context.Context, id int64, _ string) error {
	if err := f.enter("DeleteTrek"); err != nil {
		return err
	}
	f.mu.Lock()
	delete(f.treks, id)
	f.mu.Unlock()
	return nil
}

func (f *fakeAPI) UpdateVendor(_ context.Context, id int64, u apiclient.VendorUpdate, _ string) (apiclient.Vendor, error) {
	if err := f.enter("UpdateVendor"); err != nil {
		return apiclient.Vendor{}, err
	}
	v := apiclient.Vendor{ID: id}
	if u.Verified != nil {
		v.Verified = *u.Verified
	}
	return v, nil
}

type notes struct {
	mu  sync.Mutex
	got []mutation.Notification
}

func (n *notes) Notify(_ context.Context, x mutation.Notification) {
	n.mu.Lock()
	n.got = append(n.got, x)
	n.mu.Unlock()
}

func newTestService(t *testing.T, opts ...func(*Options)) (*Service, *fakeAPI, *notes) {
	t.Helper()
	p, err := ristretto.New(ristretto.Config{NumCounters: 1000, MaxCost: 1 << 20, BufferItems: 64})
	if err != nil {
		t.Fatalf("ristretto.New: %v", err)
	}
	c, err := querycache.New(querycache.Options{
		Namespace: "console:test",
		Provider:  p,
		Staleness: DefaultStaleness(),
	})
	if err != nil {
		t.Fatalf("querycache.New: %v", err)
	}
	t.Cleanup(func() { _ = c.Close(context.Background()) })

	api := newFakeAPI()
	n := &notes{}
	o := Options{API: api, Cache: c, Notifier: n}
	for _, opt := range opts {
		opt(&o)
	}
	s, err := New(o)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return s, api, n
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func peek(t *testing.T, s *Service, k querycache.Key) (querycache.Entry, bool) {
	t.Helper()
	e, ok, err := s.Cache().Peek(context.Background(), k)
	if err != nil {
		t.Fatalf("Peek %s: %v", k, err)
	}
	return e, ok
}

func TestReadsAreCachedPerFilter(t *testing.T) {
	ctx := context.Background()
	s, api, _ := newTestService(t)

	pending := apiclient.BookingPending
	for i := 0; i < 3; i++ {
		if _, err := s.Bookings(ctx, apiclient.BookingFilter{}); err != nil {
			t.Fatalf("Bookings: %v", err)
		}
	}
	// explicit defaults are the same query as none
	if _, err := s.Bookings(ctx, apiclient.BookingFilter{Status: &pending}); err != nil {
		t.Fatalf("Bookings: %v", err)
	}
	if _, err := s.Bookings(ctx, apiclient.BookingFilter{Paging: apiclient.Paging{Page: 1, Limit: 20}}); err != nil {
		t.Fatalf("Bookings: %v", err)
	}
	confirmed := apiclient.BookingConfirmed
	if _, err := s.Bookings(ctx, apiclient.BookingFilter{Status: &confirmed}); err != nil {
		t.Fatalf("Bookings: %v", err)
	}
	if got := api.count("ListBookings"); got != 2 {
		t.Fatalf("ListBookings calls: got %d want 2", got)
	}
}

func TestUpdateStatusOverwritesDetailAndInvalidatesLists(t *testing.T) {
	ctx := context.Background()
	s, api, n := newTestService(t)

	if _, err := s.Booking(ctx, 123); err != nil {
		t.Fatalf("Booking: %v", err)
	}
	if _, err := s.Bookings(ctx, apiclient.BookingFilter{}); err != nil {
		t.Fatalf("Bookings: %v", err)
	}

	if _, err := s.UpdateBookingStatus(ctx, 123, apiclient.BookingConfirmed); err != nil {
		t.Fatalf("UpdateBookingStatus: %v", err)
	}

	b, err := s.Booking(ctx, 123)
	if err != nil || b.Status != apiclient.BookingConfirmed {
		t.Fatalf("Booking after update: %+v err=%v", b, err)
	}
	if got := api.count("GetBooking"); got != 1 {
		t.Fatalf("detail should come from the overwritten entry, GetBooking calls=%d", got)
	}

	if e, ok := peek(t, s, BookingsKey(apiclient.BookingFilter{})); !ok || !e.Stale {
		t.Fatalf("bookings list should be stale after the update")
	}
	// stale list is served at once and refreshed in the background
	if _, err := s.Bookings(ctx, apiclient.BookingFilter{}); err != nil {
		t.Fatalf("Bookings: %v", err)
	}
	waitFor(t, "background refetch", func() bool { return api.count("ListBookings") == 2 })
	waitFor(t, "fresh list", func() bool {
		e, ok := peek(t, s, BookingsKey(apiclient.BookingFilter{}))
		return ok && !e.Stale
	})

	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.got) != 1 || n.got[0].Severity != mutation.SeverityInfo || n.got[0].Message != "Booking status updated" {
		t.Fatalf("notifications: %+v", n.got)
	}
}

func TestFailedMutationChangesNothing(t *testing.T) {
	ctx := context.Background()
	s, api, n := newTestService(t)
	if _, err := s.Booking(ctx, 123); err != nil {
		t.Fatalf("Booking: %v", err)
	}
	before, _ := peek(t, s, BookingKey(123))

	api.fail(apierr.FromStatus(422, []byte(`{"message":"booking already completed"}`)))
	if _, err := s.UpdateBookingStatus(ctx, 123, apiclient.BookingCancelled); !errors.Is(err, apierr.ErrValidation) {
		t.Fatalf("want validation error, got %v", err)
	}
	if got := api.count("UpdateBookingStatus"); got != 1 {
		t.Fatalf("failed mutation retried: %d calls", got)
	}
	after, ok := peek(t, s, BookingKey(123))
	if !ok || string(after.Payload) != string(before.Payload) || after.Stale {
		t.Fatalf("booking entry changed after a failed mutation")
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.got) != 1 || n.got[0].Severity != mutation.SeverityError || n.got[0].Kind != apierr.KindValidation {
		t.Fatalf("notifications: %+v", n.got)
	}
}

func TestAuthErrorOnReadClearsSession(t *testing.T) {
	ctx := context.Background()
	s, api, _ := newTestService(t)
	if _, err := s.Trek(ctx, 1); err != nil {
		t.Fatalf("Trek: %v", err)
	}

	api.fail(apierr.FromStatus(401, nil))
	if _, err := s.Bookings(ctx, apiclient.BookingFilter{}); !apierr.IsAuth(err) {
		t.Fatalf("want auth error, got %v", err)
	}
	if _, ok := peek(t, s, TrekKey(1)); ok {
		t.Fatalf("auth failure should clear every cached query")
	}
}

func TestCreateTrekSeedsDetailAndInvalidatesList(t *testing.T) {
	ctx := context.Background()
	s, api, _ := newTestService(t)
	if _, err := s.Treks(ctx, apiclient.TrekFilter{}); err != nil {
		t.Fatalf("Treks: %v", err)
	}

	created, err := s.CreateTrek(ctx, apiclient.TrekInput{VendorID: 9, Title: "Kedarkantha", Price: decimal.RequireFromString("120.00")})
	if err != nil {
		t.Fatalf("CreateTrek: %v", err)
	}
	got, err := s.Trek(ctx, created.ID)
	if err != nil || got.Title != "Kedarkantha" || !got.Price.Equal(decimal.NewFromInt(120)) {
		t.Fatalf("Trek: %+v err=%v", got, err)
	}
	if api.count("GetTrek") != 0 {
		t.Fatalf("created trek should be served from the seeded entry")
	}
	if e, _ := peek(t, s, TreksKey(apiclient.TrekFilter{})); !e.Stale {
		t.Fatalf("trek list should be stale after create")
	}
}

func TestDeleteTrekRemovesDetail(t *testing.T) {
	ctx := context.Background()
	s, api, _ := newTestService(t)
	if _, err := s.Trek(ctx, 1); err != nil {
		t.Fatalf("Trek: %v", err)
	}
	if err := s.DeleteTrek(ctx, 1); err != nil {
		t.Fatalf("DeleteTrek: %v", err)
	}
	if _, ok := peek(t, s, TrekKey(1)); ok {
		t.Fatalf("deleted trek still cached")
	}
	if _, err := s.Trek(ctx, 1); !errors.Is(err, apierr.ErrNotFound) {
		t.Fatalf("want not found after delete, got %v", err)
	}
	if api.count("GetTrek") != 2 {
		t.Fatalf("GetTrek calls: %d", api.count("GetTrek"))
	}
}

func TestUpdateVendorInvalidatesOnlyThatVendor(t *testing.T) {
	ctx := context.Background()
	s, _, _ := newTestService(t)
	v9, v7 := int64(9), int64(7)
	f9 := apiclient.BookingFilter{VendorID: &v9}
	f7 := apiclient.BookingFilter{VendorID: &v7}
	for _, f := range []apiclient.BookingFilter{f9, f7} {
		if _, err := s.VendorBookings(ctx, f); err != nil {
			t.Fatalf("VendorBookings: %v", err)
		}
	}

	verified := true
	if _, err := s.UpdateVendor(ctx, 9, apiclient.VendorUpdate{Verified: &verified}); err != nil {
		t.Fatalf("UpdateVendor: %v", err)
	}
	if e, _ := peek(t, s, VendorBookingsKey(f9)); !e.Stale {
		t.Fatalf("vendor 9 bookings should be stale")
	}
	if e, _ := peek(t, s, VendorBookingsKey(f7)); e.Stale {
		t.Fatalf("vendor 7 bookings should stay fresh")
	}
}

func TestLogoutClears(t *testing.T) {
	ctx := context.Background()
	s, api, _ := newTestService(t)
	if _, err := s.Booking(ctx, 124); err != nil {
		t.Fatalf("Booking: %v", err)
	}
	if err := s.Logout(ctx); err != nil {
		t.Fatalf("Logout: %v", err)
	}
	if _, err := s.Booking(ctx, 124); err != nil {
		t.Fatalf("Booking: %v", err)
	}
	if api.count("GetBooking") != 2 {
		t.Fatalf("read after logout must fetch again")
	}
}

func TestDefaultsCoverEveryKind(t *testing.T) {
	if err := DefaultRules().Validate(); err != nil {
		t.Fatalf("DefaultRules: %v", err)
	}
	for _, kind := range []string{MutBookingStatus, MutBookingCancel, MutTrekCreate, MutTrekUpdate,
		MutTrekDelete, MutVendorUpdate, MutUserUpdate, MutTemplateUpdate} {
		if _, ok := DefaultRules()[kind]; !ok {
			t.Fatalf("no rule for %s", kind)
		}
	}
	st := DefaultStaleness()
	for _, kind := range []string{KindBookings, KindAdminBookings, KindVendorBookings, KindBooking,
		KindTreks, KindTrek, KindVendors, KindUsers, KindTemplates} {
		if st[kind] <= 0 {
			t.Fatalf("no staleness window for %s", kind)
		}
	}
}

func TestConfiguredCodec(t *testing.T) {
	for _, f := range codec.Formats {
		t.Run(string(f), func(t *testing.T) {
			ctx := context.Background()
			s, api, _ := newTestService(t, func(o *Options) { o.Codec = f; o.MaxPayload = 1 << 16 })

			first, err := s.Booking(ctx, 123)
			if err != nil {
				t.Fatalf("Booking: %v", err)
			}
			cached, err := s.Booking(ctx, 123)
			if err != nil {
				t.Fatalf("Booking: %v", err)
			}
			eq := cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })
			if diff := cmp.Diff(first, cached, eq); diff != "" {
				t.Fatalf("cached booking (-fetched +cached):\n%s", diff)
			}
			if got := api.count("GetBooking"); got != 1 {
				t.Fatalf("GetBooking calls: %d", got)
			}
			e, _ := peek(t, s, BookingKey(123))
			if json.Valid(e.Payload) != (f == codec.FormatJSON) {
				t.Fatalf("payload not stored as %s: %q", f, e.Payload)
			}

			// the overwrite from a mutation decodes with the same codec
			if _, err := s.UpdateBookingStatus(ctx, 123, apiclient.BookingConfirmed); err != nil {
				t.Fatalf("UpdateBookingStatus: %v", err)
			}
			b, err := s.Booking(ctx, 123)
			if err != nil || b.Status != apiclient.BookingConfirmed {
				t.Fatalf("Booking after update: %+v err=%v", b, err)
			}
			if got := api.count("GetBooking"); got != 1 {
				t.Fatalf("detail should come from the overwritten entry, GetBooking calls=%d", got)
			}
		})
	}
}

func TestMaxPayloadAndUnknownCodec(t *testing.T) {
	s, _, _ := newTestService(t, func(o *Options) { o.Codec = codec.FormatMsgpack; o.MaxPayload = 8 })
	if _, err := s.Booking(context.Background(), 123); !errors.Is(err, codec.ErrTooLarge) {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}

	if _, err := New(Options{API: newFakeAPI(), Cache: s.Cache(), Codec: "yaml"}); !errors.Is(err, codec.ErrUnknownFormat) {
		t.Fatalf("want ErrUnknownFormat, got %v", err)
	}
}
