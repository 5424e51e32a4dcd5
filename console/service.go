// Package console wires the query cache, the mutation coordinator and the REST
// client into the operations of the booking admin console.
package console

import (
	"context"
	"errors"
	"fmt"

	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/apiclient"
	"github.com/unkn0wn-root/querycache/codec"
	"github.com/unkn0wn-root/querycache/mutation"
)

// API is the subset of *apiclient.Client the console calls.
type API interface {
	ListBookings(ctx context.Context, f apiclient.BookingFilter) (apiclient.Page[apiclient.Booking], error)
	ListAdminBookings(ctx context.Context, f apiclient.BookingFilter) (apiclient.Page[apiclient.Booking], error)
	ListVendorBookings(ctx context.Context, f apiclient.BookingFilter) (apiclient.Page[apiclient.Booking], error)
	GetBooking(ctx context.Context, id int64) (apiclient.Booking, error)
	UpdateBookingStatus(ctx context.Context, id int64, status apiclient.BookingStatus, idem string) (apiclient.Booking, error)
	CancelBooking(ctx context.Context, id int64, reason, idem string) (apiclient.Booking, error)

	ListTreks(ctx context.Context, f apiclient.TrekFilter) (apiclient.Page[apiclient.Trek], error)
	GetTrek(ctx context.Context, id int64) (apiclient.Trek, error)
	CreateTrek(ctx context.Context, in apiclient.TrekInput, idem string) (apiclient.Trek, error)
	UpdateTrek(ctx context.Context, id int64, in apiclient.TrekInput, idem string) (apiclient.Trek, error)
	DeleteTrek(ctx context.Context, id int64, idem string) error

	ListVendors(ctx context.Context, f apiclient.VendorFilter) (apiclient.Page[apiclient.Vendor], error)
	UpdateVendor(ctx context.Context, id int64, u apiclient.VendorUpdate, idem string) (apiclient.Vendor, error)
	ListUsers(ctx context.Context, f apiclient.UserFilter) (apiclient.Page[apiclient.User], error)
	UpdateUser(ctx context.Context, id int64, u apiclient.UserUpdate, idem string) (apiclient.User, error)
	ListTemplates(ctx context.Context) ([]apiclient.Template, error)
	UpdateTemplate(ctx context.Context, id string, u apiclient.TemplateUpdate, idem string) (apiclient.Template, error)
}

var _ API = (*apiclient.Client)(nil)

type Options struct {
	API      API              // required
	Cache    querycache.Cache // required
	Rules    mutation.Table   // nil => DefaultRules()
	Notifier mutation.Notifier
	Logger   querycache.Logger
	// Codec encodes cached payloads; "" => codec.FormatJSON.
	Codec codec.Format
	// MaxPayload caps the size of a cached payload accepted on read; 0 => no cap.
	MaxPayload int
}

// codecs holds one codec per payload type. Queries and mutations share them so
// an overwritten entry decodes like a fetched one.
type codecs struct {
	bookings  codec.Codec[apiclient.Page[apiclient.Booking]]
	booking   codec.Codec[apiclient.Booking]
	treks     codec.Codec[apiclient.Page[apiclient.Trek]]
	trek      codec.Codec[apiclient.Trek]
	vendors   codec.Codec[apiclient.Page[apiclient.Vendor]]
	vendor    codec.Codec[apiclient.Vendor]
	users     codec.Codec[apiclient.Page[apiclient.User]]
	user      codec.Codec[apiclient.User]
	templates codec.Codec[[]apiclient.Template]
	template  codec.Codec[apiclient.Template]
}

func newCodecs(f codec.Format, maxDecode int) (codecs, error) {
	var cs codecs
	errs := []error{
		build(&cs.bookings, f, maxDecode), build(&cs.booking, f, maxDecode),
		build(&cs.treks, f, maxDecode), build(&cs.trek, f, maxDecode),
		build(&cs.vendors, f, maxDecode), build(&cs.vendor, f, maxDecode),
		build(&cs.users, f, maxDecode), build(&cs.user, f, maxDecode),
		build(&cs.templates, f, maxDecode), build(&cs.template, f, maxDecode),
	}
	for _, err := range errs {
		if err != nil {
			return codecs{}, err
		}
	}
	return cs, nil
}

func build[V any](dst *codec.Codec[V], f codec.Format, maxDecode int) error {
	c, err := codec.For[V](f, maxDecode)
	*dst = c
	return err
}

// Service is one signed-in console session.
type Service struct {
	api    API
	cache  querycache.Cache
	co     *mutation.Coordinator
	log    querycache.Logger
	codecs codecs

	bookings  *querycache.Query[apiclient.Page[apiclient.Booking]]
	booking   *querycache.Query[apiclient.Booking]
	treks     *querycache.Query[apiclient.Page[apiclient.Trek]]
	trek      *querycache.Query[apiclient.Trek]
	vendors   *querycache.Query[apiclient.Page[apiclient.Vendor]]
	users     *querycache.Query[apiclient.Page[apiclient.User]]
	templates *querycache.Query[[]apiclient.Template]
}

func New(opts Options) (*Service, error) {
	if opts.API == nil || opts.Cache == nil {
		return nil, errors.New("console: API and Cache are required")
	}
	rules := opts.Rules
	if rules == nil {
		rules = DefaultRules()
	}
	log := opts.Logger
	if log == nil {
		log = querycache.NopLogger{}
	}
	co, err := mutation.New(mutation.Options{
		Cache:    opts.Cache,
		Rules:    rules,
		Notifier: opts.Notifier,
		Logger:   log,
	})
	if err != nil {
		return nil, err
	}
	cs, err := newCodecs(opts.Codec, opts.MaxPayload)
	if err != nil {
		return nil, fmt.Errorf("console: %w", err)
	}
	c := opts.Cache
	return &Service{
		api:       opts.API,
		cache:     c,
		co:        co,
		log:       log,
		codecs:    cs,
		bookings:  querycache.NewQuery(c, cs.bookings),
		booking:   querycache.NewQuery(c, cs.booking),
		treks:     querycache.NewQuery(c, cs.treks),
		trek:      querycache.NewQuery(c, cs.trek),
		vendors:   querycache.NewQuery(c, cs.vendors),
		users:     querycache.NewQuery(c, cs.users),
		templates: querycache.NewQuery(c, cs.templates),
	}, nil
}

func (s *Service) Cache() querycache.Cache { return s.cache }
func (s *Service) Coordinator() *mutation.Coordinator { return s.co }

// Logout drops everything cached for the session.
func (s *Service) Logout(ctx context.Context) error {
	return s.cache.Clear(ctx)
}

// Bookings

func (s *Service) Bookings(ctx context.Context, f apiclient.BookingFilter) (apiclient.Page[apiclient.Booking], error) {
	return s.bookings.Read(ctx, BookingsKey(f), func(ctx context.Context) (apiclient.Page[apiclient.Booking], error) {
		return s.api.ListBookings(ctx, f)
	})
}

func (s *Service) AdminBookings(ctx context.Context, f apiclient.BookingFilter) (apiclient.Page[apiclient.Booking], error) {
	return s.bookings.Read(ctx, AdminBookingsKey(f), func(ctx context.Context) (apiclient.Page[apiclient.Booking], error) {
		return s.api.ListAdminBookings(ctx, f)
	})
}

func (s *Service) VendorBookings(ctx context.Context, f apiclient.BookingFilter) (apiclient.Page[apiclient.Booking], error) {
	return s.bookings.Read(ctx, VendorBookingsKey(f), func(ctx context.Context) (apiclient.Page[apiclient.Booking], error) {
		return s.api.ListVendorBookings(ctx, f)
	})
}

func (s *Service) Booking(ctx context.Context, id int64) (apiclient.Booking, error) {
	return s.booking.Read(ctx, BookingKey(id), func(ctx context.Context) (apiclient.Booking, error) {
		return s.api.GetBooking(ctx, id)
	})
}

func (s *Service) UpdateBookingStatus(ctx context.Context, id int64, status apiclient.BookingStatus) (apiclient.Booking, error) {
	return mutation.Do(ctx, s.co, MutBookingStatus, BookingKey(id), s.codecs.booking,
		func(ctx context.Context, idem string) (apiclient.Booking, error) {
			return s.api.UpdateBookingStatus(ctx, id, status, idem)
		})
}

func (s *Service) CancelBooking(ctx context.Context, id int64, reason string) (apiclient.Booking, error) {
	return mutation.Do(ctx, s.co, MutBookingCancel, BookingKey(id), s.codecs.booking,
		func(ctx context.Context, idem string) (apiclient.Booking, error) {
			return s.api.CancelBooking(ctx, id, reason, idem)
		})
}

// Treks

func (s *Service) Treks(ctx context.Context, f apiclient.TrekFilter) (apiclient.Page[apiclient.Trek], error) {
	return s.treks.Read(ctx, TreksKey(f), func(ctx context.Context) (apiclient.Page[apiclient.Trek], error) {
		return s.api.ListTreks(ctx, f)
	})
}

func (s *Service) Trek(ctx context.Context, id int64) (apiclient.Trek, error) {
	return s.trek.Read(ctx, TrekKey(id), func(ctx context.Context) (apiclient.Trek, error) {
		return s.api.GetTrek(ctx, id)
	})
}

// CreateTrek invalidates the trek lists and seeds the new trek's detail key,
// which is only known once the server has assigned an id.
func (s *Service) CreateTrek(ctx context.Context, in apiclient.TrekInput) (apiclient.Trek, error) {
	t, err := mutation.Do(ctx, s.co, MutTrekCreate, querycache.Key{}, s.codecs.trek,
		func(ctx context.Context, idem string) (apiclient.Trek, error) {
			return s.api.CreateTrek(ctx, in, idem)
		})
	if err != nil {
		return t, err
	}
	if werr := s.trek.Write(ctx, TrekKey(t.ID), t); werr != nil {
		s.log.Warn("seed created trek failed", querycache.Fields{"trek": t.ID, "err": werr})
	}
	return t, nil
}

func (s *Service) UpdateTrek(ctx context.Context, id int64, in apiclient.TrekInput) (apiclient.Trek, error) {
	return mutation.Do(ctx, s.co, MutTrekUpdate, TrekKey(id), s.codecs.trek,
		func(ctx context.Context, idem string) (apiclient.Trek, error) {
			return s.api.UpdateTrek(ctx, id, in, idem)
		})
}

func (s *Service) DeleteTrek(ctx context.Context, id int64) error {
	_, err := s.co.Execute(ctx, mutation.Mutation{
		Kind:   MutTrekDelete,
		Target: TrekKey(id),
		Exec: func(ctx context.Context, idem string) ([]byte, error) {
			return nil, s.api.DeleteTrek(ctx, id, idem)
		},
	})
	return err
}

// Vendors and users

func (s *Service) Vendors(ctx context.Context, f apiclient.VendorFilter) (apiclient.Page[apiclient.Vendor], error) {
	return s.vendors.Read(ctx, VendorsKey(f), func(ctx context.Context) (apiclient.Page[apiclient.Vendor], error) {
		return s.api.ListVendors(ctx, f)
	})
}

// UpdateVendor also invalidates the vendor's own booking and trek lists, which
// embed vendor state.
func (s *Service) UpdateVendor(ctx context.Context, id int64, u apiclient.VendorUpdate) (apiclient.Vendor, error) {
	m := mutation.Mutation{
		Kind:       MutVendorUpdate,
		Invalidate: []querycache.Family{VendorFamily(KindVendorBookings, id), VendorFamily(KindTreks, id)},
	}
	return mutation.DoMutation(ctx, s.co, m, s.codecs.vendor,
		func(ctx context.Context, idem string) (apiclient.Vendor, error) {
			return s.api.UpdateVendor(ctx, id, u, idem)
		})
}

func (s *Service) Users(ctx context.Context, f apiclient.UserFilter) (apiclient.Page[apiclient.User], error) {
	return s.users.Read(ctx, UsersKey(f), func(ctx context.Context) (apiclient.Page[apiclient.User], error) {
		return s.api.ListUsers(ctx, f)
	})
}

func (s *Service) UpdateUser(ctx context.Context, id int64, u apiclient.UserUpdate) (apiclient.User, error) {
	return mutation.Do(ctx, s.co, MutUserUpdate, querycache.Key{}, s.codecs.user,
		func(ctx context.Context, idem string) (apiclient.User, error) {
			return s.api.UpdateUser(ctx, id, u, idem)
		})
}

// Templates

func (s *Service) Templates(ctx context.Context) ([]apiclient.Template, error) {
	return s.templates.Read(ctx, TemplatesKey(), func(ctx context.Context) ([]apiclient.Template, error) {
		return s.api.ListTemplates(ctx)
	})
}

func (s *Service) UpdateTemplate(ctx context.Context, id string, u apiclient.TemplateUpdate) (apiclient.Template, error) {
	return mutation.Do(ctx, s.co, MutTemplateUpdate, querycache.Key{}, s.codecs.template,
		func(ctx context.Context, idem string) (apiclient.Template, error) {
			return s.api.UpdateTemplate(ctx, id, u, idem)
		})
}
