package console

import (
	"github.com/unkn0wn-root/querycache"
	"github.com/unkn0wn-root/querycache/apiclient"
)

// Query kinds. Each list kind has its own staleness window in DefaultStaleness.
const (
	KindBookings       = "bookings"
	KindAdminBookings  = "admin-bookings"
	KindVendorBookings = "vendor-bookings"
	KindBooking        = "booking"
	KindTreks          = "treks"
	KindTrek           = "trek"
	KindVendors        = "vendors"
	KindUsers          = "users"
	KindTemplates      = "templates"
)

// Filter params only ever hold strings, ints, bools and pointers to them, so
// building a key from a filter cannot fail.

func BookingsKey(f apiclient.BookingFilter) querycache.Key {
	return querycache.MustKey(KindBookings, f.Params())
}

func AdminBookingsKey(f apiclient.BookingFilter) querycache.Key {
	return querycache.MustKey(KindAdminBookings, f.Params())
}

func VendorBookingsKey(f apiclient.BookingFilter) querycache.Key {
	return querycache.MustKey(KindVendorBookings, f.Params())
}

func BookingKey(id int64) querycache.Key {
	return querycache.MustKey(KindBooking, querycache.Params{"id": id})
}

func TreksKey(f apiclient.TrekFilter) querycache.Key {
	return querycache.MustKey(KindTreks, f.Params())
}

func TrekKey(id int64) querycache.Key {
	return querycache.MustKey(KindTrek, querycache.Params{"id": id})
}

func VendorsKey(f apiclient.VendorFilter) querycache.Key {
	return querycache.MustKey(KindVendors, f.Params())
}

func UsersKey(f apiclient.UserFilter) querycache.Key {
	return querycache.MustKey(KindUsers, f.Params())
}

func TemplatesKey() querycache.Key {
	return querycache.MustKey(KindTemplates, nil)
}

// VendorFamily is every list of kind scoped to one vendor, whatever the other
// filters are.
func VendorFamily(kind string, vendorID int64) querycache.Family {
	f, err := querycache.NewFamily(kind, querycache.Params{"vendorId": vendorID})
	if err != nil {
		panic(err)
	}
	return f
}
